package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/tiler"
)

// TileService renders vector tiles of a layer's nodes.
type TileService struct {
	layers *LayerService
	nodes  *NodeService
	log    *zap.Logger
}

// NewTileService creates a tile service.
func NewTileService(layers *LayerService, nodes *NodeService, log *zap.Logger) *TileService {
	return &TileService{layers: layers, nodes: nodes, log: log}
}

// Render encodes tile z/x/y of a layer. Each feature carries the node's
// id, name and color. An empty tile renders as nil.
func (s *TileService) Render(ctx context.Context, layerID, z, x, y int) ([]byte, error) {
	tile, err := tiler.NewTile(z, x, y)
	switch {
	case errors.Is(err, tiler.ErrZoom):
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoom, z)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidTile, err)
	}
	if _, err := s.layers.Get(ctx, layerID); err != nil {
		return nil, err
	}

	shapes, err := s.nodes.Shapes(ctx, layerID)
	if err != nil {
		return nil, err
	}
	features := make([]*geojson.Feature, 0, len(shapes))
	for _, sh := range shapes {
		f := geojson.NewFeature(sh.Geometry)
		f.ID = sh.ID
		f.Properties["id"] = sh.ID
		f.Properties["name"] = sh.Name
		f.Properties["color"] = sh.Color
		features = append(features, f)
	}

	data, err := tiler.Encode(tile, mapview.FeatureSourceLayer, features)
	if err != nil {
		return nil, err
	}
	s.log.Debug("tile rendered",
		zap.Int("layer", layerID), zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
		zap.Int("features", len(features)), zap.Int("bytes", len(data)))
	return data, nil
}
