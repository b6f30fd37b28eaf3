// Package tiler encodes features into Mapbox Vector Tiles on demand.
package tiler

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// MaxZoom is the deepest zoom level tiles are rendered for.
const MaxZoom = 20

// ErrZoom is returned for tiles outside [0, MaxZoom].
var ErrZoom = errors.New("zoom out of range")

// ErrCoords is returned when x or y do not exist at the tile's zoom.
var ErrCoords = errors.New("tile coordinates out of range")

// Buffer is the fraction of the tile size features are clipped beyond the
// tile edge, so strokes do not stop short at tile seams.
const Buffer = 0.1

// NewTile validates z/x/y and returns the tile.
func NewTile(z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > MaxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: %d", ErrZoom, z)
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d", ErrCoords, z, x, y)
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// Encode renders the features intersecting tile as a single MVT layer. An
// empty tile encodes to nil. The features are not modified.
func Encode(tile maptile.Tile, layerName string, features []*geojson.Feature) ([]byte, error) {
	bound := Padded(tile.Bound(), Buffer)

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if f.Geometry == nil || !Intersects(f.Geometry, bound) {
			continue
		}
		// Clip and ProjectToTile mutate geometry in place.
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.ID = f.ID
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := SimplifyEpsilon(tile.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.Marshal(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	return data, nil
}

// Padded grows b by frac of its width and height on every side.
func Padded(b orb.Bound, frac float64) orb.Bound {
	dx := (b.Max[0] - b.Min[0]) * frac
	dy := (b.Max[1] - b.Min[1]) * frac
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dx, b.Min[1] - dy},
		Max: orb.Point{b.Max[0] + dx, b.Max[1] + dy},
	}
}

// SimplifyEpsilon is the Douglas-Peucker tolerance in degrees for a zoom
// level: a quarter of a 256px display pixel, so simplification is never
// visible.
func SimplifyEpsilon(z maptile.Zoom) float64 {
	if z >= 14 {
		return 0
	}
	tileDeg := 360 / float64(uint64(1)<<uint(z))
	return tileDeg / 1024
}

// Intersects reports whether g touches b. Polygons that fully contain the
// bound count as intersecting.
func Intersects(g orb.Geometry, b orb.Bound) bool {
	if !g.Bound().Intersects(b) {
		return false
	}

	switch g := g.(type) {
	case orb.Point:
		return b.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if b.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if b.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			b.Min,
			{b.Max[0], b.Min[1]},
			b.Max,
			{b.Min[0], b.Max[1]},
			b.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if Intersects(poly, b) {
				return true
			}
		}
		return false
	case orb.Collection:
		for _, part := range g {
			if Intersects(part, b) {
				return true
			}
		}
		return false
	default:
		// Lines whose bounds overlap are kept; clipping drops the misses.
		return true
	}
}
