package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/db"
)

type testStore struct {
	bus       *EventBus
	layers    *LayerService
	nodes     *NodeService
	geography *GeographyService
	imports   *MapImportService
	tiles     *TileService
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	log := zap.NewNop()
	bus := NewEventBus(log)
	layers := NewLayerService(conn, bus, log)
	nodes := NewNodeService(conn, bus, log)
	return &testStore{
		bus:       bus,
		layers:    layers,
		nodes:     nodes,
		geography: NewGeographyService(conn, bus, log),
		imports:   NewMapImportService(conn, bus, log),
		tiles:     NewTileService(layers, nodes, log),
	}
}

// zipSquare is a 0.01 degree square feature keyed by zip.
func zipSquare(zip any, lon, lat float64) string {
	key, _ := zip.(string)
	if key != "" {
		key = fmt.Sprintf("%q", key)
	} else {
		key = fmt.Sprint(zip)
	}
	return fmt.Sprintf(`{"type":"Feature","properties":{"ZCTA5CE20":%s},"geometry":{"type":"Polygon","coordinates":[[[%[2]g,%[3]g],[%[4]g,%[3]g],[%[4]g,%[5]g],[%[2]g,%[5]g],[%[2]g,%[3]g]]]}}`,
		key, lon, lat, lon+0.01, lat+0.01)
}

func featureCollection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

// seedZips loads three zip areas: two in Manhattan and one in Boston.
func (s *testStore) seedZips(t *testing.T) {
	t.Helper()
	fc := featureCollection(
		zipSquare("10001", -73.99, 40.74),
		zipSquare("10002", -73.98, 40.71),
		zipSquare(2134, -71.13, 42.35),
	)
	n, err := s.geography.ImportGeoJSON(context.Background(), strings.NewReader(fc), "")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

// salesMap is a three level hierarchy: zip, territory, region.
func salesMap() ImportMap {
	return ImportMap{
		Name: "Sales",
		Layers: []LayerSetup{
			{Name: "Zip", Header: "zip"},
			{Name: "Territory", Header: "territory"},
			{Name: "Region", Header: "region"},
		},
		DataFields: []DataFieldSetup{{Name: "Population", Header: "pop", Type: "number"}},
		Headers:    []string{"zip", "territory", "region", "pop"},
		Values: [][]any{
			{"10001", "Manhattan", "East", 21102.0},
			{"10002", "Manhattan", "East", 74993.0},
			{2134.0, "Boston", "East", nil},
			{"99999", "Nowhere", "East", 1.0},
			{"10001", "Manhattan", "East", 21102.0},
		},
	}
}
