package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeZip(t *testing.T) {
	assert.Equal(t, "02134", NormalizeZip("2134"))
	assert.Equal(t, "00501", NormalizeZip(" 501 "))
	assert.Equal(t, "10001", NormalizeZip("10001"))
	assert.Equal(t, "", NormalizeZip(""))
}

func TestGeographyService_ImportGeoJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.seedZips(t)

	// Re-importing replaces rather than duplicates.
	n, err := s.geography.ImportGeoJSON(ctx, strings.NewReader(featureCollection(zipSquare("10001", 0, 0))), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	count, err := s.geography.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = s.geography.ImportGeoJSON(ctx, strings.NewReader(`{"type":"nope"`), "")
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = s.geography.ImportGeoJSON(ctx, strings.NewReader(featureCollection(zipSquare("10001", 0, 0))), "GEOID")
	assert.ErrorIs(t, err, ErrInvalidGeometry, "missing key property")

	point := `{"type":"Feature","properties":{"ZCTA5CE20":"10003"},"geometry":{"type":"Point","coordinates":[0,0]}}`
	_, err = s.geography.ImportGeoJSON(ctx, strings.NewReader(featureCollection(point)), "")
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	count, err = s.geography.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "failed imports leave the table untouched")
}

func TestGeographyService_ImportDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.geojson"),
		[]byte(featureCollection(zipSquare("10001", 0, 0))), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"),
		[]byte(featureCollection(zipSquare("10002", 1, 1), zipSquare("10003", 2, 2))), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	n, err := s.geography.ImportDir(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.geography.ImportDir(ctx, filepath.Join(dir, "missing"), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMapImportService_Import(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.seedZips(t)

	res, err := s.imports.Import(ctx, salesMap())
	require.NoError(t, err)

	assert.Equal(t, "Sales", res.Name)
	assert.Equal(t, 7, res.Nodes)
	assert.Equal(t, []string{"99999"}, res.Skipped)
	require.Len(t, res.Layers, 3)
	for i, want := range []string{"Zip", "Territory", "Region"} {
		assert.Equal(t, want, res.Layers[i].Name)
		assert.Equal(t, i, res.Layers[i].Order)
	}
	assert.Equal(t, 3, res.Layers[0].NodeCount)
	assert.Equal(t, 4, res.Layers[1].NodeCount, "three territories and the default node")
	assert.Equal(t, 2, res.Layers[2].NodeCount)

	zips, err := s.nodes.List(ctx, res.Layers[0].ID)
	require.NoError(t, err)
	territories, err := s.nodes.List(ctx, res.Layers[1].ID)
	require.NoError(t, err)
	territoryID := map[string]int{}
	for _, n := range territories {
		territoryID[n.Name] = n.ID
	}

	parentOf := map[string]int{}
	for _, z := range zips {
		assert.True(t, z.HasGeometry, z.Name)
		require.NotNil(t, z.ParentNodeID, z.Name)
		parentOf[z.Name] = *z.ParentNodeID
	}
	assert.Equal(t, map[string]int{
		"02134": territoryID["Boston"],
		"10001": territoryID["Manhattan"],
		"10002": territoryID["Manhattan"],
	}, parentOf)

	_, err = s.imports.Import(ctx, salesMap())
	assert.ErrorIs(t, err, ErrMapExists)
}

func TestMapImportService_BlankParentFallsToDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.seedZips(t)

	res, err := s.imports.Import(ctx, ImportMap{
		Name:    "Partial",
		Layers:  []LayerSetup{{Name: "Zip", Header: "zip"}, {Name: "Territory", Header: "t"}},
		Headers: []string{"zip", "t"},
		Values:  [][]any{{"10001", "North"}, {"10002", ""}, {"", "South"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Nodes)

	territories, err := s.nodes.List(ctx, res.Layers[1].ID)
	require.NoError(t, err)
	var defaultID int
	for _, n := range territories {
		if n.Name == DefaultNodeName {
			defaultID = n.ID
		}
	}
	require.NotZero(t, defaultID)

	zips, err := s.nodes.List(ctx, res.Layers[0].ID)
	require.NoError(t, err)
	for _, z := range zips {
		if z.Name == "10002" {
			require.NotNil(t, z.ParentNodeID)
			assert.Equal(t, defaultID, *z.ParentNodeID)
		}
	}
}

func TestMapImportService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ImportMap)
		want   error
	}{
		{"missing name", func(m *ImportMap) { m.Name = " " }, ErrInvalidImport},
		{"no layers", func(m *ImportMap) { m.Layers = nil }, ErrInvalidImport},
		{"unknown layer header", func(m *ImportMap) { m.Layers[1].Header = "county" }, ErrInvalidImport},
		{"duplicate layer", func(m *ImportMap) { m.Layers[2].Name = "Zip" }, ErrInvalidImport},
		{"unknown field header", func(m *ImportMap) { m.DataFields[0].Header = "income" }, ErrInvalidImport},
		{"bad field type", func(m *ImportMap) { m.DataFields[0].Type = "date" }, ErrInvalidImport},
		{"long row", func(m *ImportMap) { m.Values[0] = append(m.Values[0], "extra") }, ErrInvalidImport},
		{"conflicting parents", func(m *ImportMap) { m.Values[1][1] = "Brooklyn"; m.Values[4][1] = "Queens" }, ErrInvalidImport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			s.seedZips(t)
			m := salesMap()
			tt.mutate(&m)

			_, err := s.imports.Import(context.Background(), m)
			assert.ErrorIs(t, err, tt.want)

			layers, err := s.layers.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, layers, "a rejected import creates nothing")
		})
	}
}

func TestCell(t *testing.T) {
	row := []any{" a ", 2134.0, 1.5, nil, true, int64(7)}
	assert.Equal(t, "a", cell(row, 0))
	assert.Equal(t, "2134", cell(row, 1))
	assert.Equal(t, "1.5", cell(row, 2))
	assert.Equal(t, "", cell(row, 3))
	assert.Equal(t, "true", cell(row, 4))
	assert.Equal(t, "7", cell(row, 5))
	assert.Equal(t, "", cell(row, 9))
}
