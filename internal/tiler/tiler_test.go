package tiler

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minLon, minLat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLon, minLat},
		{minLon + size, minLat},
		{minLon + size, minLat + size},
		{minLon, minLat + size},
		{minLon, minLat},
	}}
}

func TestNewTile(t *testing.T) {
	tile, err := NewTile(3, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, maptile.New(2, 5, 3), tile)

	_, err = NewTile(21, 0, 0)
	assert.ErrorIs(t, err, ErrZoom)
	_, err = NewTile(-1, 0, 0)
	assert.ErrorIs(t, err, ErrZoom)
	_, err = NewTile(2, 4, 0)
	assert.ErrorIs(t, err, ErrCoords)
	_, err = NewTile(0, 0, -1)
	assert.ErrorIs(t, err, ErrCoords)
}

func TestEncode(t *testing.T) {
	tile := maptile.At(orb.Point{-73.95, 40.75}, 10)
	inside := geojson.NewFeature(square(-73.97, 40.73, 0.02))
	inside.Properties["id"] = 1
	inside.Properties["name"] = "10001"
	inside.Properties["color"] = "#ffffff"
	far := geojson.NewFeature(square(2.3, 48.8, 0.02))
	far.Properties["id"] = 2

	original := orb.Clone(inside.Geometry)
	data, err := Encode(tile, "nodes", []*geojson.Feature{inside, far})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, original, inside.Geometry, "input geometry must not be mutated")

	layers, err := mvt.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "nodes", layers[0].Name)
	require.Len(t, layers[0].Features, 1)
	assert.Equal(t, "10001", layers[0].Features[0].Properties["name"])
}

func TestEncodeEmpty(t *testing.T) {
	tile := maptile.New(0, 0, 5)
	far := geojson.NewFeature(square(150, -40, 0.5))

	data, err := Encode(tile, "nodes", []*geojson.Feature{far})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = Encode(tile, "nodes", nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestIntersects(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	assert.True(t, Intersects(square(0.5, 0.5, 2), b), "overlapping")
	assert.True(t, Intersects(square(-5, -5, 10), b), "containing")
	assert.False(t, Intersects(square(3, 3, 1), b), "disjoint")
	assert.True(t, Intersects(orb.MultiPolygon{square(3, 3, 1), square(0.2, 0.2, 0.1)}, b))
	assert.False(t, Intersects(orb.Point{2, 2}, b))
	assert.True(t, Intersects(orb.Collection{orb.Point{0.5, 0.5}}, b))
}

func TestPadded(t *testing.T) {
	b := Padded(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 20}}, 0.1)
	assert.Equal(t, orb.Point{-1, -2}, b.Min)
	assert.Equal(t, orb.Point{11, 22}, b.Max)
}

func TestSimplifyEpsilon(t *testing.T) {
	assert.Zero(t, SimplifyEpsilon(14))
	assert.Zero(t, SimplifyEpsilon(18))
	assert.Greater(t, SimplifyEpsilon(2), SimplifyEpsilon(8))
	assert.InDelta(t, 360.0/1024, SimplifyEpsilon(0), 1e-12)
}
