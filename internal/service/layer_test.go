package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerService_CreateStacksLevels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	events := s.bus.Subscribe("layers")
	defer s.bus.Unsubscribe(events)

	zip, err := s.layers.Create(ctx, CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	assert.Equal(t, 0, zip.Order)
	assert.Zero(t, zip.NodeCount, "the leaf level has no default node")
	assert.Equal(t, "/tiles/1/{z}/{x}/{y}.pbf", zip.TileURL)

	territory, err := s.layers.Create(ctx, CreateLayer{Name: "Territory"})
	require.NoError(t, err)
	assert.Equal(t, 1, territory.Order)
	assert.Equal(t, 1, territory.NodeCount)

	ev := <-events
	assert.Equal(t, Event{Resource: "layers", Action: "created", ID: "1"}, ev)

	_, err = s.layers.Create(ctx, CreateLayer{Name: "Zip"})
	assert.ErrorIs(t, err, ErrLayerExists)

	layers, err := s.layers.List(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "Zip", layers[0].Name)
	assert.Equal(t, "Territory", layers[1].Name)

	nodes, err := s.nodes.List(ctx, territory.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, DefaultNodeName, nodes[0].Name)
	assert.Equal(t, DefaultNodeColor, nodes[0].Color)
}

func TestLayerService_NewLayerAdoptsOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.layers.Create(ctx, CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	territory, err := s.layers.Create(ctx, CreateLayer{Name: "Territory"})
	require.NoError(t, err)
	north, err := s.nodes.Create(ctx, CreateNode{LayerID: territory.ID, Name: "North"})
	require.NoError(t, err)
	require.Nil(t, north.ParentNodeID)

	region, err := s.layers.Create(ctx, CreateLayer{Name: "Region"})
	require.NoError(t, err)

	regionNodes, err := s.nodes.List(ctx, region.ID)
	require.NoError(t, err)
	require.Len(t, regionNodes, 1)
	defaultID := regionNodes[0].ID

	territoryNodes, err := s.nodes.List(ctx, territory.ID)
	require.NoError(t, err)
	require.Len(t, territoryNodes, 2)
	for _, n := range territoryNodes {
		require.NotNil(t, n.ParentNodeID, n.Name)
		assert.Equal(t, defaultID, *n.ParentNodeID, n.Name)
	}
}

func TestLayerService_Get(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.layers.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrLayerNotFound)

	created, err := s.layers.Create(ctx, CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	got, err := s.layers.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestLayerService_DeleteOnlyTop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	zip, err := s.layers.Create(ctx, CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	territory, err := s.layers.Create(ctx, CreateLayer{Name: "Territory"})
	require.NoError(t, err)
	_, err = s.layers.Create(ctx, CreateLayer{Name: "Region"})
	require.NoError(t, err)
	regionList, err := s.layers.List(ctx)
	require.NoError(t, err)
	region := regionList[2]

	err = s.layers.Delete(ctx, zip.ID)
	assert.ErrorIs(t, err, ErrNotTopLayer)
	err = s.layers.Delete(ctx, 99)
	assert.ErrorIs(t, err, ErrLayerNotFound)

	require.NoError(t, s.layers.Delete(ctx, region.ID))

	layers, err := s.layers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, layers, 2)

	nodes, err := s.nodes.List(ctx, territory.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Nil(t, nodes[0].ParentNodeID, "children of the deleted layer are orphaned")

	// The next layer takes the freed level.
	again, err := s.layers.Create(ctx, CreateLayer{Name: "Region"})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Order)
}
