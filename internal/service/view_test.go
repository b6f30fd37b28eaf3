package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/mapview"
)

func newTestViews(t *testing.T, dir string) (*ViewService, *EventBus) {
	t.Helper()
	bus := NewEventBus(nil)
	views, err := NewViewService(dir, mapview.DefaultCatalog, bus, zap.NewNop())
	require.NoError(t, err)
	return views, bus
}

func TestViewService_Lifecycle(t *testing.T) {
	views, bus := newTestViews(t, "")
	events := bus.Subscribe("views")
	defer bus.Unsubscribe(events)

	v, err := views.Create(mapview.ViewState{})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, mapview.BaseMapName("osm"), v.State.BaseMap, "first catalog entry is the default")
	assert.NotNil(t, v.State.Layers)
	assert.Equal(t, Event{Resource: "views", Action: "created", ID: v.ID}, <-events)

	want := mapview.ViewState{
		BaseMap: "satellite",
		Layers:  []mapview.LayerView{{ID: 1, ShowFill: true}, {ID: 2, ShowLabel: true}},
	}
	_, err = views.Set(v.ID, want)
	require.NoError(t, err)
	assert.Equal(t, Event{Resource: "views", Action: "updated", ID: v.ID}, <-events)

	got, err := views.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.State)

	// Callers cannot mutate stored state through a returned view.
	got.State.Layers[0].ShowFill = false
	again, err := views.Get(v.ID)
	require.NoError(t, err)
	assert.True(t, again.State.Layers[0].ShowFill)

	require.NoError(t, views.Delete(v.ID))
	assert.Equal(t, Event{Resource: "views", Action: "deleted", ID: v.ID}, <-events)
	_, err = views.Get(v.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)
	assert.ErrorIs(t, views.Delete(v.ID), ErrViewNotFound)
	_, err = views.Set(v.ID, want)
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestViewService_RetargetBaseMaps(t *testing.T) {
	catalog := mapview.DefaultCatalog()
	bus := NewEventBus(nil)
	views, err := NewViewService("", func() mapview.Catalog { return catalog }, bus, zap.NewNop())
	require.NoError(t, err)

	dark, err := views.Create(mapview.ViewState{BaseMap: "dark"})
	require.NoError(t, err)
	osm, err := views.Create(mapview.ViewState{BaseMap: "osm"})
	require.NoError(t, err)
	plain, err := views.Create(mapview.ViewState{BaseMap: mapview.BaseMapNone})
	require.NoError(t, err)

	changed, err := views.RetargetBaseMaps()
	require.NoError(t, err)
	assert.Empty(t, changed)

	events := bus.Subscribe("views")
	defer bus.Unsubscribe(events)
	catalog = catalog[:1]
	changed, err = views.RetargetBaseMaps()
	require.NoError(t, err)
	assert.Equal(t, []string{dark.ID}, changed)
	assert.Equal(t, Event{Resource: "views", Action: "updated", ID: dark.ID}, <-events)

	for id, want := range map[string]mapview.BaseMapName{dark.ID: "osm", osm.ID: "osm", plain.ID: mapview.BaseMapNone} {
		got, err := views.Get(id)
		require.NoError(t, err)
		assert.Equal(t, want, got.State.BaseMap)
		require.NoError(t, got.State.Validate(catalog))
	}
}

func TestViewService_RejectsInvalidState(t *testing.T) {
	views, _ := newTestViews(t, "")

	_, err := views.Create(mapview.ViewState{BaseMap: "watercolor"})
	assert.ErrorIs(t, err, mapview.ErrUnknownBaseMap)

	v, err := views.Create(mapview.ViewState{BaseMap: mapview.BaseMapNone})
	require.NoError(t, err)
	_, err = views.Set(v.ID, mapview.ViewState{
		BaseMap: "osm",
		Layers:  []mapview.LayerView{{ID: 3}, {ID: 3}},
	})
	assert.ErrorIs(t, err, mapview.ErrDuplicateLayer)

	got, err := views.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, mapview.BaseMapNone, got.State.BaseMap, "rejected state is not stored")
}

func TestViewService_Snapshot(t *testing.T) {
	dir := t.TempDir()
	views, _ := newTestViews(t, dir)

	a, err := views.Create(mapview.ViewState{BaseMap: "dark", Layers: []mapview.LayerView{{ID: 4, ShowOutline: true}}})
	require.NoError(t, err)
	b, err := views.Create(mapview.ViewState{BaseMap: "terrain"})
	require.NoError(t, err)
	require.NoError(t, views.Delete(b.ID))

	reloaded, _ := newTestViews(t, dir)
	list := reloaded.List()
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, a.State, list[0].State)
	assert.True(t, a.UpdatedAt.Equal(list[0].UpdatedAt))
}
