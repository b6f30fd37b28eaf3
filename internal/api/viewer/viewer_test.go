package viewer

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/db"
	"github.com/joeblew999/plat-territory/internal/humastar"
	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/service"
	"github.com/joeblew999/plat-territory/internal/templates"
)

type fixture struct {
	mux    *http.ServeMux
	views  *service.ViewService
	layers *service.LayerService
	rec    *mapview.Reconciler
	bus    *service.EventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	log := zap.NewNop()
	bus := service.NewEventBus(log)
	layers := service.NewLayerService(conn, bus, log)
	rec := mapview.NewReconciler(mapview.DefaultCatalog(), mapview.TileURLTemplate("http://test"))
	views, err := service.NewViewService("", rec.Catalog, bus, log)
	require.NoError(t, err)
	renderer, err := templates.New()
	require.NoError(t, err)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	NewHandler(views, layers, rec, bus, renderer, log).RegisterRoutes(api)
	return &fixture{mux: mux, views: views, layers: layers, rec: rec, bus: bus}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func TestSignalsRoundTrip(t *testing.T) {
	layers := []service.Layer{{ID: 1}, {ID: 2}}
	signals := humastar.Signals{
		"basemap":         "dark",
		"layer_1_fill":    true,
		"layer_2_outline": true,
		"layer_2_label":   false,
		"unrelated":       "x",
	}

	st := StateFromSignals(signals, layers, mapview.ViewState{})
	assert.Equal(t, mapview.ViewState{
		BaseMap: "dark",
		Layers: []mapview.LayerView{
			{ID: 1, ShowFill: true},
			{ID: 2, ShowOutline: true},
		},
	}, st)

	back := SignalsFromState(st, layers)
	assert.Equal(t, map[string]any{
		"basemap":         "dark",
		"layer_1_fill":    true,
		"layer_1_outline": false,
		"layer_1_label":   false,
		"layer_2_fill":    false,
		"layer_2_outline": true,
		"layer_2_label":   false,
	}, back)
}

func TestStateFromSignalsKeepsUnsent(t *testing.T) {
	layers := []service.Layer{{ID: 1}, {ID: 2}}
	current := mapview.ViewState{
		BaseMap: "terrain",
		Layers:  []mapview.LayerView{{ID: 1, ShowFill: true, ShowLabel: true}},
	}

	st := StateFromSignals(humastar.Signals{"layer_1_fill": false, "layer_2_outline": true}, layers, current)
	assert.Equal(t, mapview.ViewState{
		BaseMap: "terrain",
		Layers: []mapview.LayerView{
			{ID: 1, ShowLabel: true},
			{ID: 2, ShowOutline: true},
		},
	}, st)
}

func TestPanel(t *testing.T) {
	f := newFixture(t)
	_, err := f.layers.Create(context.Background(), service.CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	v, err := f.views.Create(mapview.ViewState{BaseMap: "terrain", Layers: []mapview.LayerView{{ID: 1, ShowLabel: true}}})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/v1/viewer/"+v.ID+"/panel", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "#basemaps")
	assert.Contains(t, body, `value="terrain" selected`)
	assert.Contains(t, body, `data-bind="layer_1_label"`)
	assert.Contains(t, body, "datastar-patch-signals")
	assert.Contains(t, body, `"layer_1_label":true`)

	w = f.do(http.MethodGet, "/api/v1/viewer/nope/panel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.layers.Create(ctx, service.CreateLayer{Name: "Zip"})
	require.NoError(t, err)
	v, err := f.views.Create(mapview.ViewState{})
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/v1/viewer/"+v.ID+"/state", `{"basemap":"satellite","layer_1_outline":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":"view saved"`)

	got, err := f.views.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, mapview.ViewState{
		BaseMap: "satellite",
		Layers:  []mapview.LayerView{{ID: 1, ShowOutline: true}},
	}, got.State)

	w = f.do(http.MethodPost, "/api/v1/viewer/"+v.ID+"/state", `{"basemap":"watercolor"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown base map")
	got, err = f.views.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, mapview.BaseMapName("satellite"), got.State.BaseMap)

	// Only the changed control is sent; the rest of the state stays.
	w = f.do(http.MethodPost, "/api/v1/viewer/"+v.ID+"/state", `{"layer_1_label":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	got, err = f.views.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, mapview.ViewState{
		BaseMap: "satellite",
		Layers:  []mapview.LayerView{{ID: 1, ShowOutline: true, ShowLabel: true}},
	}, got.State)

	w = f.do(http.MethodPost, "/api/v1/viewer/nope/state", `{"basemap":"osm"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "view session not found")

	w = f.do(http.MethodPost, "/api/v1/viewer/"+v.ID+"/state", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// openStream connects to the session stream and returns a function that
// reads lines until one contains substr.
func (f *fixture) openStream(t *testing.T, session string) func(substr string) {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/viewer/"+session+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	return func(substr string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q", substr)
	}
}

func TestWatchStreamsOps(t *testing.T) {
	f := newFixture(t)
	v, err := f.views.Create(mapview.ViewState{BaseMap: "osm"})
	require.NoError(t, err)

	waitFor := f.openStream(t, v.ID)
	waitFor(OpsEvent)

	// A state change from another client is pushed to the stream.
	_, err = f.views.Set(v.ID, mapview.ViewState{BaseMap: "dark"})
	require.NoError(t, err)
	waitFor("base-dark-layer")
}

func TestWatchSurvivesCatalogShrink(t *testing.T) {
	f := newFixture(t)
	v, err := f.views.Create(mapview.ViewState{BaseMap: "dark"})
	require.NoError(t, err)

	waitFor := f.openStream(t, v.ID)
	waitFor("base-dark-layer")

	// The catalog drops the session's style. The stream keeps running until
	// the view has been moved to a style that is still listed.
	f.rec.SetCatalog(mapview.DefaultCatalog()[:1])
	f.bus.Publish(service.Event{Resource: "basemaps", Action: "updated"})
	changed, err := f.views.RetargetBaseMaps()
	require.NoError(t, err)
	assert.Equal(t, []string{v.ID}, changed)

	waitFor("base-osm-layer")
}
