package viewer

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/humastar"
	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/service"
	"github.com/joeblew999/plat-territory/internal/templates"
)

// OpsEvent is the DOM event carrying surface mutations to the page.
const OpsEvent = "map-ops"

// Handler serves the viewer stream, state and panel endpoints.
type Handler struct {
	humastar.Handler
	views      *service.ViewService
	layers     *service.LayerService
	reconciler *mapview.Reconciler
	bus        *service.EventBus
}

// NewHandler creates a viewer handler.
func NewHandler(views *service.ViewService, layers *service.LayerService, reconciler *mapview.Reconciler,
	bus *service.EventBus, renderer *templates.Renderer, log *zap.Logger) *Handler {
	return &Handler{
		Handler:    humastar.Handler{Renderer: renderer, Log: log},
		views:      views,
		layers:     layers,
		reconciler: reconciler,
		bus:        bus,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/{session}/stream", h.Watch, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/{session}/state", h.SetState, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/{session}/panel", h.Panel, huma.OperationTags("viewer"))
}

type SessionInput struct {
	Session string `path:"session" doc:"View session ID"`
}

type StateInput struct {
	SessionInput
	humastar.SignalsInput
}

// opsDetail is the payload of an OpsEvent.
type opsDetail struct {
	Ops []mapview.Op `json:"ops"`
}

// Watch keeps the page's map in step with the session. Opening the stream
// signals that the page's map has loaded; every applied reconcile is sent
// as one OpsEvent. Store changes to the session, the layers or the base map
// catalog are pushed without a request from the page.
func (h *Handler) Watch(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	view, err := h.views.Get(input.Session)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ctx, cancel := context.WithCancel(humaCtx.Context())
			defer cancel()

			log := h.Log.With(zap.String("session", input.Session))
			surface := mapview.NewRecordingSurface()
			updater := mapview.NewUpdater(h.reconciler, surface,
				mapview.UpdaterLogger(log),
				mapview.OnApplied(func(mapview.ViewState) {
					if ops := surface.Drain(); len(ops) > 0 {
						if err := sse.Event(OpsEvent, opsDetail{Ops: ops}); err != nil {
							log.Debug("sending ops", zap.Error(err))
						}
					}
				}))

			events := h.bus.Subscribe("views", "layers", "basemaps")
			defer h.bus.Unsubscribe(events)

			updater.Submit(view.State)
			updater.MarkReady()

			done := make(chan error, 1)
			go func() { done <- updater.Run(ctx) }()
			defer func() {
				cancel()
				<-done
			}()

			log.Info("viewer connected")
			for {
				select {
				case <-ctx.Done():
					log.Info("viewer disconnected")
					return
				case err := <-done:
					done <- err
					sse.Error(err.Error())
					return
				case ev := <-events:
					switch ev.Resource {
					case "views":
						if ev.ID != input.Session {
							continue
						}
						if ev.Action == "deleted" {
							sse.Error("view session ended")
							return
						}
					case "layers":
						h.patchPanel(ctx, sse, input.Session)
					}
					current, err := h.views.Get(input.Session)
					if err != nil {
						return
					}
					// A catalog swap is followed by a views event once the
					// stored state has been moved off retired styles.
					if err := current.State.Validate(h.reconciler.Catalog()); err != nil {
						log.Debug("waiting for view to follow catalog", zap.Error(err))
						continue
					}
					updater.Submit(current.State)
				}
			}
		},
	}, nil
}

// SetState replaces the session state from the panel signals.
func (h *Handler) SetState(ctx context.Context, input *StateInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	layers, err := h.layers.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing layers", err)
	}

	return h.Stream(func(sse humastar.SSE) {
		current, err := h.views.Get(input.Session)
		if err == nil {
			_, err = h.views.Set(input.Session, StateFromSignals(signals, layers, current.State))
		}
		switch {
		case errors.Is(err, service.ErrViewNotFound):
			sse.Error("view session not found")
		case err != nil:
			sse.Error(err.Error())
		default:
			sse.Success("view saved")
		}
	}), nil
}

// Panel renders the base map selector and the layer controls, and syncs
// their signals with the stored state.
func (h *Handler) Panel(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	if _, err := h.views.Get(input.Session); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return h.Stream(func(sse humastar.SSE) {
		h.patchPanel(ctx, sse, input.Session)
	}), nil
}

type basemapOption struct {
	Value    string
	Label    string
	Selected bool
}

func (h *Handler) patchPanel(ctx context.Context, sse humastar.SSE, session string) {
	view, err := h.views.Get(session)
	if err != nil {
		sse.Error(err.Error())
		return
	}
	layers, err := h.layers.List(ctx)
	if err != nil {
		sse.Error(err.Error())
		return
	}

	names := append([]mapview.BaseMapName{mapview.BaseMapNone}, h.reconciler.Catalog().Names()...)
	options := make([]any, 0, len(names))
	for _, n := range names {
		options = append(options, basemapOption{Value: string(n), Label: string(n), Selected: n == view.State.BaseMap})
	}
	rows := make([]any, 0, len(layers))
	for _, l := range layers {
		rows = append(rows, l)
	}

	sse.Patch(h.RenderList("basemap-option", options, "", ""), "#basemaps")
	sse.Patch(h.RenderList("layer-row", rows, "No layers", "Import a map to add layers"), "#layers")
	sse.Signals(SignalsFromState(view.State, layers))
}
