// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/humastar"
	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer      *service.LayerService
	Node       *service.NodeService
	Geography  *service.GeographyService
	Import     *service.MapImportService
	Tile       *service.TileService
	View       *service.ViewService
	Reconciler *mapview.Reconciler
	Bus        *service.EventBus
}

// Types

type NodeIDInput struct {
	ID int `path:"id" minimum:"1" doc:"Node ID" example:"17"`
}

type LayerIDInput struct {
	ID int `path:"id" minimum:"1" doc:"Layer ID" example:"2"`
}

type ViewIDInput struct {
	ID string `path:"id" doc:"View session ID" example:"0b6c1f0e-6a7e-4c9e-9d8e-2f3a4b5c6d7e"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// LayerBody is a layer plus the actions its position allows.
type LayerBody struct {
	service.Layer
	Top bool `json:"top" doc:"Whether this is the top layer, the only one that can be deleted"`
}

var (
	layerDelete = humastar.ActionDef{Rel: "delete", Pattern: "/api/v1/layers/%v", Method: http.MethodDelete, Title: "Delete layer"}
	layerNodes  = humastar.ActionDef{Rel: "nodes", Pattern: "/api/v1/layers/%v/nodes", Method: http.MethodGet, Title: "Layer nodes"}
)

// Actions implements humastar.Actor.
func (b LayerBody) Actions() []humastar.Action {
	actions := []humastar.Action{layerNodes.For(b.ID)}
	if b.Top {
		actions = append(actions, layerDelete.For(b.ID))
	}
	return actions
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body []LayerBody
}

type NodesOutput struct {
	Body humastar.PageBody[service.Node]
}

type NodeOutput struct {
	Body service.Node
}

type NodeListOutput struct {
	Body []service.Node
}

type ImportOutput struct {
	Body service.ImportResult
}

type GeographyInput struct {
	KeyProperty string `query:"key" doc:"Feature property holding the zip code" example:"ZCTA5CE20"`
	RawBody     []byte `contentType:"application/geo+json"`
}

type GeographyBody struct {
	Imported int `json:"imported" doc:"Number of zip code areas stored" example:"33791"`
	Total    int `json:"total" doc:"Zip code areas in the store" example:"33791"`
}

type BaseMapsOutput struct {
	Body []mapview.BaseStyle
}

type ViewOutput struct {
	Body service.View
}

type ViewsOutput struct {
	Body []service.View
}

type StyleOutput struct {
	Body mapview.Style
}

// APIHandler holds the REST API handlers.
type APIHandler struct {
	svc *Services
	log *zap.Logger
}

func NewAPIHandler(svc *Services, log *zap.Logger) *APIHandler {
	return &APIHandler{svc: svc, log: log}
}

// RegisterRoutes registers every REST route.
func RegisterRoutes(api huma.API, svc *Services, log *zap.Logger) {
	h := NewAPIHandler(svc, log)
	h.RegisterHealth(api)
	h.RegisterLayers(api)
	h.RegisterNodes(api)
	h.RegisterMaps(api)
	h.RegisterBaseMaps(api)
	h.RegisterViews(api)
}

func created(o *huma.Operation) { o.DefaultStatus = http.StatusCreated }

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"), created)
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

// RegisterNodes registers node routes.
func (h *APIHandler) RegisterNodes(api huma.API) {
	huma.Get(api, "/api/v1/layers/{id}/nodes", h.GetNodes, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/nodes", h.CreateNode, huma.OperationTags("nodes"), created)
	// bulk before {id}: some routers match in registration order.
	huma.Put(api, "/api/v1/nodes/bulk", h.BulkUpdateNodes, huma.OperationTags("nodes"))
	huma.Get(api, "/api/v1/nodes/{id}", h.GetNode, huma.OperationTags("nodes"))
	huma.Put(api, "/api/v1/nodes/{id}", h.UpdateNode, huma.OperationTags("nodes"))
}

// RegisterMaps registers import routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	huma.Post(api, "/api/v1/maps", h.ImportMap, huma.OperationTags("maps"), created)
	huma.Post(api, "/api/v1/geography/zip-codes", h.ImportZipCodes, huma.OperationTags("maps"))
}

// RegisterBaseMaps registers base map catalog routes.
func (h *APIHandler) RegisterBaseMaps(api huma.API) {
	huma.Get(api, "/api/v1/basemaps", h.GetBaseMaps, huma.OperationTags("views"))
}

// RegisterViews registers view session routes.
func (h *APIHandler) RegisterViews(api huma.API) {
	huma.Get(api, "/api/v1/views", h.GetViews, huma.OperationTags("views"))
	huma.Post(api, "/api/v1/views", h.CreateView, huma.OperationTags("views"), created)
	huma.Get(api, "/api/v1/views/{id}", h.GetView, huma.OperationTags("views"))
	huma.Put(api, "/api/v1/views/{id}", h.PutView, huma.OperationTags("views"))
	huma.Delete(api, "/api/v1/views/{id}", h.DeleteView, huma.OperationTags("views"))
	huma.Get(api, "/api/v1/views/{id}/style", h.GetViewStyle, huma.OperationTags("views"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) layerBodies(ctx context.Context) ([]LayerBody, error) {
	layers, err := h.svc.Layer.List(ctx)
	if err != nil {
		return nil, h.problem(err)
	}
	out := make([]LayerBody, len(layers))
	for i, l := range layers {
		out[i] = LayerBody{Layer: l, Top: i == len(layers)-1}
	}
	return out, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	layers, err := h.layerBodies(ctx)
	if err != nil {
		return nil, err
	}
	return &LayersOutput{Body: layers}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.CreateLayer }) (*LayerOutput, error) {
	layer, err := h.svc.Layer.Create(ctx, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &LayerOutput{Body: LayerBody{Layer: layer, Top: true}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *LayerIDInput) (*LayerOutput, error) {
	layers, err := h.layerBodies(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		if l.ID == input.ID {
			return &LayerOutput{Body: l}, nil
		}
	}
	return nil, huma.Error404NotFound("layer not found")
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *LayerIDInput) (*struct{}, error) {
	if err := h.svc.Layer.Delete(ctx, input.ID); err != nil {
		return nil, h.problem(err)
	}
	return nil, nil
}

func (h *APIHandler) GetNodes(ctx context.Context, input *struct {
	LayerIDInput
	humastar.PageInput
}) (*NodesOutput, error) {
	nodes, err := h.svc.Node.List(ctx, input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return &NodesOutput{Body: humastar.Page(nodes, input.PageInput)}, nil
}

func (h *APIHandler) CreateNode(ctx context.Context, input *struct{ Body service.CreateNode }) (*NodeOutput, error) {
	node, err := h.svc.Node.Create(ctx, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &NodeOutput{Body: node}, nil
}

func (h *APIHandler) GetNode(ctx context.Context, input *NodeIDInput) (*NodeOutput, error) {
	node, err := h.svc.Node.Get(ctx, input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return &NodeOutput{Body: node}, nil
}

func (h *APIHandler) UpdateNode(ctx context.Context, input *struct {
	NodeIDInput
	Body service.UpdateNode
}) (*NodeOutput, error) {
	node, err := h.svc.Node.Update(ctx, input.ID, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &NodeOutput{Body: node}, nil
}

func (h *APIHandler) BulkUpdateNodes(ctx context.Context, input *struct {
	Body []service.NodeUpdate
}) (*NodeListOutput, error) {
	nodes, err := h.svc.Node.BulkUpdate(ctx, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &NodeListOutput{Body: nodes}, nil
}

func (h *APIHandler) ImportMap(ctx context.Context, input *struct{ Body service.ImportMap }) (*ImportOutput, error) {
	res, err := h.svc.Import.Import(ctx, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &ImportOutput{Body: res}, nil
}

func (h *APIHandler) ImportZipCodes(ctx context.Context, input *GeographyInput) (*struct{ Body GeographyBody }, error) {
	n, err := h.svc.Geography.ImportGeoJSON(ctx, bytes.NewReader(input.RawBody), input.KeyProperty)
	if err != nil {
		return nil, h.problem(err)
	}
	total, err := h.svc.Geography.Count(ctx)
	if err != nil {
		return nil, h.problem(err)
	}
	return &struct{ Body GeographyBody }{Body: GeographyBody{Imported: n, Total: total}}, nil
}

func (h *APIHandler) GetBaseMaps(ctx context.Context, input *struct{}) (*BaseMapsOutput, error) {
	return &BaseMapsOutput{Body: h.svc.Reconciler.Catalog()}, nil
}

func (h *APIHandler) GetViews(ctx context.Context, input *struct{}) (*ViewsOutput, error) {
	return &ViewsOutput{Body: h.svc.View.List()}, nil
}

func (h *APIHandler) CreateView(ctx context.Context, input *struct{ Body mapview.ViewState }) (*ViewOutput, error) {
	v, err := h.svc.View.Create(input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &ViewOutput{Body: v}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *ViewIDInput) (*ViewOutput, error) {
	v, err := h.svc.View.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	return &ViewOutput{Body: v}, nil
}

func (h *APIHandler) PutView(ctx context.Context, input *struct {
	ViewIDInput
	Body mapview.ViewState
}) (*ViewOutput, error) {
	v, err := h.svc.View.Set(input.ID, input.Body)
	if err != nil {
		return nil, h.problem(err)
	}
	return &ViewOutput{Body: v}, nil
}

func (h *APIHandler) DeleteView(ctx context.Context, input *ViewIDInput) (*struct{}, error) {
	if err := h.svc.View.Delete(input.ID); err != nil {
		return nil, h.problem(err)
	}
	return nil, nil
}

// GetViewStyle reconciles the view onto a fresh surface and returns the
// resulting style document, ready to hand to a map client.
func (h *APIHandler) GetViewStyle(ctx context.Context, input *ViewIDInput) (*StyleOutput, error) {
	v, err := h.svc.View.Get(input.ID)
	if err != nil {
		return nil, h.problem(err)
	}
	surface := mapview.NewMemorySurface()
	if err := h.svc.Reconciler.Reconcile(surface, v.State); err != nil {
		return nil, h.problem(err)
	}
	return &StyleOutput{Body: surface.Style()}, nil
}

// problem maps service errors to HTTP problems.
func (h *APIHandler) problem(err error) error {
	switch {
	case errors.Is(err, service.ErrLayerNotFound),
		errors.Is(err, service.ErrNodeNotFound),
		errors.Is(err, service.ErrViewNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrLayerExists),
		errors.Is(err, service.ErrMapExists),
		errors.Is(err, service.ErrNotTopLayer):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalidNode),
		errors.Is(err, service.ErrInvalidImport),
		errors.Is(err, service.ErrInvalidGeometry),
		errors.Is(err, service.ErrInvalidZoom),
		errors.Is(err, service.ErrInvalidTile),
		errors.Is(err, mapview.ErrUnknownBaseMap),
		errors.Is(err, mapview.ErrDuplicateLayer):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, mapview.ErrSurfaceNotReady):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	h.log.Error("request failed", zap.Error(err))
	return huma.Error500InternalServerError("internal error")
}
