package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-territory/internal/mapview"
)

type InfoHandler struct {
	dataDir    string
	reconciler *mapview.Reconciler
}

func NewInfoHandler(dataDir string, reconciler *mapview.Reconciler) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, reconciler: reconciler}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string                `json:"name" doc:"Service name"`
	Version  string                `json:"version" doc:"Service version"`
	DataDir  string                `json:"data_dir" doc:"Data directory path, empty for an in-memory store"`
	Strategy string                `json:"strategy" doc:"Layer reconcile strategy" enum:"toggle,remove"`
	BaseMaps []mapview.BaseMapName `json:"basemaps" doc:"Available base map styles"`
	Features []string              `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-territory",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		Strategy: h.reconciler.Strategy().String(),
		BaseMaps: h.reconciler.Catalog().Names(),
		Features: []string{"duckdb", "mvt", "map-import", "viewer-sse"},
	}}, nil
}
