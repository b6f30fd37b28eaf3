package server

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-territory/internal/api"
	"github.com/joeblew999/plat-territory/internal/api/viewer"
	"github.com/joeblew999/plat-territory/internal/db"
	"github.com/joeblew999/plat-territory/internal/humastar"
	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/service"
	"github.com/joeblew999/plat-territory/internal/templates"
)

//go:embed web/viewer.html
var viewerHTML string

var viewerPage = template.Must(template.New("viewer").Parse(viewerHTML))

// Config holds the server configuration.
type Config struct {
	Host     string
	Port     string
	DataDir  string // empty for an in-memory store
	APIBase  string // public base URL used in tile URL templates
	Strategy mapview.Strategy
	Catalog  mapview.Catalog
	Log      *zap.Logger
}

// Server is the territory HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	links    humastar.Links
	log      *zap.Logger
}

// New opens the store and wires every route.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = mapview.DefaultCatalog()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = fmt.Sprintf("http://%s:%s", displayHost(cfg.Host), cfg.Port)
	}
	log := cfg.Log

	conn, err := db.Open(ctx, db.Config{DataDir: cfg.DataDir, DBName: "territory"})
	if err != nil {
		return nil, err
	}
	renderer, err := templates.New()
	if err != nil {
		conn.Close()
		return nil, err
	}

	bus := service.NewEventBus(log)
	reconciler := mapview.NewReconciler(cfg.Catalog, mapview.TileURLTemplate(cfg.APIBase),
		mapview.WithStrategy(cfg.Strategy), mapview.WithLogger(log.Named("reconciler")))
	views, err := service.NewViewService(cfg.DataDir, reconciler.Catalog, bus, log.Named("views"))
	if err != nil {
		conn.Close()
		return nil, err
	}
	// The catalog may have changed since the snapshot was written.
	if _, err := views.RetargetBaseMaps(); err != nil {
		conn.Close()
		return nil, err
	}
	layers := service.NewLayerService(conn, bus, log.Named("layers"))
	nodes := service.NewNodeService(conn, bus, log.Named("nodes"))
	services := &api.Services{
		Layer:      layers,
		Node:       nodes,
		Geography:  service.NewGeographyService(conn, bus, log.Named("geography")),
		Import:     service.NewMapImportService(conn, bus, log.Named("import")),
		Tile:       service.NewTileService(layers, nodes, log.Named("tiles")),
		View:       views,
		Reconciler: reconciler,
		Bus:        bus,
	}

	s := &Server{
		config:   cfg,
		mux:      http.NewServeMux(),
		db:       conn,
		services: services,
		renderer: renderer,
		links:    humastar.Links{},
		log:      log,
	}

	humaConfig := huma.DefaultConfig("plat-territory API", "1.0.0")
	humaConfig.Info.Description = "Territory map API: layer hierarchy, map import, vector tiles and view sessions."
	humaConfig.Servers = []*huma.Server{{URL: cfg.APIBase, Description: "Local server"}}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	return s, nil
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Reconciler returns the shared reconciler.
func (s *Server) Reconciler() *mapview.Reconciler { return s.services.Reconciler }

// Bus returns the change event bus.
func (s *Server) Bus() *service.EventBus { return s.services.Bus }

// Geography returns the zip code geography service.
func (s *Server) Geography() *service.GeographyService { return s.services.Geography }

// SetCatalog swaps the base map catalog, moves views off styles that left
// it and notifies open viewers.
func (s *Server) SetCatalog(c mapview.Catalog) {
	s.services.Reconciler.SetCatalog(c)
	if _, err := s.services.View.RetargetBaseMaps(); err != nil {
		s.log.Error("retargeting views", zap.Error(err))
	}
	s.services.Bus.Publish(service.Event{Resource: "basemaps", Action: "updated"})
}

// Close closes server resources.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services, s.log.Named("api"))
	api.NewInfoHandler(s.config.DataDir, s.services.Reconciler).RegisterRoutes(s.humaAPI)
	viewer.NewHandler(s.services.View, s.services.Layer, s.services.Reconciler, s.services.Bus,
		s.renderer, s.log.Named("viewer")).RegisterRoutes(s.humaAPI)

	maps.Copy(s.links, humastar.AutoLinks(s.humaAPI, "viewer"))

	s.mux.HandleFunc("/tiles/{layer}/{z}/{x}/{file}", s.handleTile)
	s.mux.HandleFunc("GET /viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-territory",
		"status":  "running",
	})
}

// handleViewer serves the map page for ?session=<id>, creating a session
// with the default state when none is given.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		v, err := s.services.View.Create(mapview.ViewState{})
		if err != nil {
			s.log.Error("creating view session", zap.Error(err))
			http.Error(w, "Failed to create view session", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/viewer?session="+v.ID, http.StatusSeeOther)
		return
	}
	if _, err := s.services.View.Get(session); err != nil {
		http.Error(w, "View session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewerPage.Execute(w, struct{ Session string }{session}); err != nil {
		s.log.Error("rendering viewer", zap.Error(err))
	}
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet, http.MethodHead:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, ok := strings.CutSuffix(r.PathValue("file"), ".pbf")
	if !ok {
		http.NotFound(w, r)
		return
	}
	var coords [4]int
	for i, v := range []string{r.PathValue("layer"), r.PathValue("z"), r.PathValue("x"), file} {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid tile coordinate: "+v, http.StatusBadRequest)
			return
		}
		coords[i] = n
	}

	data, err := s.services.Tile.Render(r.Context(), coords[0], coords[1], coords[2], coords[3])
	switch {
	case errors.Is(err, service.ErrLayerNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, service.ErrInvalidZoom), errors.Is(err, service.ErrInvalidTile):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error("rendering tile", zap.Ints("tile", coords[:]), zap.Error(err))
		http.Error(w, "Failed to render tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.Method == http.MethodGet {
		w.Write(data)
	}
}
