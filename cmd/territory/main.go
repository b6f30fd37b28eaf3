package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/server"
	"github.com/joeblew999/plat-territory/internal/service"
)

// Options defines all CLI flags and env vars for the territory server.
// Flags: --host, --port, --data-dir, --api-base, --catalog, --strategy, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory for the map store and view sessions" default:".data"`
	APIBase  string `doc:"Public base URL used in tile URLs (default http://<host>:<port>)"`
	Catalog  string `doc:"Base map catalog file (.yaml or .toml), watched for changes"`
	Strategy string `doc:"Layer reconcile strategy: toggle or remove" default:"toggle"`
	LogLevel string `doc:"Log level: debug, info, warn, error" default:"info"`
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func loadCatalog(opts *Options) (mapview.Catalog, error) {
	if opts.Catalog == "" {
		return mapview.DefaultCatalog(), nil
	}
	return mapview.LoadCatalog(opts.Catalog)
}

func newServer(ctx context.Context, opts *Options, log *zap.Logger) (*server.Server, error) {
	strategy, err := mapview.ParseStrategy(opts.Strategy)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(opts)
	if err != nil {
		return nil, err
	}
	return server.New(ctx, server.Config{
		Host:     opts.Host,
		Port:     strconv.Itoa(opts.Port),
		DataDir:  opts.DataDir,
		APIBase:  opts.APIBase,
		Strategy: strategy,
		Catalog:  catalog,
		Log:      log,
	})
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})

		hooks.OnStart(func() {
			defer close(stopped)
			log, err := newLogger(opts.LogLevel)
			if err != nil {
				fatal("Error", err)
			}
			defer log.Sync()

			srv, err := newServer(ctx, opts, log)
			if err != nil {
				fatal("Error starting server", err)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			httpServer := &http.Server{Addr: addr, Handler: srv}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("listening", zap.String("addr", addr), zap.String("data", opts.DataDir))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				return httpServer.Shutdown(shutdownCtx)
			})
			if opts.Catalog != "" {
				g.Go(func() error {
					return mapview.WatchCatalog(gctx, opts.Catalog, log.Named("catalog"), srv.SetCatalog)
				})
			}

			if err := g.Wait(); err != nil {
				log.Error("server stopped", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			cancel()
			<-stopped
		})
	})

	cli.Root().Use = "territory"
	cli.Root().Short = "Territory mapping server: layer hierarchy, vector tiles and live map views"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), styleCommand(), importZipsCommand())
	cli.Run()
}

// specCommand exports the OpenAPI document.
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			// An in-memory store is enough to describe the API.
			opts.DataDir = ""
			srv, err := newServer(cmd.Context(), opts, zap.NewNop())
			if err != nil {
				fatal("Error", err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			var output []byte
			if useYAML {
				output, err = yaml.Marshal(srv.OpenAPI())
			} else {
				output, err = json.MarshalIndent(srv.OpenAPI(), "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec", err)
			}
			fmt.Println(string(output))
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// styleCommand prints the MapLibre style for a view state without a server.
func styleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "style",
		Short: "Print the map style for a base map and layer flags",
		Example: `  territory style --basemap dark --layer 2:fill,outline --layer 3:label
  territory style --basemap none --layer 1:fill --strategy remove`,
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			basemap, _ := cmd.Flags().GetString("basemap")
			layerFlags, _ := cmd.Flags().GetStringArray("layer")

			style, err := renderStyle(opts, basemap, layerFlags)
			if err != nil {
				fatal("Error", err)
			}
			out, err := json.MarshalIndent(style, "", "  ")
			if err != nil {
				fatal("Error marshaling style", err)
			}
			fmt.Println(string(out))
		}),
	}
	cmd.Flags().StringP("basemap", "b", "osm", "Base map style name, or none")
	cmd.Flags().StringArrayP("layer", "l", nil, "Feature layer as <id>:<fill,outline,label> (repeatable)")
	return cmd
}

func renderStyle(opts *Options, basemap string, layerFlags []string) (mapview.Style, error) {
	strategy, err := mapview.ParseStrategy(opts.Strategy)
	if err != nil {
		return mapview.Style{}, err
	}
	catalog, err := loadCatalog(opts)
	if err != nil {
		return mapview.Style{}, err
	}
	state := mapview.ViewState{BaseMap: mapview.BaseMapName(basemap)}
	for _, f := range layerFlags {
		l, err := parseLayerFlag(f)
		if err != nil {
			return mapview.Style{}, err
		}
		state.Layers = append(state.Layers, l)
	}

	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = fmt.Sprintf("http://localhost:%d", opts.Port)
	}
	rec := mapview.NewReconciler(catalog, mapview.TileURLTemplate(apiBase), mapview.WithStrategy(strategy))
	surface := mapview.NewMemorySurface()
	surface.SetReady(true)
	if err := rec.Reconcile(surface, state); err != nil {
		return mapview.Style{}, err
	}
	return surface.Style(), nil
}

// importZipsCommand loads zip code geography into the store.
func importZipsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-zips <file-or-dir>",
		Short: "Load zip code polygons from a GeoJSON file or a directory of them",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			key, _ := cmd.Flags().GetString("key")
			log, err := newLogger(opts.LogLevel)
			if err != nil {
				fatal("Error", err)
			}
			defer log.Sync()

			srv, err := newServer(cmd.Context(), opts, log)
			if err != nil {
				fatal("Error opening store", err)
			}
			defer srv.Close()

			n, err := importZips(cmd.Context(), srv.Geography(), args[0], key)
			if err != nil {
				fatal("Error importing zip codes", err)
			}
			fmt.Printf("Imported %d zip code areas from %s\n", n, args[0])
		}),
	}
	cmd.Flags().StringP("key", "k", service.ZipCodeProperty, "Feature property holding the zip code")
	return cmd
}

func importZips(ctx context.Context, geo *service.GeographyService, path, key string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return geo.ImportDir(ctx, path, key)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return geo.ImportGeoJSON(ctx, f, key)
}
