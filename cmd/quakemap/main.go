package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/quakemap/internal/api"
	"github.com/joeblew999/quakemap/internal/cache"
	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/quake"
	"github.com/joeblew999/quakemap/internal/server"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/visual"
)

// Options defines all CLI flags and env vars for the quakemap server.
// Every flag has a SERVICE_* env var, e.g. --mapbox-token / SERVICE_MAPBOX_TOKEN.
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8086"`
	FeedURL       string `doc:"USGS earthquake GeoJSON feed" default:"https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_month.geojson"`
	PlatesPath    string `doc:"Tectonic plate GeoJSON (local path or http(s) URL)" default:"data/PB2002_plates.json"`
	MapboxToken   string `doc:"Mapbox access token for the base layers"`
	BaseLayer     string `doc:"Initially visible base layer (satellite, grayscale, outdoors)" default:"satellite"`
	TemplatesDir  string `doc:"Override directory for page templates (empty uses the built-in ones)"`
	LogLevel      string `doc:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat     string `doc:"Log format (text, json)" default:"text"`
	FetchTimeout  int    `doc:"Upstream fetch timeout in seconds" default:"30"`
	DataDir       string `doc:"DuckDB directory (empty keeps the mirror in memory)"`
	NoDB          bool   `doc:"Disable the DuckDB mirror"`
	RedisAddr     string `doc:"Redis address for the payload cache (empty disables it)"`
	RedisPassword string `doc:"Redis password"`
	RedisDB       int    `doc:"Redis database number" default:"0"`
	CacheTTL      int    `doc:"Payload cache TTL in minutes" default:"60"`
}

func newLogger(opts *Options) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(opts.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

// app bundles everything the serve command owns.
type app struct {
	srv    *server.Server
	mapSvc *service.MapService
	store  *db.Store
	cache  *cache.RedisCache
	logger *slog.Logger
}

// newApp wires the services. withBackends=false skips DuckDB and Redis,
// which the spec export does not need.
func newApp(opts *Options, logger *slog.Logger, withBackends bool) (*app, error) {
	a := &app{logger: logger}

	var clientOpts []quake.Option
	if withBackends && opts.RedisAddr != "" {
		rc, err := cache.NewRedisCache(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, logger)
		if err != nil {
			logger.Warn("payload cache disabled", "addr", opts.RedisAddr, "error", err)
		} else {
			a.cache = rc
			clientOpts = append(clientOpts, quake.WithCache(rc, time.Duration(opts.CacheTTL)*time.Minute))
		}
	}
	client := quake.NewClient(time.Duration(opts.FetchTimeout)*time.Second, logger, clientOpts...)

	layers, err := service.NewLayerService(service.LayerOptions{
		AccessToken: opts.MapboxToken,
		DefaultBase: opts.BaseLayer,
	})
	if err != nil {
		return nil, err
	}

	var mirror service.Mirror
	if withBackends && !opts.NoDB {
		store, err := db.Open(db.Config{DataDir: opts.DataDir})
		if err != nil {
			logger.Warn("SQL mirror disabled", "error", err)
		} else {
			a.store = store
			mirror = store
		}
	}

	bus := service.NewEventBus()
	a.mapSvc = service.NewMapService(service.MapConfig{
		FeedURL:      opts.FeedURL,
		PlatesSource: opts.PlatesPath,
	}, client, layers, bus, mirror, logger)

	a.srv, err = server.New(server.Config{
		Host:         opts.Host,
		Port:         strconv.Itoa(opts.Port),
		TemplatesDir: opts.TemplatesDir,
	}, &api.Services{Map: a.mapSvc, Store: a.store}, bus, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("closing duckdb", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("closing redis", "error", err)
		}
	}
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := newLogger(opts)
		slog.SetDefault(logger)

		var (
			a       *app
			httpSrv *http.Server
		)

		hooks.OnStart(func() {
			var err error
			a, err = newApp(opts, logger, true)
			if err != nil {
				logger.Error("failed to start", "error", err)
				os.Exit(1)
			}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("quakemap server starting...\n")
			fmt.Printf("  Map:     %s/\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			// Fire-and-forget: the page is served while both datasets load.
			a.mapSvc.Start(context.Background())

			httpSrv = &http.Server{
				Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
				Handler:           a.srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("starting HTTP server", "addr", httpSrv.Addr, "feed", opts.FeedURL, "plates", opts.PlatesPath)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("shutdown signal received")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if httpSrv != nil {
				if err := httpSrv.Shutdown(ctx); err != nil {
					logger.Error("HTTP server shutdown error", "error", err)
				}
			}
			if a != nil {
				a.close()
			}
			logger.Info("shutdown complete")
		})
	})

	cli.Root().Use = "quakemap"
	cli.Root().Short = "Map of the past 30 days of earthquakes over tectonic plate boundaries"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			a, err := newApp(opts, newLogger(opts), false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			spec := a.srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Root().AddCommand(&cobra.Command{
		Use:   "legend",
		Short: "Print the depth color legend",
		Run: func(cmd *cobra.Command, args []string) {
			for _, e := range visual.BuildLegend() {
				fmt.Printf("%-12s %s\n", e.Label, e.Color)
			}
		},
	})

	cli.Root().AddCommand(&cobra.Command{
		Use:   "encode MAG DEPTH",
		Short: "Print the marker styling for a magnitude and depth (km)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mag, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid magnitude %q: %w", args[0], err)
			}
			depth, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid depth %q: %w", args[1], err)
			}
			out, err := json.MarshalIndent(visual.Encode(mag, depth), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	cli.Run()
}
