package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/quakemap/internal/api"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host         string
	Port         string
	TemplatesDir string // optional override of the built-in page templates
}

// Server is the quakemap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	bus      *service.EventBus
	renderer *templates.Renderer
	logger   *slog.Logger
}

// New creates a new server around already constructed services.
func New(cfg Config, services *api.Services, bus *service.EventBus, logger *slog.Logger) (*Server, error) {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("quakemap API", api.Version)
	humaConfig.Info.Description = "Earthquake map API: styled USGS feed, tectonic plate overlay, legend and layer configuration."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	renderer, err := templates.New(cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		bus:      bus,
		renderer: renderer,
		logger:   logger.With("component", "http"),
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

func (s *Server) routes() {
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))

	events := api.NewEventHandler(s.services.Map, s.bus, s.renderer)
	events.RegisterRoutes(s.humaAPI)

	s.mux.HandleFunc("GET /legend", s.handleLegend)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	status := s.services.Map.Status()
	ready := []string{}
	if status.Earthquakes {
		ready = append(ready, service.OverlayEarthquakes)
	}
	if status.Plates {
		ready = append(ready, service.OverlayPlates)
	}

	html, err := s.renderer.Render("page", templates.PageData{
		Title:  "Earthquakes of the past 30 days",
		View:   s.services.Map.View(),
		Status: status,
		Ready:  ready,
	})
	if err != nil {
		s.logger.Error("rendering page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	html, err := s.renderer.Render("legend", s.services.Map.View().Legend.Entries)
	if err != nil {
		s.logger.Error("rendering legend", "error", err)
		http.Error(w, "Failed to render legend", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
