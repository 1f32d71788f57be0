// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"math"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/quakemap/internal/db"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/visual"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Map   *service.MapService
	Store *db.Store // nil when the SQL mirror is disabled
}

// Types

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type InfoBody struct {
	Name    string         `json:"name" doc:"Service name"`
	Version string         `json:"version" doc:"Service version"`
	FeedURL string         `json:"feedUrl" doc:"Earthquake feed URL"`
	DB      bool           `json:"db" doc:"Whether the SQL mirror is available"`
	Status  service.Status `json:"status" doc:"Overlay availability"`
}

type EncodeInput struct {
	Mag   float64 `query:"mag" required:"true" doc:"Magnitude" example:"4.5"`
	Depth float64 `query:"depth" required:"true" doc:"Depth in kilometers" example:"12"`
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"Read-only SQL over the earthquakes table"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health and info routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

// RegisterOverlays registers the overlay GeoJSON routes.
func (h *APIHandler) RegisterOverlays(api huma.API) {
	huma.Get(api, "/api/v1/earthquakes", h.GetEarthquakes, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/plates", h.GetPlates, huma.OperationTags("overlays"))
}

// RegisterMap registers map composition routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/view", h.GetView, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/encode", h.GetEncode, huma.OperationTags("map"))
}

// RegisterStats registers the SQL mirror routes.
func (h *APIHandler) RegisterStats(api huma.API) {
	huma.Get(api, "/api/v1/stats", h.GetStats, huma.OperationTags("stats"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("stats"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:    "quakemap",
		Version: Version,
		FeedURL: h.svc.Map.FeedURL(),
		DB:      h.svc.Store != nil,
		Status:  h.svc.Map.Status(),
	}}, nil
}

func (h *APIHandler) GetEarthquakes(ctx context.Context, input *struct{}) (*struct{ Body *geojson.FeatureCollection }, error) {
	fc, ok := h.svc.Map.Earthquakes()
	if !ok {
		return nil, huma.Error503ServiceUnavailable("earthquake overlay not loaded")
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

func (h *APIHandler) GetPlates(ctx context.Context, input *struct{}) (*struct{ Body *geojson.FeatureCollection }, error) {
	fc, ok := h.svc.Map.Plates()
	if !ok {
		return nil, huma.Error503ServiceUnavailable("tectonic plate overlay not loaded")
	}
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *struct{}) (*struct{ Body service.View }, error) {
	return &struct{ Body service.View }{Body: h.svc.Map.View()}, nil
}

type LayersBody struct {
	Base     []service.TileLayer `json:"base" doc:"Mutually exclusive base layers"`
	Overlays []service.Overlay   `json:"overlays" doc:"Toggleable overlays"`
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body LayersBody }, error) {
	layers := h.svc.Map.Layers()
	return &struct{ Body LayersBody }{Body: LayersBody{
		Base:     layers.BaseLayers(),
		Overlays: layers.Overlays(),
	}}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *struct{}) (*struct{ Body []visual.LegendEntry }, error) {
	return &struct{ Body []visual.LegendEntry }{Body: visual.BuildLegend()}, nil
}

func (h *APIHandler) GetEncode(ctx context.Context, input *EncodeInput) (*struct{ Body visual.Encoding }, error) {
	if !finite(input.Mag) || !finite(input.Depth) {
		return nil, huma.Error422UnprocessableEntity("mag and depth must be finite numbers")
	}
	return &struct{ Body visual.Encoding }{Body: visual.Encode(input.Mag, input.Depth)}, nil
}

func (h *APIHandler) GetStats(ctx context.Context, input *struct{}) (*struct{ Body db.Stats }, error) {
	if h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	stats, err := h.svc.Store.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to compute stats", err)
	}
	return &struct{ Body db.Stats }{Body: stats}, nil
}

func (h *APIHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body db.Result }, error) {
	if h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	result, err := h.svc.Store.Query(ctx, input.Body.Query)
	if errors.Is(err, db.ErrNotReadOnly) {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	return &struct{ Body db.Result }{Body: result}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
