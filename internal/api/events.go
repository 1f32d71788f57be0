package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/quakemap/internal/humastar"
	"github.com/joeblew999/quakemap/internal/service"
	"github.com/joeblew999/quakemap/internal/templates"
	"github.com/joeblew999/quakemap/internal/visual"
)

// EventHandler streams overlay availability to the map page via SSE.
type EventHandler struct {
	humastar.Handler
	mapService *service.MapService
	bus        *service.EventBus
}

// NewEventHandler creates a new event handler.
func NewEventHandler(mapService *service.MapService, bus *service.EventBus, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler:    humastar.Handler{Renderer: renderer},
		mapService: mapService,
		bus:        bus,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events,
		huma.OperationTags("map"),
	)
}

// Events patches the legend once, then the overlay status and an
// "overlay-loaded" browser event for every overlay that finishes loading.
func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		sse.Patch(h.Render("legend", visual.BuildLegend()), "#legend")

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				sse.Patch(h.Render("overlay-status", h.mapService.Status()), "#overlay-status")
				if ev.Action != "loaded" {
					sse.Error(ev.Resource + " overlay unavailable")
					continue
				}
				sse.DispatchCustomEvent("overlay-loaded", map[string]any{
					"resource": ev.Resource,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}
