package service

import (
	"fmt"

	"github.com/joeblew999/quakemap/internal/visual"
)

// MapboxURL is the styled tile template shared by every base layer.
const MapboxURL = "https://api.mapbox.com/styles/v1/{style}/tiles/{z}/{x}/{y}?access_token={access_token}"

const mapboxAttribution = "© <a href='https://www.mapbox.com/about/maps/'>Mapbox</a> " +
	"© <a href='http://www.openstreetmap.org/copyright'>OpenStreetMap</a> " +
	"<strong><a href='https://www.mapbox.com/map-feedback/' target='_blank'>Improve this map</a></strong>"

// Overlay IDs.
const (
	OverlayEarthquakes = "earthquakes"
	OverlayPlates      = "plates"
)

// LayerOptions configures the map layers.
type LayerOptions struct {
	AccessToken string
	DefaultBase string // ID of the initially visible base layer; defaults to satellite
	Center      [2]float64
	Zoom        int
}

// LayerService holds the base and overlay layer definitions. It is
// immutable after construction and safe for concurrent use.
type LayerService struct {
	base     []TileLayer
	overlays []Overlay
	center   [2]float64
	zoom     int
}

// NewLayerService builds the three Mapbox base layers and the two overlays.
func NewLayerService(opts LayerOptions) (*LayerService, error) {
	base := []TileLayer{
		{ID: "satellite", Name: "Satellite", Style: "mapbox/satellite-v9"},
		{ID: "grayscale", Name: "Grayscale", Style: "mapbox/dark-v11"},
		{ID: "outdoors", Name: "Outdoors", Style: "mapbox/outdoors-v12"},
	}

	defaultBase := opts.DefaultBase
	if defaultBase == "" {
		defaultBase = base[0].ID
	}
	found := false
	for i := range base {
		base[i].URL = MapboxURL
		base[i].Attribution = mapboxAttribution
		base[i].AccessToken = opts.AccessToken
		if base[i].ID == defaultBase {
			base[i].Default = true
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown base layer %q", defaultBase)
	}

	center := opts.Center
	if center == ([2]float64{}) {
		center = [2]float64{37.09, -95.71}
	}
	zoom := opts.Zoom
	if zoom == 0 {
		zoom = 5
	}

	return &LayerService{
		base: base,
		overlays: []Overlay{
			{ID: OverlayEarthquakes, Name: "Earthquakes", Source: "/api/v1/earthquakes", DefaultVisible: true},
			{
				ID: OverlayPlates, Name: "Tectonic Plates", Source: "/api/v1/plates",
				Style: &LineStyle{Color: "orange", FillOpacity: 0},
			},
		},
		center: center,
		zoom:   zoom,
	}, nil
}

// BaseLayers returns a copy of the base layers.
func (s *LayerService) BaseLayers() []TileLayer {
	return append([]TileLayer(nil), s.base...)
}

// Overlays returns a copy of the overlay definitions.
func (s *LayerService) Overlays() []Overlay {
	return append([]Overlay(nil), s.overlays...)
}

// View composes the full map description.
func (s *LayerService) View() View {
	return View{
		Center:     s.center,
		Zoom:       s.zoom,
		BaseLayers: s.BaseLayers(),
		Overlays:   s.Overlays(),
		Legend: LegendControl{
			Position: "bottomright",
			Entries:  visual.BuildLegend(),
		},
		LayerControl: LayerControl{Collapsed: false},
	}
}
