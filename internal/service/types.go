// Package service assembles the earthquake map: layer configuration,
// styled overlays and change notifications.
package service

import "github.com/joeblew999/quakemap/internal/visual"

// TileLayer is a mutually exclusive base map rendered from a templated
// tile URL.
type TileLayer struct {
	ID          string `json:"id" doc:"Unique layer identifier" example:"satellite"`
	Name        string `json:"name" doc:"Display name in the layer control" example:"Satellite"`
	URL         string `json:"url" doc:"Tile URL template" example:"https://api.mapbox.com/styles/v1/{style}/tiles/{z}/{x}/{y}?access_token={access_token}"`
	Style       string `json:"style" doc:"Provider style id substituted into {style}" example:"mapbox/satellite-v9"`
	Attribution string `json:"attribution" doc:"Attribution HTML"`
	AccessToken string `json:"accessToken,omitempty" doc:"Tile provider access token substituted into {access_token}"`
	Default     bool   `json:"default" doc:"Whether this base layer is shown initially"`
}

// Overlay is an independently toggleable vector layer.
type Overlay struct {
	ID             string     `json:"id" doc:"Unique overlay identifier" example:"earthquakes"`
	Name           string     `json:"name" doc:"Display name in the layer control" example:"Earthquakes"`
	Source         string     `json:"source" doc:"Path of the GeoJSON document backing the overlay" example:"/api/v1/earthquakes"`
	DefaultVisible bool       `json:"defaultVisible" doc:"Whether the overlay is shown initially"`
	Style          *LineStyle `json:"style,omitempty" doc:"Uniform style; absent when features carry their own"`
}

// LineStyle styles every feature of an overlay the same way.
type LineStyle struct {
	Color       string  `json:"color" doc:"Stroke color (CSS)" example:"orange"`
	FillOpacity float64 `json:"fillOpacity" minimum:"0" maximum:"1" doc:"Fill opacity (0-1)" example:"0"`
}

// LegendControl is the depth legend anchored to a map corner.
type LegendControl struct {
	Position string               `json:"position" enum:"topleft,topright,bottomleft,bottomright" doc:"Screen corner" example:"bottomright"`
	Entries  []visual.LegendEntry `json:"entries" doc:"Legend rows in ascending depth order"`
}

// LayerControl configures the base/overlay layer switcher.
type LayerControl struct {
	Collapsed bool `json:"collapsed" doc:"Whether the control starts collapsed"`
}

// View is everything the browser needs to build the map.
type View struct {
	Center       [2]float64    `json:"center" doc:"Initial center as [lat, lng]"`
	Zoom         int           `json:"zoom" minimum:"0" maximum:"22" doc:"Initial zoom level" example:"5"`
	BaseLayers   []TileLayer   `json:"baseLayers" doc:"Mutually exclusive base layers"`
	Overlays     []Overlay     `json:"overlays" doc:"Toggleable overlays"`
	Legend       LegendControl `json:"legend" doc:"Depth legend"`
	LayerControl LayerControl  `json:"layerControl" doc:"Layer switcher options"`
}

// Status reports which overlays have loaded.
type Status struct {
	Earthquakes     bool `json:"earthquakes" doc:"Whether the earthquake overlay is available"`
	Plates          bool `json:"plates" doc:"Whether the tectonic plate overlay is available"`
	EarthquakeCount int  `json:"earthquakeCount" doc:"Number of drawn earthquakes"`
	SkippedCount    int  `json:"skippedCount" doc:"Feed features skipped as invalid"`
	PlateCount      int  `json:"plateCount" doc:"Number of plate geometries"`
}
