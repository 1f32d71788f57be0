// Package quake reads the USGS earthquake feed and the tectonic plate
// boundary overlay into plain values.
package quake

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

var (
	// ErrFetchFailure wraps transport, status and decoding failures of a
	// feed or overlay request.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrInvalidFeature marks a feed feature that cannot be drawn.
	ErrInvalidFeature = errors.New("invalid feature")
)

// Event is one earthquake parsed from the feed. Depth is in kilometers,
// positive down.
type Event struct {
	ID        string    `json:"id"`
	Magnitude float64   `json:"mag"`
	DepthKm   float64   `json:"depth"`
	Place     string    `json:"place"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"time"`
	URL       string    `json:"url,omitempty"`
}

// Point returns the event's epicenter.
func (e Event) Point() orb.Point {
	return orb.Point{e.Longitude, e.Latitude}
}

// Plate is one tectonic plate boundary geometry with its display name.
type Plate struct {
	Name     string
	Geometry orb.Geometry
}
