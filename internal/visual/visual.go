// Package visual maps earthquake measurements onto marker styling and the
// matching map legend.
package visual

import "fmt"

// RadiusScale converts a magnitude into a marker radius in meters.
const RadiusScale = 20000

// Fixed marker styling shared by every earthquake marker.
const (
	FillOpacity  = 0.75
	StrokeColor  = "black"
	StrokeWeight = 0.5
)

// Bucket is a named fill color covering a half-open depth interval.
type Bucket string

const (
	Chartreuse  Bucket = "chartreuse"
	GreenYellow Bucket = "greenyellow"
	Yellow      Bucket = "yellow"
	Orange      Bucket = "orange"
	OrangeRed   Bucket = "orangered"
	Red         Bucket = "red"
)

// Buckets lists every color in ascending depth order.
var Buckets = []Bucket{Chartreuse, GreenYellow, Yellow, Orange, OrangeRed, Red}

// depthEdges are the exclusive upper edges of every bucket but the last.
var depthEdges = []float64{10, 30, 50, 70, 90}

// String implements fmt.Stringer.
func (b Bucket) String() string { return string(b) }

// Radius returns the marker radius for a magnitude. Non-positive
// magnitudes yield non-positive radii; callers decide whether to draw them.
func Radius(magnitude float64) float64 {
	return magnitude * RadiusScale
}

// ColorFor returns the bucket for a depth in kilometers. A depth equal to
// an edge falls into the next deeper bucket. Anything that fails every
// comparison, NaN included, is red.
func ColorFor(depthKm float64) Bucket {
	for i, edge := range depthEdges {
		if depthKm < edge {
			return Buckets[i]
		}
	}
	return Red
}

// Encoding is the full style of one earthquake marker.
type Encoding struct {
	Radius       float64 `json:"radius" doc:"Marker radius in meters" example:"90000"`
	FillColor    Bucket  `json:"fillColor" doc:"Fill color bucket" example:"greenyellow"`
	FillOpacity  float64 `json:"fillOpacity" doc:"Fill opacity (0-1)" example:"0.75"`
	StrokeColor  string  `json:"color" doc:"Stroke color (CSS)" example:"black"`
	StrokeWeight float64 `json:"weight" doc:"Stroke width in pixels" example:"0.5"`
}

// Encode derives the marker style from a magnitude and a depth.
func Encode(magnitude, depthKm float64) Encoding {
	return Encoding{
		Radius:       Radius(magnitude),
		FillColor:    ColorFor(depthKm),
		FillOpacity:  FillOpacity,
		StrokeColor:  StrokeColor,
		StrokeWeight: StrokeWeight,
	}
}

// LegendBoundaries are the lower bounds shown in the legend. The first
// value is a display bound only; ColorFor has no lower edge.
var LegendBoundaries = []float64{-10, 10, 30, 50, 70, 90}

// LegendEntry is one row of the depth legend.
type LegendEntry struct {
	LowerBound float64  `json:"lowerBound" doc:"Inclusive lower depth (km)" example:"10"`
	UpperBound *float64 `json:"upperBound,omitempty" doc:"Exclusive upper depth (km); absent when open-ended" example:"30"`
	Color      Bucket   `json:"color" doc:"Bucket color" example:"greenyellow"`
	Label      string   `json:"label" doc:"Display label" example:"10–30"`
}

// OpenEnded reports whether the entry has no upper bound.
func (e LegendEntry) OpenEnded() bool { return e.UpperBound == nil }

// BuildLegend returns one entry per legend boundary in ascending order,
// each colored exactly like a marker at its lower bound.
func BuildLegend() []LegendEntry {
	entries := make([]LegendEntry, 0, len(LegendBoundaries))
	for i, lower := range LegendBoundaries {
		entry := LegendEntry{LowerBound: lower, Color: ColorFor(lower)}
		if i+1 < len(LegendBoundaries) {
			upper := LegendBoundaries[i+1]
			entry.UpperBound = &upper
			entry.Label = fmt.Sprintf("%g–%g", lower, upper)
		} else {
			entry.Label = fmt.Sprintf("%g+", lower)
		}
		entries = append(entries, entry)
	}
	return entries
}
