package quake

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

// feedFeature mirrors one USGS feature. Coordinates are decoded by hand
// because orb.Point drops the third (depth) ordinate.
type feedFeature struct {
	ID         any                `json:"id"`
	Properties geojson.Properties `json:"properties"`
	Geometry   struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// feedCollection keeps features raw so one malformed feature only
// invalidates itself.
type feedCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// Feed is a parsed earthquake feed. Invalid holds one error per skipped
// feature, each wrapping ErrInvalidFeature.
type Feed struct {
	Events  []Event
	Invalid []error
}

// ParseFeed decodes a GeoJSON FeatureCollection. Features that cannot be
// drawn are skipped and reported in Feed.Invalid rather than failing the
// whole document.
func ParseFeed(data []byte) (*Feed, error) {
	var fc feedCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: decoding feed: %w", ErrFetchFailure, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: decoding feed: unexpected type %q", ErrFetchFailure, fc.Type)
	}

	feed := &Feed{Events: make([]Event, 0, len(fc.Features))}
	for i, raw := range fc.Features {
		var f feedFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			feed.Invalid = append(feed.Invalid, fmt.Errorf("feature %d: %w: %w", i, ErrInvalidFeature, err))
			continue
		}
		ev, err := f.event()
		if err != nil {
			feed.Invalid = append(feed.Invalid, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		feed.Events = append(feed.Events, ev)
	}
	return feed, nil
}

func (f feedFeature) event() (Event, error) {
	id := ""
	if f.ID != nil {
		id = fmt.Sprint(f.ID)
	}

	mag, ok := f.Properties["mag"].(float64)
	if !ok {
		return Event{}, fmt.Errorf("%w %s: missing magnitude", ErrInvalidFeature, id)
	}
	if mag < 0 {
		return Event{}, fmt.Errorf("%w %s: negative magnitude %g", ErrInvalidFeature, id, mag)
	}
	if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 3 {
		return Event{}, fmt.Errorf("%w %s: want point with depth, got %s/%d", ErrInvalidFeature, id,
			f.Geometry.Type, len(f.Geometry.Coordinates))
	}

	ev := Event{
		ID:        id,
		Magnitude: mag,
		Longitude: f.Geometry.Coordinates[0],
		Latitude:  f.Geometry.Coordinates[1],
		DepthKm:   f.Geometry.Coordinates[2],
		Place:     stringProp(f.Properties, "place"),
		URL:       stringProp(f.Properties, "url"),
	}
	if ms, ok := f.Properties["time"].(float64); ok {
		ev.Time = time.UnixMilli(int64(ms)).UTC()
	}
	return ev, nil
}

// ParsePlates decodes the tectonic plate overlay. Geometries pass through
// untouched; only PlateName is read.
func ParsePlates(data []byte) ([]Plate, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding plates: %w", ErrFetchFailure, err)
	}

	plates := make([]Plate, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		plates = append(plates, Plate{
			Name:     stringProp(f.Properties, "PlateName"),
			Geometry: f.Geometry,
		})
	}
	return plates, nil
}

// stringProp returns a string property, or "" when it is absent or not a string.
func stringProp(p geojson.Properties, key string) string {
	s, _ := p[key].(string)
	return s
}
