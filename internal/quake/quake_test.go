package quake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const sampleFeed = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "us7000abcd",
     "properties": {"mag": 4.5, "place": "10 km N of Somewhere", "time": 1700000000000, "url": "https://example.test/us7000abcd"},
     "geometry": {"type": "Point", "coordinates": [-117.5, 35.7, 12]}},
    {"type": "Feature", "id": "nc1",
     "properties": {"mag": null, "place": "no magnitude"},
     "geometry": {"type": "Point", "coordinates": [-122, 38, 5]}},
    {"type": "Feature", "id": "nc2",
     "properties": {"mag": -0.4, "place": "negative"},
     "geometry": {"type": "Point", "coordinates": [-122, 38, 5]}},
    {"type": "Feature", "id": "nc3",
     "properties": {"mag": 2.1, "place": "flat"},
     "geometry": {"type": "Point", "coordinates": [-122, 38]}},
    {"type": "Feature", "id": "ak9",
     "properties": {"mag": 6.0, "place": "Deep one"},
     "geometry": {"type": "Point", "coordinates": [178.1, -20.2, 95]}}
  ]
}`

const samplePlates = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"PlateName": "Africa"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,0]]]}},
    {"type": "Feature", "properties": {"PlateName": "Pacific"},
     "geometry": {"type": "LineString", "coordinates": [[-170,10],[-160,20]]}}
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFeed(t *testing.T) {
	feed, err := ParseFeed([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(feed.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(feed.Events))
	}
	if len(feed.Invalid) != 3 {
		t.Fatalf("invalid = %d, want 3", len(feed.Invalid))
	}
	for _, err := range feed.Invalid {
		if !errors.Is(err, ErrInvalidFeature) {
			t.Errorf("error %v does not wrap ErrInvalidFeature", err)
		}
	}

	ev := feed.Events[0]
	if ev.ID != "us7000abcd" || ev.Magnitude != 4.5 || ev.DepthKm != 12 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Longitude != -117.5 || ev.Latitude != 35.7 {
		t.Errorf("coordinates = %v,%v", ev.Longitude, ev.Latitude)
	}
	if ev.Place != "10 km N of Somewhere" {
		t.Errorf("place = %q", ev.Place)
	}
	if !ev.Time.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("time = %v", ev.Time)
	}
	if p := ev.Point(); p[0] != -117.5 || p[1] != 35.7 {
		t.Errorf("point = %v", p)
	}
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	for _, doc := range []string{`not json`, `{"type":"Feature"}`} {
		if _, err := ParseFeed([]byte(doc)); !errors.Is(err, ErrFetchFailure) {
			t.Errorf("ParseFeed(%q) err = %v, want ErrFetchFailure", doc, err)
		}
	}
}

func TestParsePlates(t *testing.T) {
	plates, err := ParsePlates([]byte(samplePlates))
	if err != nil {
		t.Fatalf("ParsePlates: %v", err)
	}
	if len(plates) != 2 {
		t.Fatalf("plates = %d, want 2", len(plates))
	}
	if plates[0].Name != "Africa" || plates[1].Name != "Pacific" {
		t.Errorf("names = %q, %q", plates[0].Name, plates[1].Name)
	}
	if plates[1].Geometry.GeoJSONType() != "LineString" {
		t.Errorf("geometry type = %s", plates[1].Geometry.GeoJSONType())
	}
}

func TestClientFetchFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, discardLogger())
	feed, err := c.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFeed: %v", err)
	}
	if len(feed.Events) != 2 {
		t.Errorf("events = %d, want 2", len(feed.Events))
	}
}

func TestClientFetchFeedBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, discardLogger())
	if _, err := c.FetchFeed(context.Background(), srv.URL); !errors.Is(err, ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestClientFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{}}
	c := NewClient(5*time.Second, discardLogger(), WithCache(cache, time.Hour))

	if _, err := c.FetchFeed(context.Background(), srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if cache.data[srv.URL] == nil {
		t.Fatal("payload was not cached")
	}

	fail.Store(true)
	feed, err := c.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if len(feed.Events) != 2 {
		t.Errorf("events = %d, want 2", len(feed.Events))
	}
}

func TestClientLoadPlatesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plates.json")
	if err := os.WriteFile(path, []byte(samplePlates), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(time.Second, discardLogger())
	plates, err := c.LoadPlates(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadPlates: %v", err)
	}
	if len(plates) != 2 {
		t.Errorf("plates = %d, want 2", len(plates))
	}

	if _, err := c.LoadPlates(context.Background(), filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, ErrFetchFailure) {
		t.Errorf("missing file err = %v, want ErrFetchFailure", err)
	}
}

func TestParseFeedSkipsMalformedFeatures(t *testing.T) {
	doc := `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "id": "ok",
	   "properties": {"mag": 3.2, "place": "Fine"},
	   "geometry": {"type": "Point", "coordinates": [10, 20, 30]}},
	  {"type": "Feature", "id": "numeric-place",
	   "properties": {"mag": 4.5, "place": 123, "url": false},
	   "geometry": {"type": "Point", "coordinates": [11, 21, 31]}},
	  {"type": "Feature", "id": "string-depth",
	   "properties": {"mag": 2.0, "place": "Odd"},
	   "geometry": {"type": "Point", "coordinates": [1, 2, "deep"]}}
	]}`

	feed, err := ParseFeed([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(feed.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(feed.Events))
	}
	if feed.Events[1].ID != "numeric-place" || feed.Events[1].Place != "" || feed.Events[1].URL != "" {
		t.Errorf("wrongly typed properties not dropped: %+v", feed.Events[1])
	}
	if len(feed.Invalid) != 1 || !errors.Is(feed.Invalid[0], ErrInvalidFeature) {
		t.Errorf("invalid = %v, want one ErrInvalidFeature", feed.Invalid)
	}
}

func TestParsePlatesIgnoresNonStringName(t *testing.T) {
	doc := `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {"PlateName": 7},
	   "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}}
	]}`
	plates, err := ParsePlates([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePlates: %v", err)
	}
	if len(plates) != 1 || plates[0].Name != "" {
		t.Errorf("plates = %+v", plates)
	}
}

func TestClientKeepsCacheOnGarbageBody(t *testing.T) {
	var garbage atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if garbage.Load() {
			io.WriteString(w, "<html>maintenance</html>")
			return
		}
		io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	cache := &memCache{data: map[string][]byte{}}
	c := NewClient(5*time.Second, discardLogger(), WithCache(cache, time.Hour))
	if _, err := c.FetchFeed(context.Background(), srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	garbage.Store(true)
	feed, err := c.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch with garbage body: %v", err)
	}
	if len(feed.Events) != 2 {
		t.Errorf("events = %d, want 2 from cache", len(feed.Events))
	}
	if string(cache.data[srv.URL]) != sampleFeed {
		t.Error("cached payload was overwritten")
	}
}

func TestClientTimeoutKeepsCause(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(5*time.Second, discardLogger())
	_, err := c.FetchFeed(ctx, srv.URL)
	if !errors.Is(err, ErrFetchFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrFetchFailure wrapping context.DeadlineExceeded", err)
	}
}
