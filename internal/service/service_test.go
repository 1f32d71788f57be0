package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/quakemap/internal/quake"
	"github.com/joeblew999/quakemap/internal/visual"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLoader struct {
	feed     *quake.Feed
	feedErr  error
	plates   []quake.Plate
	plateErr error
	// plateGate, when set, blocks LoadPlates until closed.
	plateGate chan struct{}
}

func (s *stubLoader) FetchFeed(ctx context.Context, url string) (*quake.Feed, error) {
	return s.feed, s.feedErr
}

func (s *stubLoader) LoadPlates(ctx context.Context, source string) ([]quake.Plate, error) {
	if s.plateGate != nil {
		<-s.plateGate
	}
	return s.plates, s.plateErr
}

type recordingMirror struct {
	mu     sync.Mutex
	events []quake.Event
}

func (m *recordingMirror) Replace(ctx context.Context, events []quake.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = events
	return nil
}

func newTestService(t *testing.T, loader Loader, mirror Mirror) (*MapService, *EventBus) {
	t.Helper()
	layers, err := NewLayerService(LayerOptions{AccessToken: "pk.test"})
	if err != nil {
		t.Fatal(err)
	}
	bus := NewEventBus()
	return NewMapService(MapConfig{PlatesSource: "plates.json"}, loader, layers, bus, mirror, discardLogger()), bus
}

func sampleFeed() *quake.Feed {
	return &quake.Feed{
		Events: []quake.Event{
			{ID: "a", Magnitude: 4.5, DepthKm: 12, Place: "Alpha", Latitude: 35, Longitude: -117},
			{ID: "b", Magnitude: 6.0, DepthKm: 95, Place: "Bravo", Latitude: -20, Longitude: 178},
		},
		Invalid: []error{quake.ErrInvalidFeature},
	}
}

func samplePlates() []quake.Plate {
	return []quake.Plate{{Name: "Pacific", Geometry: orb.LineString{{-170, 10}, {-160, 20}}}}
}

func TestEncodeEarthquakes(t *testing.T) {
	fc := EncodeEarthquakes(sampleFeed().Events)
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(fc.Features))
	}

	tests := []struct {
		radius float64
		color  visual.Bucket
	}{
		{90000, visual.GreenYellow},
		{120000, visual.Red},
	}
	for i, tt := range tests {
		p := fc.Features[i].Properties
		if p["radius"] != tt.radius {
			t.Errorf("feature %d radius = %v, want %v", i, p["radius"], tt.radius)
		}
		if p["fillColor"] != string(tt.color) {
			t.Errorf("feature %d fillColor = %v, want %v", i, p["fillColor"], tt.color)
		}
		if p["fillOpacity"] != 0.75 {
			t.Errorf("feature %d fillOpacity = %v", i, p["fillOpacity"])
		}
	}

	pt, ok := fc.Features[0].Geometry.(orb.Point)
	if !ok || pt != (orb.Point{-117, 35}) {
		t.Errorf("geometry = %#v", fc.Features[0].Geometry)
	}
	if fc.Features[0].Properties["place"] != "Alpha" || fc.Features[0].ID != "a" {
		t.Errorf("unexpected feature: %+v", fc.Features[0])
	}
}

func TestEncodePlates(t *testing.T) {
	fc := EncodePlates(samplePlates())
	if len(fc.Features) != 1 || fc.Features[0].Properties["PlateName"] != "Pacific" {
		t.Fatalf("unexpected plates: %+v", fc.Features)
	}
	if _, ok := fc.Features[0].Geometry.(orb.LineString); !ok {
		t.Errorf("geometry changed type: %T", fc.Features[0].Geometry)
	}
}

func TestMapServiceLoad(t *testing.T) {
	mirror := &recordingMirror{}
	svc, _ := newTestService(t, &stubLoader{feed: sampleFeed(), plates: samplePlates()}, mirror)

	if _, ok := svc.Earthquakes(); ok {
		t.Fatal("earthquakes available before load")
	}

	svc.Load(context.Background())

	st := svc.Status()
	if !st.Earthquakes || !st.Plates {
		t.Fatalf("status = %+v", st)
	}
	if st.EarthquakeCount != 2 || st.SkippedCount != 1 || st.PlateCount != 1 {
		t.Errorf("counts = %+v", st)
	}
	if len(mirror.events) != 2 {
		t.Errorf("mirrored %d events, want 2", len(mirror.events))
	}
}

func TestMapServiceFeedFailureKeepsPlates(t *testing.T) {
	svc, bus := newTestService(t, &stubLoader{
		feedErr: errors.New("boom"),
		plates:  samplePlates(),
	}, nil)

	svc.Load(context.Background())

	if _, ok := svc.Earthquakes(); ok {
		t.Error("earthquakes should be absent")
	}
	if _, ok := svc.Plates(); !ok {
		t.Error("plates should be present")
	}

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	got := map[string]string{}
	for i := 0; i < 2; i++ {
		ev := <-ch
		got[ev.Resource] = ev.Action
	}
	if got[OverlayEarthquakes] != "failed" || got[OverlayPlates] != "loaded" {
		t.Errorf("events = %v", got)
	}
}

func TestMapServiceOverlaysLoadIndependently(t *testing.T) {
	gate := make(chan struct{})
	svc, bus := newTestService(t, &stubLoader{feed: sampleFeed(), plates: samplePlates(), plateGate: gate}, nil)

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		svc.Load(context.Background())
		close(done)
	}()

	select {
	case ev := <-ch:
		if ev.Resource != OverlayEarthquakes {
			t.Fatalf("first event = %+v, want earthquakes", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("earthquakes never loaded while plates were blocked")
	}
	if _, ok := svc.Plates(); ok {
		t.Error("plates available before their load finished")
	}

	close(gate)
	<-done

	if _, ok := svc.Plates(); !ok {
		t.Error("plates missing after load")
	}
}

func TestNewLayerService(t *testing.T) {
	layers, err := NewLayerService(LayerOptions{AccessToken: "pk.abc"})
	if err != nil {
		t.Fatal(err)
	}

	base := layers.BaseLayers()
	if len(base) != 3 {
		t.Fatalf("base layers = %d, want 3", len(base))
	}
	defaults := 0
	for _, l := range base {
		if l.Default {
			defaults++
		}
		if l.AccessToken != "pk.abc" || l.URL != MapboxURL {
			t.Errorf("layer %s not configured: %+v", l.ID, l)
		}
	}
	if defaults != 1 || !base[0].Default {
		t.Errorf("want satellite as the only default, got %+v", base)
	}

	if base[2].ID != "outdoors" || base[2].Style != "mapbox/outdoors-v12" {
		t.Errorf("outdoors layer = %+v", base[2])
	}

	view := layers.View()
	if view.Center != [2]float64{37.09, -95.71} || view.Zoom != 5 {
		t.Errorf("view center/zoom = %v/%d", view.Center, view.Zoom)
	}
	if view.Legend.Position != "bottomright" || len(view.Legend.Entries) != 6 {
		t.Errorf("legend = %+v", view.Legend)
	}
	if view.LayerControl.Collapsed {
		t.Error("layer control should start expanded")
	}
	if len(view.Overlays) != 2 || !view.Overlays[0].DefaultVisible || view.Overlays[1].DefaultVisible {
		t.Errorf("overlays = %+v", view.Overlays)
	}
}

func TestNewLayerServiceUnknownDefault(t *testing.T) {
	if _, err := NewLayerService(LayerOptions{DefaultBase: "terrain"}); err == nil {
		t.Error("expected error for unknown base layer")
	}
}

func TestEventBusReplaysLatest(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(Event{Resource: OverlayPlates, Action: "failed", ID: "1"})
	bus.Publish(Event{Resource: OverlayPlates, Action: "loaded", ID: "2"})

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	ev := <-ch
	if ev.ID != "2" || ev.Action != "loaded" {
		t.Errorf("replayed %+v, want latest", ev)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra event %+v", extra)
	default:
	}

	bus.Publish(Event{Resource: OverlayEarthquakes, Action: "loaded", ID: "3"})
	if ev := <-ch; ev.ID != "3" {
		t.Errorf("live event = %+v", ev)
	}
}

func TestEventBusConcurrentSubscribeGetsEventOnce(t *testing.T) {
	for i := 0; i < 200; i++ {
		bus := NewEventBus()
		subscribed := make(chan chan Event)
		go func() { subscribed <- bus.Subscribe() }()

		bus.Publish(Event{Resource: OverlayEarthquakes, Action: "loaded", ID: "x"})
		ch := <-subscribed

		n := 0
	drain:
		for {
			select {
			case <-ch:
				n++
			default:
				break drain
			}
		}
		if n != 1 {
			t.Fatalf("iteration %d: subscriber got %d events, want 1", i, n)
		}
	}
}
