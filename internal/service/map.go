package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/quakemap/internal/quake"
	"github.com/joeblew999/quakemap/internal/visual"
)

// Loader fetches the two map datasets.
type Loader interface {
	FetchFeed(ctx context.Context, url string) (*quake.Feed, error)
	LoadPlates(ctx context.Context, source string) ([]quake.Plate, error)
}

// Mirror receives every freshly loaded earthquake snapshot.
type Mirror interface {
	Replace(ctx context.Context, events []quake.Event) error
}

// MapConfig configures a MapService.
type MapConfig struct {
	FeedURL      string
	PlatesSource string
}

// MapService loads the earthquake feed and the plate overlay independently
// and serves the styled results. Either overlay may be missing when its
// load failed or has not finished.
type MapService struct {
	cfg    MapConfig
	loader Loader
	layers *LayerService
	bus    *EventBus
	mirror Mirror
	logger *slog.Logger

	mu      sync.RWMutex
	quakes  *geojson.FeatureCollection
	plates  *geojson.FeatureCollection
	skipped int
}

// NewMapService creates a map service. mirror may be nil.
func NewMapService(cfg MapConfig, loader Loader, layers *LayerService, bus *EventBus, mirror Mirror, logger *slog.Logger) *MapService {
	if cfg.FeedURL == "" {
		cfg.FeedURL = quake.DefaultFeedURL
	}
	return &MapService{
		cfg:    cfg,
		loader: loader,
		layers: layers,
		bus:    bus,
		mirror: mirror,
		logger: logger.With("component", "map_service"),
	}
}

// Start runs Load in the background.
func (s *MapService) Start(ctx context.Context) {
	go s.Load(ctx)
}

// Load fetches both datasets concurrently and waits for both to finish.
// A failure leaves only the affected overlay absent.
func (s *MapService) Load(ctx context.Context) {
	loadID := uuid.NewString()
	logger := s.logger.With("load_id", loadID)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.loadEarthquakes(ctx, loadID, logger)
	}()

	go func() {
		defer wg.Done()
		s.loadPlates(ctx, loadID, logger)
	}()

	wg.Wait()
}

func (s *MapService) loadEarthquakes(ctx context.Context, loadID string, logger *slog.Logger) {
	start := time.Now()
	feed, err := s.loader.FetchFeed(ctx, s.cfg.FeedURL)
	if err != nil {
		logger.Error("earthquake feed unavailable", "url", s.cfg.FeedURL, "error", err)
		s.publish(OverlayEarthquakes, "failed", loadID)
		return
	}

	for _, invalid := range feed.Invalid {
		logger.Warn("skipping feature", "error", invalid)
	}

	fc := EncodeEarthquakes(feed.Events)

	s.mu.Lock()
	s.quakes = fc
	s.skipped = len(feed.Invalid)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Replace(ctx, feed.Events); err != nil {
			logger.Error("failed to mirror earthquakes", "error", err)
		}
	}

	logger.Info("earthquakes loaded",
		"count", len(feed.Events),
		"skipped", len(feed.Invalid),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.publish(OverlayEarthquakes, "loaded", loadID)
}

func (s *MapService) loadPlates(ctx context.Context, loadID string, logger *slog.Logger) {
	plates, err := s.loader.LoadPlates(ctx, s.cfg.PlatesSource)
	if err != nil {
		logger.Error("plate overlay unavailable", "source", s.cfg.PlatesSource, "error", err)
		s.publish(OverlayPlates, "failed", loadID)
		return
	}

	fc := EncodePlates(plates)

	s.mu.Lock()
	s.plates = fc
	s.mu.Unlock()

	logger.Info("plates loaded", "count", len(plates))
	s.publish(OverlayPlates, "loaded", loadID)
}

func (s *MapService) publish(resource, action, id string) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: resource, Action: action, ID: id})
	}
}

// Earthquakes returns the styled earthquake overlay.
func (s *MapService) Earthquakes() (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quakes, s.quakes != nil
}

// Plates returns the tectonic plate overlay.
func (s *MapService) Plates() (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plates, s.plates != nil
}

// Status reports overlay availability.
func (s *MapService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Earthquakes:  s.quakes != nil,
		Plates:       s.plates != nil,
		SkippedCount: s.skipped,
	}
	if s.quakes != nil {
		st.EarthquakeCount = len(s.quakes.Features)
	}
	if s.plates != nil {
		st.PlateCount = len(s.plates.Features)
	}
	return st
}

// View returns the composed map description.
func (s *MapService) View() View {
	return s.layers.View()
}

// Layers returns the layer configuration.
func (s *MapService) Layers() *LayerService {
	return s.layers
}

// FeedURL returns the configured feed URL.
func (s *MapService) FeedURL() string {
	return s.cfg.FeedURL
}

// EncodeEarthquakes turns events into point features carrying their
// marker style and popup fields as properties.
func EncodeEarthquakes(events []quake.Event) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ev := range events {
		enc := visual.Encode(ev.Magnitude, ev.DepthKm)

		f := geojson.NewFeature(ev.Point())
		if ev.ID != "" {
			f.ID = ev.ID
		}
		f.Properties["place"] = ev.Place
		f.Properties["mag"] = ev.Magnitude
		f.Properties["depth"] = ev.DepthKm
		if !ev.Time.IsZero() {
			f.Properties["time"] = ev.Time.UnixMilli()
		}
		if ev.URL != "" {
			f.Properties["url"] = ev.URL
		}
		f.Properties["radius"] = enc.Radius
		f.Properties["fillColor"] = string(enc.FillColor)
		f.Properties["fillOpacity"] = enc.FillOpacity
		f.Properties["color"] = enc.StrokeColor
		f.Properties["weight"] = enc.StrokeWeight
		fc.Append(f)
	}
	return fc
}

// EncodePlates labels plate geometries; the geometry is not modified.
func EncodePlates(plates []quake.Plate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range plates {
		f := geojson.NewFeature(p.Geometry)
		f.Properties["PlateName"] = p.Name
		fc.Append(f)
	}
	return fc
}
