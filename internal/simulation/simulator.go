package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/rs/zerolog"
)

const (
	// DefaultTickInterval drives interpolation smoothness.
	DefaultTickInterval = 100 * time.Millisecond
	// syntheticAccuracyMeters is stamped on simulated fixes so they always
	// pass the sample filter's accuracy ceiling.
	syntheticAccuracyMeters = 5.0
)

// Config describes one simulation run. Either a decoded Path with at least
// two points or a straight Start→End segment.
type Config struct {
	Path                 []geo.LatLng
	Start                geo.LatLng
	End                  geo.LatLng
	SpeedMetersPerSecond float64
	SendToBackend        bool
	TickInterval         time.Duration
	// Observer receives each raw interpolated point, for presentation use.
	Observer func(geo.LatLng)
}

// FixSink receives the synthetic fixes. The lifecycle manager wires it to
// the same filter → dispatcher pipeline real fixes go through.
type FixSink func(models.PositionFix)

// Simulator generates synthetic position fixes by interpolating along a path
// at a configured speed. Progress is a function of elapsed time mapped onto
// the bracketing path segment, so motion stays smooth regardless of how
// densely the path is sampled.
type Simulator struct {
	sink   FixSink
	logger zerolog.Logger

	mu        sync.Mutex
	running   bool
	path      []geo.LatLng
	segLens   []float64
	totalLen  float64
	duration  time.Duration
	speed     float64
	startedAt time.Time
	progress  float64
	toBackend bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulator creates a Simulator feeding the given sink.
func NewSimulator(sink FixSink, logger zerolog.Logger) *Simulator {
	return &Simulator{
		sink:   sink,
		logger: logger,
	}
}

// Start begins a simulation run. A run already in progress is stopped first;
// at most one simulation runs per session.
func (s *Simulator) Start(cfg Config) error {
	if cfg.SpeedMetersPerSecond <= 0 {
		return errors.New("simulation speed must be positive")
	}

	path := cfg.Path
	if len(path) < 2 {
		// Degrade to a single straight segment. This also covers malformed
		// polylines that decoded to an empty path.
		path = []geo.LatLng{cfg.Start, cfg.End}
	}

	totalLen := geo.PathLength(path)
	if totalLen <= 0 {
		return errors.New("simulation path has zero length")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		if err := s.Stop(); err != nil {
			return err
		}
		s.mu.Lock()
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	s.path = path
	s.segLens = geo.SegmentLengths(path)
	s.totalLen = totalLen
	s.speed = cfg.SpeedMetersPerSecond
	s.duration = time.Duration(totalLen / cfg.SpeedMetersPerSecond * float64(time.Second))
	s.startedAt = time.Now()
	s.progress = 0
	s.toBackend = cfg.SendToBackend
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTickLoop(tick, cfg.Observer)
	}()

	s.logger.Info().
		Int("path_points", len(path)).
		Float64("length_m", totalLen).
		Float64("speed_mps", cfg.SpeedMetersPerSecond).
		Dur("duration", s.duration).
		Bool("send_to_backend", cfg.SendToBackend).
		Msg("Simulation started")
	return nil
}

// Stop halts the tick timer immediately. It does not flush the buffer; the
// caller flushes explicitly if needed. Stopping an idle simulator is a no-op
// because runs also end on their own at the final point.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Simulation stopped")
	return nil
}

// Running reports whether a simulation run is in progress.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// State returns a snapshot of the current run.
func (s *Simulator) State() models.SimulationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SimulationState{
		Path:                 s.path,
		StartedAt:            s.startedAt,
		SpeedMetersPerSecond: s.speed,
		Progress:             s.progress,
		SendToBackend:        s.toBackend,
	}
}

// PointAt returns the interpolated position for an elapsed-time fraction of
// the run, clamped to [0,1].
func (s *Simulator) PointAt(frac float64) geo.LatLng {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geo.PointAtFraction(s.path, s.segLens, s.totalLen, frac)
}

func (s *Simulator) runTickLoop(tick time.Duration, observer func(geo.LatLng)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.mu.Lock()
			frac := now.Sub(s.startedAt).Seconds() / s.duration.Seconds()
			if frac > 1 {
				frac = 1
			}
			if frac < 0 {
				frac = 0
			}
			s.progress = frac
			point := geo.PointAtFraction(s.path, s.segLens, s.totalLen, frac)
			done := frac >= 1
			if done {
				// Snap exactly to the final point before finishing.
				point = s.path[len(s.path)-1]
				s.running = false
			}
			s.mu.Unlock()

			s.emit(point, now, observer)

			if done {
				s.cancel()
				s.logger.Info().Msg("Simulation reached the final point")
				return
			}
		case <-s.ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

func (s *Simulator) emit(point geo.LatLng, at time.Time, observer func(geo.LatLng)) {
	if s.sink != nil {
		s.sink(models.PositionFix{
			Latitude:       point.Lat,
			Longitude:      point.Lng,
			AccuracyMeters: syntheticAccuracyMeters,
			CapturedAt:     at,
			Simulated:      true,
		})
	}
	if observer != nil {
		observer(point)
	}
}
