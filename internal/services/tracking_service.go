package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ridetrack/telemetry-agent/internal/appstate"
	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/internal/simulation"
	"github.com/ridetrack/telemetry-agent/internal/telemetry"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/ridetrack/telemetry-agent/pkg/position"
	"github.com/rs/zerolog"
)

// TrackingState is the lifecycle manager's state.
type TrackingState string

const (
	StateIdle     TrackingState = "Idle"
	StateStarting TrackingState = "Starting"
	StateRunning  TrackingState = "Running"
	StateStopping TrackingState = "Stopping"
)

const finalFlushTimeout = 2 * time.Second

// SampleDispatcher is the buffer and batch dispatcher surface the lifecycle
// manager drives. Satisfied by telemetry.Dispatcher; mocked in tests.
type SampleDispatcher interface {
	Start() error
	Stop() error
	RecordSample(point models.TelemetryPoint)
	Flush(ctx context.Context) error
	ForceFlush(ctx context.Context) error
	Len() int
	LastFlushAt() time.Time
	SetSendToBackend(send bool)
	SetSimulated(simulated bool)
}

// RoutePlan carries the ride's pickup and dropoff points and, when the
// backend supplied one, the encoded path between them. The degraded
// simulation fallback and the phase policy both derive from it.
type RoutePlan struct {
	Pickup      geo.LatLng
	Dropoff     geo.LatLng
	EncodedPath string
}

type pendingStart struct {
	rideID string
	route  *RoutePlan
}

// TrackingService is the lifecycle manager for ride location tracking. It
// owns the one active TrackingSession, keeps sampling alive across app-state
// transitions, and degrades to simulated positioning when the device cannot
// supply fixes.
type TrackingService struct {
	// Configuration fields
	samplingInterval time.Duration
	degradedSpeedMPS float64

	// Dependencies
	provider         position.Provider
	fallbackProvider position.Provider
	newDispatcher    func(rideID string) SampleDispatcher
	filter           *telemetry.Filter
	appSource        appstate.Source
	indicator        appstate.Indicator
	notifier         appstate.Notifier
	logger           zerolog.Logger

	simulator *simulation.Simulator

	// Session state
	mu          sync.Mutex
	state       TrackingState
	session     *models.TrackingSession
	dispatcher  SampleDispatcher
	pending     *pendingStart
	phasePolicy *telemetry.PhasePolicy
	lastFix     geo.LatLng
	lastTickAt  time.Time

	// Sampling loop control
	sampleCancel context.CancelFunc
	sampleWg     sync.WaitGroup

	// App-state watcher control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTrackingService creates a TrackingService. The fallback provider may be
// nil when no reduced-precision source is configured.
func NewTrackingService(samplingInterval time.Duration, degradedSpeedMPS float64,
	provider, fallbackProvider position.Provider,
	newDispatcher func(rideID string) SampleDispatcher, filter *telemetry.Filter,
	appSource appstate.Source, indicator appstate.Indicator, notifier appstate.Notifier,
	logger zerolog.Logger) *TrackingService {

	if samplingInterval <= 0 {
		samplingInterval = 5 * time.Second
	}
	if degradedSpeedMPS <= 0 {
		degradedSpeedMPS = 8.0
	}

	t := &TrackingService{
		samplingInterval: samplingInterval,
		degradedSpeedMPS: degradedSpeedMPS,
		provider:         provider,
		fallbackProvider: fallbackProvider,
		newDispatcher:    newDispatcher,
		filter:           filter,
		appSource:        appSource,
		indicator:        indicator,
		notifier:         notifier,
		logger:           logger,
		state:            StateIdle,
	}
	t.simulator = simulation.NewSimulator(t.ingestFix, logger)
	return t
}

// Start launches the app-state watcher. Ride tracking itself begins with
// StartRide.
func (t *TrackingService) Start() error {
	if t.ctx != nil {
		t.logger.Warn().Msg("TrackingService is already running")
		return errors.New("tracking service is already running")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.watchAppState()
	}()

	t.logger.Info().Msg("TrackingService started")
	return nil
}

// Stop ends the active ride session, if any, and shuts down the watcher.
func (t *TrackingService) Stop() error {
	if t.ctx == nil {
		t.logger.Warn().Msg("TrackingService is not running")
		return errors.New("tracking service is not running")
	}

	if err := t.StopRide(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to stop active ride session")
	}

	t.cancel()
	t.wg.Wait()

	t.ctx = nil
	t.cancel = nil

	t.logger.Info().Msg("TrackingService stopped")
	return nil
}

// StartRide begins tracking for a ride. While the app is backgrounded the
// request is recorded as pending and a local notification advises the user
// to foreground the app; sampling begins on the next foreground transition.
// Any session for a different ride is stopped first.
func (t *TrackingService) StartRide(rideID string, route *RoutePlan) error {
	if t.appSource.Current() == appstate.Background {
		t.mu.Lock()
		t.pending = &pendingStart{rideID: rideID, route: route}
		t.mu.Unlock()

		if err := t.notifier.Advise("Open the app to start ride tracking"); err != nil {
			t.logger.Error().Err(err).Msg("Failed to post pending-start notification")
		}
		t.logger.Info().Str("ride_id", rideID).Msg("App backgrounded, tracking start recorded as pending")
		return nil
	}

	t.mu.Lock()
	if t.session != nil && t.session.IsActive {
		if t.session.RideID == rideID && t.state == StateRunning {
			t.mu.Unlock()
			t.logger.Info().Str("ride_id", rideID).Msg("Tracking already running for ride")
			return nil
		}
		t.mu.Unlock()
		t.logger.Info().Str("ride_id", rideID).Msg("Stopping previous session before starting new ride")
		if err := t.StopRide(); err != nil {
			t.logger.Error().Err(err).Msg("Failed to stop previous session")
		}
		t.mu.Lock()
	}
	t.state = StateStarting
	t.mu.Unlock()

	session := &models.TrackingSession{
		SessionID: uuid.New().String(),
		RideID:    rideID,
		IsActive:  true,
		StartedAt: time.Now(),
	}

	dispatcher := t.newDispatcher(rideID)
	if err := dispatcher.Start(); err != nil {
		t.setIdle()
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	var policy *telemetry.PhasePolicy
	if route != nil {
		policy = telemetry.NewPhasePolicy(route.Pickup, route.Dropoff, t.logger)
	}

	provider, degraded, err := t.selectProvider()
	if err != nil {
		// Device positioning is unavailable even at reduced precision. With
		// a known path, simulated motion keeps downstream consumers fed;
		// the session and every outgoing batch are marked so analytics can
		// tell the trace is synthetic.
		if route == nil {
			_ = dispatcher.Stop()
			t.setIdle()
			return fmt.Errorf("positioning unavailable and no route to simulate: %w", err)
		}

		session.Degraded = true
		dispatcher.SetSimulated(true)

		t.mu.Lock()
		t.session = session
		t.dispatcher = dispatcher
		t.phasePolicy = policy
		t.state = StateRunning
		t.mu.Unlock()

		if simErr := t.startDegradedSimulation(route); simErr != nil {
			_ = dispatcher.Stop()
			t.setIdle()
			return fmt.Errorf("positioning unavailable and simulation fallback failed: %w", errors.Join(err, simErr))
		}

		if err := t.indicator.Show(rideID); err != nil {
			t.logger.Error().Err(err).Msg("Failed to show persistent-activity indicator")
		}

		t.logger.Warn().
			Err(err).
			Str("ride_id", rideID).
			Msg("Device positioning unavailable, running degraded simulated tracking")
		return nil
	}

	t.mu.Lock()
	t.session = session
	t.dispatcher = dispatcher
	t.phasePolicy = policy
	t.state = StateRunning
	t.mu.Unlock()

	if degraded {
		t.logger.Warn().Str("ride_id", rideID).Msg("Sampling from reduced-precision provider")
	}

	if err := t.indicator.Show(rideID); err != nil {
		t.logger.Error().Err(err).Msg("Failed to show persistent-activity indicator")
	}

	t.startSampling(provider)

	t.logger.Info().
		Str("ride_id", rideID).
		Str("session_id", session.SessionID).
		Dur("interval", t.samplingInterval).
		Msg("Ride tracking started")
	return nil
}

// StopRide stops sampling and simulation, forces a best-effort final flush
// with a short timeout, dismisses the indicator and returns to Idle. A
// failed final flush is logged, never allowed to block shutdown.
func (t *TrackingService) StopRide() error {
	t.mu.Lock()
	if t.session == nil || !t.session.IsActive {
		t.mu.Unlock()
		return nil
	}
	t.state = StateStopping
	dispatcher := t.dispatcher
	session := t.session
	t.mu.Unlock()

	t.stopSampling()
	if err := t.simulator.Stop(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to stop simulation")
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	if err := dispatcher.ForceFlush(ctx); err != nil {
		t.logger.Warn().
			Err(err).
			Int("buffered", dispatcher.Len()).
			Msg("Final flush did not complete, points remain undelivered")
	}

	if err := dispatcher.Stop(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to stop dispatcher")
	}
	if err := t.indicator.Dismiss(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to dismiss persistent-activity indicator")
	}

	t.mu.Lock()
	session.IsActive = false
	session.LastFlushAt = dispatcher.LastFlushAt()
	t.dispatcher = nil
	t.phasePolicy = nil
	t.state = StateIdle
	t.mu.Unlock()

	t.logger.Info().Str("ride_id", session.RideID).Msg("Ride tracking stopped")
	return nil
}

// ForceFlush pushes buffered points out immediately, e.g. right after a
// phase transition. The ride-status gate still applies.
func (t *TrackingService) ForceFlush(ctx context.Context) error {
	t.mu.Lock()
	dispatcher := t.dispatcher
	t.mu.Unlock()

	if dispatcher == nil {
		return errors.New("no active tracking session")
	}
	return dispatcher.ForceFlush(ctx)
}

// StartSimulation runs the path simulator against the active session's
// pipeline, for replay or demonstration. Real and simulated sampling are
// mutually exclusive, so the real sampling loop is stopped first. With
// SendToBackend false the buffer accumulates without touching the network
// until a ForceFlush.
func (t *TrackingService) StartSimulation(cfg simulation.Config) error {
	t.mu.Lock()
	dispatcher := t.dispatcher
	t.mu.Unlock()

	if dispatcher == nil {
		return errors.New("no active tracking session")
	}

	t.stopSampling()
	dispatcher.SetSimulated(true)
	dispatcher.SetSendToBackend(cfg.SendToBackend)

	return t.simulator.Start(cfg)
}

// StopSimulation halts a running simulation. The buffer is left as-is; the
// caller flushes explicitly if needed.
func (t *TrackingService) StopSimulation() error {
	return t.simulator.Stop()
}

// Simulation returns a snapshot of the current simulation run.
func (t *TrackingService) Simulation() models.SimulationState {
	return t.simulator.State()
}

// EvaluatePhase recomputes the ride phase and proximity flags from the given
// status and the last sampled position.
func (t *TrackingService) EvaluatePhase(status models.RideStatus) (telemetry.PhaseState, error) {
	t.mu.Lock()
	policy := t.phasePolicy
	current := t.lastFix
	t.mu.Unlock()

	if policy == nil {
		return telemetry.PhaseState{}, errors.New("no route plan for active session")
	}
	return policy.Evaluate(status, current), nil
}

// Session returns a copy of the active session, if any.
func (t *TrackingService) Session() (models.TrackingSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return models.TrackingSession{}, false
	}
	return *t.session, t.session.IsActive
}

// State returns the lifecycle state, reported as PendingStart while a start
// request waits for the app to foreground.
func (t *TrackingService) State() TrackingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return "PendingStart"
	}
	return t.state
}

// selectProvider verifies device positioning by taking one fix from the
// primary provider, retrying once on the reduced-precision fallback.
func (t *TrackingService) selectProvider() (position.Provider, bool, error) {
	if _, err := t.provider.GetLocation(); err == nil {
		return t.provider, false, nil
	} else if t.fallbackProvider == nil {
		return nil, false, fmt.Errorf("position provider unavailable: %w", err)
	} else {
		t.logger.Warn().Err(err).Msg("Primary position provider failed, retrying at reduced precision")
	}

	if _, err := t.fallbackProvider.GetLocation(); err != nil {
		return nil, false, fmt.Errorf("reduced-precision provider unavailable: %w", err)
	}
	return t.fallbackProvider, true, nil
}

func (t *TrackingService) startDegradedSimulation(route *RoutePlan) error {
	path := geo.DecodePolyline(route.EncodedPath, geo.DefaultPolylinePrecision)
	return t.simulator.Start(simulation.Config{
		Path:                 path,
		Start:                route.Pickup,
		End:                  route.Dropoff,
		SpeedMetersPerSecond: t.degradedSpeedMPS,
		SendToBackend:        true,
	})
}

// startSampling launches the periodic sampling loop for the chosen provider.
func (t *TrackingService) startSampling(provider position.Provider) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.sampleCancel = cancel
	t.lastTickAt = time.Now()
	t.mu.Unlock()

	t.sampleWg.Add(1)
	go func() {
		defer t.sampleWg.Done()
		t.runSamplingLoop(ctx, provider)
	}()
}

func (t *TrackingService) stopSampling() {
	t.mu.Lock()
	cancel := t.sampleCancel
	t.sampleCancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		t.sampleWg.Wait()
	}
}

// runSamplingLoop takes one fix per tick. A failed read is logged and
// skipped; one bad fix must never stop tracking.
func (t *TrackingService) runSamplingLoop(ctx context.Context, provider position.Provider) {
	ticker := time.NewTicker(t.samplingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = time.Now()
			t.mu.Unlock()

			loc, err := provider.GetLocation()
			if err != nil {
				t.logger.Error().Err(err).Msg("Failed to read position fix")
				continue
			}
			t.ingestFix(models.PositionFix{
				Latitude:       loc.Latitude,
				Longitude:      loc.Longitude,
				AccuracyMeters: loc.Accuracy,
				CapturedAt:     loc.Timestamp,
			})
		case <-ctx.Done():
			t.logger.Info().Msg("Sampling loop stopping")
			return
		}
	}
}

// ingestFix pushes a fix, real or simulated, through the shared
// filter → dispatcher pipeline.
func (t *TrackingService) ingestFix(fix models.PositionFix) {
	point, ok := t.filter.Normalize(fix)
	if !ok {
		return
	}

	t.mu.Lock()
	dispatcher := t.dispatcher
	t.lastFix = geo.LatLng{Lat: point.Lat, Lng: point.Lng}
	t.mu.Unlock()

	if dispatcher != nil {
		dispatcher.RecordSample(point)
	}
}

// watchAppState reacts to foreground/background transitions: a pending start
// is re-armed on foreground, a running session is liveness-checked on
// foreground and its indicator re-asserted on background.
func (t *TrackingService) watchAppState() {
	for {
		select {
		case state := <-t.appSource.Transitions():
			switch state {
			case appstate.Foreground:
				t.onForeground()
			case appstate.Background:
				t.onBackground()
			}
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *TrackingService) onForeground() {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	running := t.state == StateRunning
	degraded := t.session != nil && t.session.Degraded
	lastTick := t.lastTickAt
	t.mu.Unlock()

	if pending != nil {
		t.logger.Info().Str("ride_id", pending.rideID).Msg("App foregrounded, starting pending ride tracking")
		if err := t.StartRide(pending.rideID, pending.route); err != nil {
			t.logger.Error().Err(err).Msg("Pending tracking start failed")
		}
		return
	}

	if running && !degraded {
		// Some platforms silently kill background sampling; restart the
		// loop if it has stopped ticking.
		if time.Since(lastTick) > 3*t.samplingInterval {
			t.logger.Warn().Msg("Sampling loop found dead on foreground, restarting")
			t.stopSampling()
			if provider, _, err := t.selectProvider(); err == nil {
				t.startSampling(provider)
			} else {
				t.logger.Error().Err(err).Msg("Failed to restart sampling loop")
			}
		}
	}
}

func (t *TrackingService) onBackground() {
	t.mu.Lock()
	running := t.state == StateRunning
	t.mu.Unlock()

	if running {
		if err := t.indicator.Refresh(); err != nil {
			t.logger.Error().Err(err).Msg("Failed to re-assert persistent-activity indicator")
		}
	}
}

func (t *TrackingService) setIdle() {
	t.mu.Lock()
	t.state = StateIdle
	t.mu.Unlock()
}
