package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ridetrack/telemetry-agent/internal/appstate"
	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/internal/services"
	"github.com/ridetrack/telemetry-agent/internal/simulation"
	"github.com/ridetrack/telemetry-agent/internal/telemetry"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/ridetrack/telemetry-agent/pkg/position"
	"github.com/ridetrack/telemetry-agent/tests/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher is a hand-rolled SampleDispatcher stub capturing every
// call the lifecycle manager makes.
type recordingDispatcher struct {
	mu            sync.Mutex
	started       bool
	stopped       bool
	samples       []models.TelemetryPoint
	forceFlushes  int
	flushErr      error
	simulated     bool
	sendToBackend bool
	lastFlushAt   time.Time
}

func (d *recordingDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *recordingDispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *recordingDispatcher) RecordSample(point models.TelemetryPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = append(d.samples, point)
}

func (d *recordingDispatcher) Flush(ctx context.Context) error { return d.flushErr }

func (d *recordingDispatcher) ForceFlush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceFlushes++
	return d.flushErr
}

func (d *recordingDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

func (d *recordingDispatcher) LastFlushAt() time.Time { return d.lastFlushAt }

func (d *recordingDispatcher) SetSendToBackend(send bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendToBackend = send
}

func (d *recordingDispatcher) SetSimulated(simulated bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.simulated = simulated
}

func (d *recordingDispatcher) sampleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

func (d *recordingDispatcher) snapshot() []models.TelemetryPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.TelemetryPoint, len(d.samples))
	copy(out, d.samples)
	return out
}

type trackingFixture struct {
	service    *services.TrackingService
	provider   *mocks.MockPositionProvider
	fallback   *mocks.MockPositionProvider
	indicator  *mocks.MockIndicator
	notifier   *mocks.MockNotifier
	source     *appstate.ChannelSource
	dispatcher *recordingDispatcher
}

func newTrackingFixture(samplingInterval time.Duration, initial appstate.State) *trackingFixture {
	f := &trackingFixture{
		provider:   new(mocks.MockPositionProvider),
		fallback:   new(mocks.MockPositionProvider),
		indicator:  new(mocks.MockIndicator),
		notifier:   new(mocks.MockNotifier),
		source:     appstate.NewChannelSource(initial),
		dispatcher: &recordingDispatcher{},
	}

	f.service = services.NewTrackingService(
		samplingInterval,
		50000, // degraded simulation finishes fast in tests
		f.provider,
		f.fallback,
		func(rideID string) services.SampleDispatcher { return f.dispatcher },
		telemetry.NewFilter(telemetry.DefaultMaxAccuracyMeters, zerolog.Nop()),
		f.source,
		f.indicator,
		f.notifier,
		zerolog.Nop(),
	)
	return f
}

func goodLocation() position.Location {
	return position.Location{
		Latitude:  10.80,
		Longitude: 106.70,
		Accuracy:  8.0,
		Timestamp: time.Now(),
	}
}

// TestTrackingService_StartStop_Success tests the service lifecycle without
// any active ride.
func TestTrackingService_StartStop_Success(t *testing.T) {
	// Setup
	f := newTrackingFixture(time.Second, appstate.Foreground)

	// Execute
	err := f.service.Start()
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = f.service.Start()
	assert.Error(t, err)
	assert.Equal(t, "tracking service is already running", err.Error())

	// Cleanup
	err = f.service.Stop()
	assert.NoError(t, err)

	// Stop again (should fail)
	err = f.service.Stop()
	assert.Error(t, err)
	assert.Equal(t, "tracking service is not running", err.Error())
}

// TestTrackingService_StartRide_SamplesAndStops tests one full ride: sampling
// loop feeding the dispatcher, then teardown with a final flush.
func TestTrackingService_StartRide_SamplesAndStops(t *testing.T) {
	// Setup
	f := newTrackingFixture(20*time.Millisecond, appstate.Foreground)
	f.provider.On("GetLocation").Return(goodLocation(), nil)
	f.indicator.On("Show", "ride-42").Return(nil)
	f.indicator.On("Dismiss").Return(nil)

	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute
	err := f.service.StartRide("ride-42", &services.RoutePlan{
		Pickup:  geo.LatLng{Lat: 10.80, Lng: 106.70},
		Dropoff: geo.LatLng{Lat: 10.81, Lng: 106.71},
	})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, services.StateRunning, f.service.State())
	session, active := f.service.Session()
	assert.True(t, active)
	assert.Equal(t, "ride-42", session.RideID)
	assert.False(t, session.Degraded)

	assert.Eventually(t, func() bool {
		return f.dispatcher.sampleCount() >= 2
	}, 2*time.Second, 10*time.Millisecond, "sampling loop should feed the dispatcher")

	// Starting the same ride again is a no-op
	assert.NoError(t, f.service.StartRide("ride-42", nil))

	// Execute teardown
	require.NoError(t, f.service.StopRide())

	// Assert teardown
	assert.Equal(t, services.StateIdle, f.service.State())
	_, active = f.service.Session()
	assert.False(t, active)
	f.dispatcher.mu.Lock()
	assert.True(t, f.dispatcher.stopped)
	assert.GreaterOrEqual(t, f.dispatcher.forceFlushes, 1, "stop performs a final flush")
	f.dispatcher.mu.Unlock()
	f.indicator.AssertCalled(t, "Dismiss")
}

// TestTrackingService_StartRide_PendingWhileBackgrounded tests that a start
// request while backgrounded is deferred until the app foregrounds.
func TestTrackingService_StartRide_PendingWhileBackgrounded(t *testing.T) {
	// Setup
	f := newTrackingFixture(time.Hour, appstate.Background)
	f.provider.On("GetLocation").Return(goodLocation(), nil)
	f.indicator.On("Show", "ride-42").Return(nil)
	f.indicator.On("Dismiss").Return(nil)
	f.notifier.On("Advise", "Open the app to start ride tracking").Return(nil)

	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute: start while backgrounded
	err := f.service.StartRide("ride-42", nil)
	require.NoError(t, err)

	// Assert: no sampling yet, request recorded as pending
	assert.Equal(t, services.TrackingState("PendingStart"), f.service.State())
	_, active := f.service.Session()
	assert.False(t, active)
	f.notifier.AssertCalled(t, "Advise", "Open the app to start ride tracking")

	// Execute: foreground the app
	f.source.Publish(appstate.Foreground)

	// Assert: tracking starts on the transition
	assert.Eventually(t, func() bool {
		return f.service.State() == services.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	session, active := f.service.Session()
	assert.True(t, active)
	assert.Equal(t, "ride-42", session.RideID)
}

// TestTrackingService_StartRide_DegradedSimulation tests the fallback to
// simulated positioning when no provider can supply fixes.
func TestTrackingService_StartRide_DegradedSimulation(t *testing.T) {
	// Setup
	f := newTrackingFixture(time.Hour, appstate.Foreground)
	f.provider.On("GetLocation").Return(position.Location{}, errors.New("no GPS lock"))
	f.fallback.On("GetLocation").Return(position.Location{}, errors.New("geolocation API unreachable"))
	f.indicator.On("Show", "ride-42").Return(nil)
	f.indicator.On("Dismiss").Return(nil)

	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute
	err := f.service.StartRide("ride-42", &services.RoutePlan{
		Pickup:  geo.LatLng{Lat: 10.80, Lng: 106.70},
		Dropoff: geo.LatLng{Lat: 10.81, Lng: 106.71},
	})
	require.NoError(t, err)

	// Assert
	session, active := f.service.Session()
	assert.True(t, active)
	assert.True(t, session.Degraded, "session is marked degraded")
	f.dispatcher.mu.Lock()
	simulated := f.dispatcher.simulated
	f.dispatcher.mu.Unlock()
	assert.True(t, simulated, "outgoing batches are tagged simulated")

	assert.Eventually(t, func() bool {
		return f.dispatcher.sampleCount() >= 1
	}, 2*time.Second, 10*time.Millisecond, "synthetic fixes reach the dispatcher")

	require.NoError(t, f.service.StopRide())
}

// TestTrackingService_StartRide_NoProviderNoRoute tests that tracking refuses
// to start when positioning is unavailable and there is no route to simulate.
func TestTrackingService_StartRide_NoProviderNoRoute(t *testing.T) {
	// Setup
	f := newTrackingFixture(time.Hour, appstate.Foreground)
	f.provider.On("GetLocation").Return(position.Location{}, errors.New("no GPS lock"))
	f.fallback.On("GetLocation").Return(position.Location{}, errors.New("geolocation API unreachable"))

	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute
	err := f.service.StartRide("ride-42", nil)

	// Assert
	assert.Error(t, err)
	assert.Equal(t, services.StateIdle, f.service.State())
	f.dispatcher.mu.Lock()
	assert.True(t, f.dispatcher.stopped, "the dispatcher is torn down again")
	f.dispatcher.mu.Unlock()
}

// TestTrackingService_EvaluatePhase tests phase evaluation against the last
// sampled position.
func TestTrackingService_EvaluatePhase(t *testing.T) {
	// Setup: provider reports a position ~55m from the pickup point.
	f := newTrackingFixture(20*time.Millisecond, appstate.Foreground)
	f.provider.On("GetLocation").Return(position.Location{
		Latitude:  10.80,
		Longitude: 106.7005,
		Accuracy:  8.0,
		Timestamp: time.Now(),
	}, nil)
	f.indicator.On("Show", "ride-42").Return(nil)
	f.indicator.On("Dismiss").Return(nil)

	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	require.NoError(t, f.service.StartRide("ride-42", &services.RoutePlan{
		Pickup:  geo.LatLng{Lat: 10.80, Lng: 106.70},
		Dropoff: geo.LatLng{Lat: 10.81, Lng: 106.71},
	}))
	require.Eventually(t, func() bool {
		return f.dispatcher.sampleCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Execute
	state, err := f.service.EvaluatePhase(models.RideStatusConfirmed)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, telemetry.PhaseToPickup, state.Phase)
	assert.True(t, state.IsNear, "~55m is inside the proximity threshold")
	assert.InDelta(t, 55, state.DistanceMeters, 10)

	require.NoError(t, f.service.StopRide())

	// Without an active route plan, evaluation fails
	_, err = f.service.EvaluatePhase(models.RideStatusConfirmed)
	assert.Error(t, err)
}

// statusStub always reports the same ride status.
type statusStub struct{ status models.RideStatus }

func (s *statusStub) Status(ctx context.Context, rideID string) (models.RideStatus, error) {
	return s.status, nil
}

// captureSender records every dispatched batch.
type captureSender struct {
	mu      sync.Mutex
	batches [][]models.TelemetryPoint
	flags   []bool
}

func (c *captureSender) SendBatch(ctx context.Context, rideID string, points []models.TelemetryPoint, simulated bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]models.TelemetryPoint, len(points))
	copy(batch, points)
	c.batches = append(c.batches, batch)
	c.flags = append(c.flags, simulated)
	return nil
}

// TestTrackingService_SimulatedRideEndToEnd drives a simulated ride through
// the real filter → dispatcher pipeline: points accumulate while the backend
// gate is closed, then a forced flush delivers one ordered batch tagged as
// simulated.
func TestTrackingService_SimulatedRideEndToEnd(t *testing.T) {
	// Setup: a real dispatcher backed by stub status/transport.
	sender := &captureSender{}
	var dispatcher *telemetry.Dispatcher

	provider := new(mocks.MockPositionProvider)
	provider.On("GetLocation").Return(goodLocation(), nil)
	indicator := new(mocks.MockIndicator)
	indicator.On("Show", "ride-42").Return(nil)
	indicator.On("Dismiss").Return(nil)

	svc := services.NewTrackingService(
		time.Hour, // keep the real sampling loop quiet
		8.0,
		provider,
		nil,
		func(rideID string) services.SampleDispatcher {
			dispatcher = telemetry.NewDispatcher(rideID, 1000, time.Hour,
				&statusStub{status: models.RideStatusOngoing}, sender, zerolog.Nop())
			return dispatcher
		},
		telemetry.NewFilter(telemetry.DefaultMaxAccuracyMeters, zerolog.Nop()),
		appstate.NewChannelSource(appstate.Foreground),
		indicator,
		new(mocks.MockNotifier),
		zerolog.Nop(),
	)

	require.NoError(t, svc.Start())
	defer svc.Stop()
	require.NoError(t, svc.StartRide("ride-42", nil))

	// Execute: simulate pickup → dropoff without touching the backend.
	start := geo.LatLng{Lat: 10.80, Lng: 106.70}
	end := geo.LatLng{Lat: 10.81, Lng: 106.71}
	require.NoError(t, svc.StartSimulation(simulation.Config{
		Start:                start,
		End:                  end,
		SpeedMetersPerSecond: geo.HaversineMeters(start, end) / 0.2,
		SendToBackend:        false,
		TickInterval:         20 * time.Millisecond,
	}))

	require.Eventually(t, func() bool {
		return dispatcher.Len() >= 5
	}, 2*time.Second, 10*time.Millisecond, "simulated fixes accumulate in the buffer")

	require.NoError(t, svc.StopSimulation())

	// Nothing went out while the gate was closed.
	sender.mu.Lock()
	assert.Empty(t, sender.batches)
	sender.mu.Unlock()

	// Execute: forced flush delivers everything at once.
	buffered := dispatcher.Len()
	require.NoError(t, svc.ForceFlush(context.Background()))

	// Assert
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.batches, 1, "one batch carries the whole trace")
	assert.True(t, sender.flags[0], "the batch is tagged as simulated")

	batch := sender.batches[0]
	assert.Len(t, batch, buffered)
	for i := 1; i < len(batch); i++ {
		assert.GreaterOrEqual(t, batch[i].Lat, batch[i-1].Lat, "capture order is preserved")
	}
	assert.Equal(t, 0, dispatcher.Len(), "the buffer is empty after delivery")
}
