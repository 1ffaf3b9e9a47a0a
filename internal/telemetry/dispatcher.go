package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxBufferSize is the buffered point count that triggers a flush.
	DefaultMaxBufferSize = 5
	// DefaultFlushInterval is the elapsed time since the last flush that
	// triggers a flush regardless of buffer size.
	DefaultFlushInterval = 30 * time.Second
)

// ErrStatusGated is returned by Flush when the ride is not yet ONGOING. The
// buffer is retained in full; this is a deliberate hold, not a failure.
var ErrStatusGated = errors.New("flush gated: ride status is not ONGOING")

// StatusOracle reports the ride's current lifecycle status.
type StatusOracle interface {
	Status(ctx context.Context, rideID string) (models.RideStatus, error)
}

// BatchSender dispatches an ordered batch of telemetry points.
type BatchSender interface {
	SendBatch(ctx context.Context, rideID string, points []models.TelemetryPoint, simulated bool) error
}

// Dispatcher owns the telemetry buffer for one active ride. It accumulates
// filtered samples, decides when to flush, gates flushes on ride status and
// hands batches to the transport gateway. Points are never dropped silently:
// the buffer clears only after a confirmed dispatch.
type Dispatcher struct {
	rideID        string
	maxBufferSize int
	flushInterval time.Duration

	oracle  StatusOracle
	gateway BatchSender
	logger  zerolog.Logger

	mu            sync.Mutex
	buffer        []models.TelemetryPoint
	lastFlushAt   time.Time
	sendToBackend bool
	simulated     bool

	flushQueue *utils.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for the given ride. Non-positive
// thresholds fall back to the defaults.
func NewDispatcher(rideID string, maxBufferSize int, flushInterval time.Duration,
	oracle StatusOracle, gateway BatchSender, logger zerolog.Logger) *Dispatcher {
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Dispatcher{
		rideID:        rideID,
		maxBufferSize: maxBufferSize,
		flushInterval: flushInterval,
		oracle:        oracle,
		gateway:       gateway,
		logger:        logger,
		sendToBackend: true,
		lastFlushAt:   time.Now(),
	}
}

// Start launches the time-based flush trigger. Size-based triggers fire on
// RecordSample and run detached, so sampling never blocks on network I/O.
func (d *Dispatcher) Start() error {
	if d.ctx != nil {
		d.logger.Warn().Msg("Dispatcher is already running")
		return errors.New("dispatcher is already running")
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Lock()
	d.flushQueue = utils.NewWorkerPool(1)
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runFlushTicker()
	}()

	d.logger.Info().
		Str("ride_id", d.rideID).
		Int("max_buffer_size", d.maxBufferSize).
		Dur("flush_interval", d.flushInterval).
		Msg("Dispatcher started")
	return nil
}

// Stop halts the flush ticker and the detached flush worker. It does not
// flush; callers wanting a final flush call ForceFlush first.
func (d *Dispatcher) Stop() error {
	if d.ctx == nil {
		d.logger.Warn().Msg("Dispatcher is not running")
		return errors.New("dispatcher is not running")
	}

	d.cancel()
	d.wg.Wait()

	// Detach the queue before closing it so a late RecordSample cannot
	// submit to a shut-down pool.
	d.mu.Lock()
	queue := d.flushQueue
	d.flushQueue = nil
	d.mu.Unlock()
	queue.Shutdown()

	d.ctx = nil
	d.cancel = nil

	d.logger.Info().Str("ride_id", d.rideID).Msg("Dispatcher stopped")
	return nil
}

// RecordSample appends a point to the buffer. Crossing the size threshold
// triggers one detached flush attempt; redundant triggers while a flush is
// already queued are coalesced.
func (d *Dispatcher) RecordSample(point models.TelemetryPoint) {
	d.mu.Lock()
	d.buffer = append(d.buffer, point)
	size := len(d.buffer)
	queue := d.flushQueue
	d.mu.Unlock()

	if size >= d.maxBufferSize && queue != nil {
		queue.TrySubmit(func() {
			if err := d.Flush(d.ctx); err != nil && !errors.Is(err, ErrStatusGated) {
				d.logger.Error().Err(err).Msg("Size-triggered flush failed, buffer retained")
			}
		})
	}
}

// Flush dispatches the buffered points. Sessions running a backend-disabled
// simulation return immediately with the buffer untouched. Otherwise the
// ride status gates the send: anything but ONGOING retains the buffer in
// full and returns ErrStatusGated. On a successful dispatch exactly the sent
// prefix is cleared, so points appended while the batch was in flight
// survive; on failure the buffer is retained and the error propagated.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	if !d.sendToBackend {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	return d.flush(ctx)
}

// ForceFlush dispatches immediately, bypassing the size/time triggers and
// the simulation send gate, but still respecting the ride-status gate.
func (d *Dispatcher) ForceFlush(ctx context.Context) error {
	return d.flush(ctx)
}

func (d *Dispatcher) flush(ctx context.Context) error {
	d.mu.Lock()
	sent := len(d.buffer)
	if sent == 0 {
		d.mu.Unlock()
		return nil
	}
	snapshot := make([]models.TelemetryPoint, sent)
	copy(snapshot, d.buffer[:sent])
	simulated := d.simulated
	d.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	status, err := d.oracle.Status(ctx, d.rideID)
	if err != nil {
		return err
	}
	if status != models.RideStatusOngoing {
		d.logger.Debug().
			Str("ride_id", d.rideID).
			Str("status", string(status)).
			Int("buffered", sent).
			Msg("Flush gated by ride status, buffer retained")
		return ErrStatusGated
	}

	if err := d.gateway.SendBatch(ctx, d.rideID, snapshot, simulated); err != nil {
		return err
	}

	d.mu.Lock()
	d.buffer = append(d.buffer[:0:0], d.buffer[sent:]...)
	d.lastFlushAt = time.Now()
	d.mu.Unlock()

	d.logger.Debug().
		Str("ride_id", d.rideID).
		Int("points", sent).
		Msg("Batch dispatched")
	return nil
}

// runFlushTicker fires time-based flushes. Flush errors are logged and do
// not stop the loop; the buffer keeps accumulating until a flush succeeds.
func (d *Dispatcher) runFlushTicker() {
	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			due := time.Since(d.lastFlushAt) >= d.flushInterval
			d.mu.Unlock()
			if !due {
				continue
			}
			if err := d.Flush(d.ctx); err != nil && !errors.Is(err, ErrStatusGated) {
				d.logger.Error().Err(err).Msg("Time-triggered flush failed, buffer retained")
			}
		case <-d.ctx.Done():
			return
		}
	}
}

// Len returns the current number of buffered points.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

// LastFlushAt returns the time of the last successful dispatch.
func (d *Dispatcher) LastFlushAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFlushAt
}

// SetSendToBackend toggles the simulation send gate. When false, Flush is a
// no-op and points accumulate for a later ForceFlush.
func (d *Dispatcher) SetSendToBackend(send bool) {
	d.mu.Lock()
	d.sendToBackend = send
	d.mu.Unlock()
}

// SetSimulated marks outgoing batches as synthetic, so degraded-session
// traces stay distinguishable from device positioning downstream.
func (d *Dispatcher) SetSimulated(simulated bool) {
	d.mu.Lock()
	d.simulated = simulated
	d.mu.Unlock()
}
