package appstate

import (
	"sync"

	"github.com/rs/zerolog"
)

// State is the hosting app's execution state.
type State int

const (
	Foreground State = iota
	Background
)

func (s State) String() string {
	if s == Background {
		return "background"
	}
	return "foreground"
}

// Source delivers app-state transitions. The platform binding pushes
// transitions into it; the lifecycle manager subscribes. Decoupling the
// pipeline from any specific OS background-execution API lives here.
type Source interface {
	// Transitions returns the channel on which state changes arrive.
	Transitions() <-chan State
	// Current returns the last delivered state.
	Current() State
}

// Indicator is the persistent-activity surface shown while tracking runs,
// e.g. an OS foreground-service notification. Refresh re-asserts it so the
// OS does not reclaim the sampling loop while backgrounded.
type Indicator interface {
	Show(rideID string) error
	Refresh() error
	Dismiss() error
}

// Notifier posts one-shot local notifications.
type Notifier interface {
	Advise(message string) error
}

// ChannelSource is a Source fed by explicit Publish calls. The platform
// binding owns the publishing side; tests drive it directly. Publish and
// Current are safe to call from different goroutines.
type ChannelSource struct {
	ch chan State

	mu      sync.Mutex
	current State
}

// NewChannelSource creates a source starting in the given state.
func NewChannelSource(initial State) *ChannelSource {
	return &ChannelSource{
		ch:      make(chan State, 4),
		current: initial,
	}
}

// Publish records and delivers a transition.
func (c *ChannelSource) Publish(s State) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	c.ch <- s
}

// Transitions returns the transition channel.
func (c *ChannelSource) Transitions() <-chan State {
	return c.ch
}

// Current returns the last published state.
func (c *ChannelSource) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LogIndicator is a log-backed Indicator for hosts without a platform
// binding.
type LogIndicator struct {
	Logger zerolog.Logger
}

func (l *LogIndicator) Show(rideID string) error {
	l.Logger.Info().Str("ride_id", rideID).Msg("Persistent-activity indicator shown")
	return nil
}

func (l *LogIndicator) Refresh() error {
	l.Logger.Debug().Msg("Persistent-activity indicator re-asserted")
	return nil
}

func (l *LogIndicator) Dismiss() error {
	l.Logger.Info().Msg("Persistent-activity indicator dismissed")
	return nil
}

// LogNotifier is a log-backed Notifier.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l *LogNotifier) Advise(message string) error {
	l.Logger.Info().Str("message", message).Msg("Local notification posted")
	return nil
}
