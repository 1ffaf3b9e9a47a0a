package services

import "github.com/ridetrack/telemetry-agent/internal/appstate"

// AppDependencies bundles the platform collaborators the tracking service
// binds to: app-state transitions, the persistent-activity indicator and the
// local notifier.
type AppDependencies struct {
	Source    appstate.Source
	Indicator appstate.Indicator
	Notifier  appstate.Notifier
}
