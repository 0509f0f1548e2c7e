package menu

import "time"

// Stats receives lifecycle and dispatch events for observability. The
// prometheus-backed implementation lives in internal/metrics; NopStats is the
// default.
type Stats interface {
	SessionCreated(menu string)
	SessionEnded(menu, reason string)
	ActionHandled(menu, action, status string)
	PageBuilt(menu string, duration time.Duration)
}

// NopStats discards all events.
type NopStats struct{}

func (NopStats) SessionCreated(string)                {}
func (NopStats) SessionEnded(string, string)          {}
func (NopStats) ActionHandled(string, string, string) {}
func (NopStats) PageBuilt(string, time.Duration)      {}
