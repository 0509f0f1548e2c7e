package metrics

import "time"

// Recorder bridges menu session events into the registered Prometheus
// counters. It satisfies the menu package's Stats interface.
type Recorder struct{}

// NewRecorder creates a recorder. Init must have been called first.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) SessionCreated(menu string) {
	SessionsCreated.WithLabelValues(menu).Inc()
}

func (Recorder) SessionEnded(menu, reason string) {
	SessionsEnded.WithLabelValues(menu, reason).Inc()
}

func (Recorder) ActionHandled(menu, action, status string) {
	ActionsHandled.WithLabelValues(menu, action, status).Inc()
}

func (Recorder) PageBuilt(menu string, duration time.Duration) {
	PageBuildDuration.WithLabelValues(menu).Observe(duration.Seconds())
}
