package leadinbox

import "time"

// Metrics receives processing observations. internal/metrics provides the Prometheus
// implementation.
type Metrics interface {
	ObserveLead(outcome string, duration time.Duration)
	ObserveRecovered(count int)
	ObservePass(duration time.Duration, err error)
	SetInboxDepth(state string, count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLead(string, time.Duration) {}
func (noopMetrics) ObserveRecovered(int)              {}
func (noopMetrics) ObservePass(time.Duration, error)  {}
func (noopMetrics) SetInboxDepth(string, int)         {}
