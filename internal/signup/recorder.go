package signup

import "time"

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeStarted  = "started"
)

// Recorder observes the modal; the metrics package provides the Prometheus
// implementation.
type Recorder interface {
	RecordTransition(from, to State)
	RecordSubmission(mode Mode, outcome string)
	RecordOAuth(provider, outcome string)
	RecordProviderLatency(operation string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(State, State) {}
func (nopRecorder) RecordSubmission(Mode, string) {}
func (nopRecorder) RecordOAuth(string, string) {}
func (nopRecorder) RecordProviderLatency(string, time.Duration) {}
