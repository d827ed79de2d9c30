package trace

import (
	"sync"
	"time"
)

// Recorder accumulates the trace events of a single orchestration run and is
// returned to the caller alongside the result. Each run owns its own Recorder;
// nothing is written to disk or shared between runs. The mutex only guards the
// probe's concurrent availability checks; the rest of a run is sequential.
type Recorder struct {
	mu        sync.Mutex
	requestID string
	started   time.Time
	events    []*Event
}

// NewRecorder creates a Recorder for one orchestration run
func NewRecorder(requestID string) *Recorder {
	return &Recorder{
		requestID: requestID,
		started:   time.Now(),
	}
}

// RequestID returns the run identifier this recorder belongs to
func (r *Recorder) RequestID() string {
	return r.requestID
}

// Record appends an event to the run's trace
func (r *Recorder) Record(event *Event) {
	if event == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Event creates, records, and returns an event in one step. The returned
// event may still be extended with the With* builders until Events is called.
func (r *Recorder) Event(eventType EventType, message string) *Event {
	event := NewEvent(eventType, r.requestID, message)
	r.Record(event)
	return event
}

// Events returns a snapshot of the recorded events in record order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, *event)
	}
	return out
}

// Len returns the number of recorded events
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Elapsed returns the time since the run started
func (r *Recorder) Elapsed() time.Duration {
	return time.Since(r.started)
}
