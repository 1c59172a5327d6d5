// Package events publishes run progress to interested sinks.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types
const (
	TestStarted  = "test_started"
	StepFinished = "step_finished"
	TestFinished = "test_finished"
	RunFinished  = "run_finished"
)

// Event is one progress notification. Fields not relevant to Type are zero.
type Event struct {
	Type   string    `json:"type"`
	RunID  string    `json:"runId,omitempty"`
	Test   string    `json:"test,omitempty"`
	Index  int       `json:"index"`
	Total  int       `json:"total,omitempty"`
	Step   int       `json:"step,omitempty"`
	Action string    `json:"action,omitempty"`
	Status string    `json:"status,omitempty"`
	Pass   bool      `json:"pass,omitempty"`
	Error  string    `json:"error,omitempty"`
	Passed int       `json:"passed,omitempty"`
	Failed int       `json:"failed,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink receives events. Publish must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to a Sink.
type Func func(Event)

func (f Func) Publish(_ context.Context, evt Event) error {
	f(evt)
	return nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
