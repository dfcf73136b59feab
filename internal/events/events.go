// Package events publishes pipeline progress to NATS.
//
// Events are published to subjects of the form:
//
//	{prefix}.{session_id}.{kind}
//
// for example brdforge.s1.synthesis.section. Subscribers can follow a single
// session with brdforge.s1.> or every synthesis event with
// brdforge.*.synthesis.>.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"go.uber.org/zap"
)

// Kind names an event.
type Kind string

const (
	ClassificationStarted   Kind = "classification.started"
	ClassificationProgress  Kind = "classification.progress"
	ClassificationCompleted Kind = "classification.completed"
	SynthesisStarted        Kind = "synthesis.started"
	SynthesisSection        Kind = "synthesis.section"
	SynthesisCompleted      Kind = "synthesis.completed"
	ValidationCompleted     Kind = "validation.completed"
)

// Section statuses carried by SynthesisSection events.
const (
	StatusPending  = "pending"
	StatusWorking  = "working"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// Event is one pipeline notification.
type Event struct {
	Kind       Kind           `json:"kind"`
	SessionID  string         `json:"session_id"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
	Section    string         `json:"section,omitempty"`
	Status     string         `json:"status,omitempty"`
	Done       int            `json:"done,omitempty"`
	Total      int            `json:"total,omitempty"`
	Message    string         `json:"message,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Time       time.Time      `json:"time"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Emit publishes ev and logs failures. Publishing never fails a pipeline run.
func Emit(ctx context.Context, p Publisher, logger *logging.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil && logger != nil {
		logger.Warn(ctx, "failed to publish event",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records ev.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}
