// Package events publishes run lifecycle events.
//
// Events are published to subjects of the form:
//   - <prefix>.<run_id>.started
//   - <prefix>.<run_id>.transition
//   - <prefix>.<run_id>.completed
//
// Publishing is best effort. Failures are logged and never affect a run.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/fyrsmithlabs/forge/internal/coordinator"
	"github.com/fyrsmithlabs/forge/internal/logging"
)

// Event kinds.
const (
	KindStarted    = "started"
	KindTransition = "transition"
	KindCompleted  = "completed"
)

// Event is the JSON payload of every published message.
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Status    string    `json:"status,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use
// and must not block a run on a slow or unavailable backend.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close() error                   { return nil }

// Observer adapts p to a coordinator observer. The run ID is read from the
// context; transitions of runs without one are not published.
func Observer(p Publisher) coordinator.Observer {
	return func(ctx context.Context, t coordinator.Transition) {
		runID := logging.RunIDFromContext(ctx)
		if runID == "" {
			return
		}
		p.Publish(ctx, Event{
			RunID:     runID,
			Kind:      KindTransition,
			From:      string(t.From),
			To:        string(t.To),
			Attempt:   t.Attempt,
			Timestamp: t.At,
		})
	}
}

// Subject builds the subject for ev under prefix.
func Subject(prefix string, ev Event) string {
	return prefix + "." + token(ev.RunID) + "." + ev.Kind
}

// token makes s usable as a single subject token.
func token(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
