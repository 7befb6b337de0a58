// Package eventlog keeps a bounded, in-memory record of controller events —
// transitions, rejected side effects, defrost starts/completions — so the
// control API's /events route can answer "what just happened" without a
// database.
// The controller keeps no state across restarts, so this is held in memory
// rather than backed by persistent storage.
package eventlog

import (
	"strings"
	"sync"
	"time"

	"github.com/jluzny/hag-ex"

	"github.com/google/uuid"
)

// Kinds of events recorded.
const (
	KindTransition     = "TRANSITION"
	KindPartialFailure = "PARTIAL_FAILURE"
	KindDefrostStart   = "DEFROST_START"
	KindDefrostEnd     = "DEFROST_END"
	KindReconnect      = "RECONNECT"
)

// Event is one recorded controller occurrence.
type Event struct {
	EventID    string         `json:"event_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Filter selects a subset of the log by inclusive time range and/or type.
type Filter struct {
	From time.Time
	To   time.Time
	Type string
}

// Log is a fixed-capacity ring buffer of Events, oldest entries evicted
// first once capacity is reached.
type Log struct {
	mu       sync.Mutex
	capacity int
	events   []Event
}

// New builds a Log holding at most capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{capacity: capacity}
}

// Append records a new event of type typ (upper-cased), assigning it a fresh
// id and the current UTC time, and returns it.
func (l *Log) Append(typ, message string, metadata map[string]any) Event {
	e := Event{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Type:       strings.ToUpper(strings.TrimSpace(typ)),
		Message:    message,
		Metadata:   metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	return e
}

// List returns events matching f, oldest first.
func (l *Log) List(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	typ := strings.ToUpper(strings.TrimSpace(f.Type))
	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.OccurredAt.After(f.To) {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Transition implements fsm.Observer.
func (l *Log) Transition(from, to hagex.FsmState, event hagex.FsmEvent) {
	l.Append(KindTransition, string(event), map[string]any{"from": string(from), "to": string(to)})
}

// PartialFailure implements fsm.Observer.
func (l *Log) PartialFailure(from hagex.FsmState, event hagex.FsmEvent) {
	l.Append(KindPartialFailure, string(event), map[string]any{"from": string(from)})
}

// DefrostStarted implements fsm.Observer.
func (l *Log) DefrostStarted() {
	l.Append(KindDefrostStart, "defrost cycle started", nil)
}

// DefrostCompleted implements fsm.Observer.
func (l *Log) DefrostCompleted() {
	l.Append(KindDefrostEnd, "defrost cycle completed", nil)
}

// ReconnectAttempt and ReconnectExhausted implement hub.ReconnectObserver,
// so the hub client's reconnect policy is recorded alongside FSM events.
func (l *Log) ReconnectAttempt() {
	l.Append(KindReconnect, "hub reconnect attempt", nil)
}

func (l *Log) ReconnectExhausted() {
	l.Append(KindReconnect, "hub reconnect attempts exhausted", nil)
}
