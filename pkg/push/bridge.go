// Package push bridges the server's push channel into the delivery
// scheduler. Events arrive as line-delimited JSON keyed by the server
// correlation id; ready and failed events trigger an immediate targeted poll
// so resolution latency is bounded by push delivery rather than the periodic
// tick. The channel is at-least-once and unordered: the bridge never trusts
// event order, it only ever nudges the engine to re-derive state from the
// store.
package push

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// Kind classifies a push event.
type Kind string

// Push event kinds.
const (
	KindAccepted Kind = "accepted"
	KindStarted  Kind = "started"
	KindReady    Kind = "ready"
	KindFailed   Kind = "failed"
)

// Event is one push notification.
type Event struct {
	Kind           Kind   `json:"kind"`
	TransmissionID string `json:"transmission_id"`
	ThreadID       string `json:"thread_id,omitempty"`
}

// Resolved reports whether the event carries a final outcome worth polling
// for.
func (e Event) Resolved() bool {
	return e.Kind == KindReady || e.Kind == KindFailed
}

// Scheduler is the slice of the coordinator the bridge needs.
type Scheduler interface {
	ResolvePush(correlationID string)
}

// Bridge forwards push events to the scheduler.
type Bridge struct {
	sched Scheduler

	// observed, when set, sees every decoded event. Used by tests and the
	// daemon's verbose mode.
	observed func(Event)
}

// NewBridge creates a Bridge targeting sched.
func NewBridge(sched Scheduler) *Bridge {
	return &Bridge{sched: sched}
}

// SetObserver registers a callback invoked for every decoded event.
func (b *Bridge) SetObserver(fn func(Event)) {
	b.observed = fn
}

// Handle processes a single event. Accepted/started events are informational
// only — the engine learns the correlation id from its own send responses,
// so a dropped or reordered event here can never corrupt state.
func (b *Bridge) Handle(ev Event) {
	if b.observed != nil {
		b.observed(ev)
	}
	if ev.TransmissionID == "" {
		return
	}
	if ev.Resolved() {
		b.sched.ResolvePush(ev.TransmissionID)
	}
}

// Listen decodes line-delimited JSON events from r until EOF or ctx
// cancellation. Malformed lines are skipped; the feed is best-effort and the
// periodic poll converges on anything missed.
func (b *Bridge) Listen(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		b.Handle(ev)
	}
	return scanner.Err()
}
