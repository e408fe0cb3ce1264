package push //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockScheduler struct {
	resolved []string
}

func (m *mockScheduler) ResolvePush(correlationID string) {
	m.resolved = append(m.resolved, correlationID)
}

func TestHandleForwardsOnlyResolvedEvents(t *testing.T) {
	cases := []struct {
		kind    Kind
		forward bool
	}{
		{KindAccepted, false},
		{KindStarted, false},
		{KindReady, true},
		{KindFailed, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			sched := &mockScheduler{}
			b := NewBridge(sched)
			b.Handle(Event{Kind: tc.kind, TransmissionID: "tx-1"})
			if got := len(sched.resolved) == 1; got != tc.forward {
				t.Errorf("forwarded = %v, want %v", got, tc.forward)
			}
		})
	}
}

func TestHandleSkipsEventsWithoutTransmissionID(t *testing.T) {
	sched := &mockScheduler{}
	b := NewBridge(sched)
	b.Handle(Event{Kind: KindReady})
	if len(sched.resolved) != 0 {
		t.Errorf("resolved = %v, want none for an empty id", sched.resolved)
	}
}

func TestListenDecodesStream(t *testing.T) {
	feed := strings.Join([]string{
		`{"kind":"accepted","transmission_id":"tx-1"}`,
		`{"kind":"started","transmission_id":"tx-1"}`,
		`this line is not json`,
		`{"kind":"ready","transmission_id":"tx-1","thread_id":"thread-1"}`,
		`{"kind":"failed","transmission_id":"tx-2"}`,
	}, "\n")

	sched := &mockScheduler{}
	b := NewBridge(sched)
	var seen []Event
	b.SetObserver(func(ev Event) { seen = append(seen, ev) })

	if err := b.Listen(context.Background(), strings.NewReader(feed)); err != nil {
		t.Fatalf("listen: %v", err)
	}

	if len(sched.resolved) != 2 || sched.resolved[0] != "tx-1" || sched.resolved[1] != "tx-2" {
		t.Errorf("resolved = %v, want [tx-1 tx-2]", sched.resolved)
	}
	// The malformed line is skipped, the four valid events are observed.
	if len(seen) != 4 {
		t.Errorf("observed %d events, want 4", len(seen))
	}
}

func TestListenStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := &mockScheduler{}
	b := NewBridge(sched)
	err := b.Listen(ctx, strings.NewReader(`{"kind":"ready","transmission_id":"tx-1"}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(sched.resolved) != 0 {
		t.Errorf("resolved = %v, want none after cancellation", sched.resolved)
	}
}
