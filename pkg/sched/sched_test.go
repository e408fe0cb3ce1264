package sched //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"sync"
	"testing"
	"time"

	"sol/pkg/delivery"
)

// --- Mock pass runner ---

type mockRunner struct {
	mu     sync.Mutex
	passes []delivery.PassOrder
	polled []string

	// block, when non-nil, holds every RunPass until it is closed.
	block chan struct{}
	// started receives one signal per RunPass entry.
	started chan struct{}
}

func newMockRunner() *mockRunner {
	return &mockRunner{started: make(chan struct{}, 16)}
}

func (m *mockRunner) RunPass(_ context.Context, order delivery.PassOrder) error {
	m.mu.Lock()
	m.passes = append(m.passes, order)
	block := m.block
	m.mu.Unlock()
	m.started <- struct{}{}
	if block != nil {
		<-block
	}
	return nil
}

func (m *mockRunner) PollResolved(_ context.Context, correlationID string) error {
	m.mu.Lock()
	m.polled = append(m.polled, correlationID)
	m.mu.Unlock()
	return nil
}

func (m *mockRunner) passCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passes)
}

func (m *mockRunner) passOrders() []delivery.PassOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]delivery.PassOrder, len(m.passes))
	copy(out, m.passes)
	return out
}

func (m *mockRunner) polledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.polled))
	copy(out, m.polled)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// newTestCoordinator wires a coordinator to a running serializer without
// starting the trigger loops, so tests control every kick.
func newTestCoordinator(t *testing.T, runner *mockRunner) *Coordinator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ser := delivery.NewSerializer()
	go ser.Run(ctx)
	return New(Config{TickInterval: time.Hour}, runner, ser)
}

// --- Trigger policy ---

func TestOrderForTriggerPolicy(t *testing.T) {
	cases := []struct {
		reason Reason
		want   delivery.PassOrder
	}{
		{ReasonAppStart, delivery.PollFirst},
		{ReasonEnqueue, delivery.SendFirst},
		{ReasonRetry, delivery.SendFirst},
		{ReasonTick, delivery.PollFirst},
		{ReasonReachability, delivery.PollFirst},
		{ReasonResignActive, delivery.SendFirst},
		{ReasonBecomeActive, delivery.PollFirst},
		{ReasonBackgroundRefresh, delivery.SendFirst},
		{ReasonPushResolved, delivery.PollFirst},
		{ReasonStoreChanged, delivery.SendFirst},
		{ReasonRerun, delivery.PollFirst},
	}
	for _, tc := range cases {
		if got := OrderFor(tc.reason); got != tc.want {
			t.Errorf("OrderFor(%s) = %q, want %q", tc.reason, got, tc.want)
		}
	}
}

// --- Single-flight gate ---

func TestKickCoalescesWhilePassInFlight(t *testing.T) {
	runner := newMockRunner()
	runner.block = make(chan struct{})
	c := newTestCoordinator(t, runner)

	c.Kick(ReasonTick)
	<-runner.started

	// Three kicks land while the pass runs; they fold into one rerun.
	c.Kick(ReasonEnqueue)
	c.Kick(ReasonTick)
	c.Kick(ReasonEnqueue)

	close(runner.block)
	<-runner.started

	waitFor(t, func() bool { return c.idle() })
	if got := runner.passCount(); got != 2 {
		t.Errorf("passes = %d, want 2 (one pass plus one rerun)", got)
	}
}

func TestKickAfterIdlePassRunsAgain(t *testing.T) {
	runner := newMockRunner()
	c := newTestCoordinator(t, runner)

	c.Kick(ReasonTick)
	waitFor(t, func() bool { return runner.passCount() == 1 && c.idle() })

	c.Kick(ReasonTick)
	waitFor(t, func() bool { return runner.passCount() == 2 })
}

func TestKickReasonSelectsPassOrder(t *testing.T) {
	runner := newMockRunner()
	c := newTestCoordinator(t, runner)

	c.Kick(ReasonEnqueue)
	waitFor(t, func() bool { return runner.passCount() == 1 && c.idle() })
	c.Kick(ReasonTick)
	waitFor(t, func() bool { return runner.passCount() == 2 && c.idle() })

	orders := runner.passOrders()
	if orders[0] != delivery.SendFirst || orders[1] != delivery.PollFirst {
		t.Errorf("orders = %v, want [send_first poll_first]", orders)
	}
}

// --- Push targeting ---

func TestResolvePushPollsTargetBeforeSweep(t *testing.T) {
	runner := newMockRunner()
	c := newTestCoordinator(t, runner)

	c.ResolvePush("tx-7")
	waitFor(t, func() bool { return runner.passCount() == 1 && c.idle() })

	if got := runner.polledIDs(); len(got) != 1 || got[0] != "tx-7" {
		t.Errorf("polled = %v, want [tx-7]", got)
	}
}

func TestResolvePushDuringPassCarriesIntoRerun(t *testing.T) {
	runner := newMockRunner()
	runner.block = make(chan struct{})
	c := newTestCoordinator(t, runner)

	c.Kick(ReasonTick)
	<-runner.started

	c.ResolvePush("tx-9")
	close(runner.block)
	<-runner.started

	waitFor(t, func() bool { return c.idle() })
	if got := runner.polledIDs(); len(got) != 1 || got[0] != "tx-9" {
		t.Errorf("polled = %v, want [tx-9] in the rerun", got)
	}
}

// --- Run lifecycle ---

func TestRunKicksOnStartAndStopsOnCancel(t *testing.T) {
	runner := newMockRunner()
	ser := delivery.NewSerializer()
	c := New(Config{TickInterval: time.Hour}, runner, ser)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	waitFor(t, func() bool { return runner.passCount() >= 1 })
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestTickLoopKeepsKicking(t *testing.T) {
	runner := newMockRunner()
	ser := delivery.NewSerializer()
	c := New(Config{TickInterval: 10 * time.Millisecond}, runner, ser)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitFor(t, func() bool { return runner.passCount() >= 3 })
}

// idle reports whether no pass is in flight and no rerun is queued.
func (c *Coordinator) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.isProcessing && !c.needsRerun
}
