package outbox //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a fresh SQLite store in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "sol.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func enqueueChat(t *testing.T, s *Store, kind string) Transmission {
	t.Helper()
	tm, err := s.Enqueue(context.Background(), EnqueueParams{
		Kind:       kind,
		ThreadID:   "thread-1",
		MessageIDs: []string{"m1", "m2"},
		Body:       `{"text":"hello"}`,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return tm
}

func TestEnqueueCreatesQueuedTransmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tm := enqueueChat(t, s, KindChat)

	if tm.Status != StatusQueued {
		t.Errorf("status = %q, want queued", tm.Status)
	}
	if tm.IdempotencyKey == "" {
		t.Error("idempotency key not generated")
	}

	p, err := s.Packet(ctx, tm.PacketID)
	if err != nil {
		t.Fatalf("packet: %v", err)
	}
	if p.Kind != KindChat {
		t.Errorf("kind = %q, want chat", p.Kind)
	}
	if got := p.Messages(); len(got) != 2 || got[0] != "m1" {
		t.Errorf("messages = %v, want [m1 m2]", got)
	}
}

func TestEligibleReturnsQueuedAndPendingOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := enqueueChat(t, s, KindChat)
	b := enqueueChat(t, s, KindChat)
	c := enqueueChat(t, s, KindChat)
	d := enqueueChat(t, s, KindChat)

	if err := s.SetStatus(ctx, b.ID, StatusPending, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, c.ID, StatusSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, d.ID, StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Eligible(ctx)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("eligible count = %d, want 2", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[a.ID] || !ids[b.ID] {
		t.Errorf("eligible = %v, want %s and %s", ids, a.ID, b.ID)
	}
}

func TestAttemptLedgerOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tm := enqueueChat(t, s, KindChat)

	for i, outcome := range []Outcome{OutcomeFailed, OutcomePending, OutcomeSucceeded} {
		err := s.AppendAttempt(ctx, DeliveryAttempt{
			TransmissionID: tm.ID,
			StatusCode:     500 + i,
			Outcome:        outcome,
			Source:         SourceSend,
		})
		if err != nil {
			t.Fatalf("append attempt %d: %v", i, err)
		}
	}

	attempts, err := s.Attempts(ctx, tm.ID)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("ledger length = %d, want 3", len(attempts))
	}
	if attempts[0].Outcome != OutcomeFailed || attempts[2].Outcome != OutcomeSucceeded {
		t.Errorf("ledger out of order: %v", attempts)
	}
	if attempts[1].StatusCode != 501 {
		t.Errorf("status code = %d, want 501", attempts[1].StatusCode)
	}
}

func TestByCorrelation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tm := enqueueChat(t, s, KindChat)

	if err := s.SetCorrelationID(ctx, tm.ID, "tx-42"); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByCorrelation(ctx, "tx-42")
	if err != nil {
		t.Fatalf("by correlation: %v", err)
	}
	if got.ID != tm.ID {
		t.Errorf("id = %q, want %q", got.ID, tm.ID)
	}

	if _, err := s.ByCorrelation(ctx, "tx-missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRequeueFailedRepairsKindAndPreservesLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tm := enqueueChat(t, s, KindChatFail)
	for range 3 {
		err := s.AppendAttempt(ctx, DeliveryAttempt{
			TransmissionID: tm.ID, StatusCode: 500, Outcome: OutcomeFailed, Source: SourceSend,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetStatus(ctx, tm.ID, StatusFailed, "simulated"); err != nil {
		t.Fatal(err)
	}

	n, err := s.RequeueFailed(ctx)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}

	got, err := s.Transmission(ctx, tm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}

	p, err := s.Packet(ctx, tm.PacketID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindChat {
		t.Errorf("kind = %q, want chat after repair", p.Kind)
	}

	attempts, err := s.Attempts(ctx, tm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 3 {
		t.Errorf("ledger length = %d, want 3 (history preserved)", len(attempts))
	}
}

func TestRequeueFailedLeavesOtherKindsAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tm := enqueueChat(t, s, KindMemoryDistill)
	if err := s.SetStatus(ctx, tm.ID, StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RequeueFailed(ctx); err != nil {
		t.Fatal(err)
	}

	p, err := s.Packet(ctx, tm.PacketID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindMemoryDistill {
		t.Errorf("kind = %q, want memory_distill untouched", p.Kind)
	}
	got, err := s.Transmission(ctx, tm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}
}

func TestRecoverSending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := enqueueChat(t, s, KindChat)
	b := enqueueChat(t, s, KindChat)
	if err := s.SetStatus(ctx, a.ID, StatusSending, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, b.ID, StatusPending, ""); err != nil {
		t.Fatal(err)
	}

	n, err := s.RecoverSending(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Errorf("recovered = %d, want 1", n)
	}

	got, err := s.Transmission(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %q, want queued after recovery", got.Status)
	}
	got, err = s.Transmission(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending {
		t.Errorf("pending transmission touched by recovery: %q", got.Status)
	}
}

func TestAppendAssistantMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.AppendAssistantMessage(ctx, "thread-9", "done")
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if m.Role != "assistant" {
		t.Errorf("role = %q, want assistant", m.Role)
	}

	msgs, err := s.Messages(ctx, "thread-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "done" {
		t.Errorf("messages = %v, want one 'done'", msgs)
	}
}

func TestCountsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueChat(t, s, KindChat)
	tm := enqueueChat(t, s, KindChat)
	if err := s.SetStatus(ctx, tm.ID, StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	counts, err := s.CountsByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusQueued] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("counts = %v, want 1 queued and 1 failed", counts)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	if got := ParseTime(FormatTime(now)); !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
	if !ParseTime("garbage").IsZero() {
		t.Error("unparseable timestamp should decode as zero time")
	}
}
