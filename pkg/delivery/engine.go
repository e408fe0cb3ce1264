// Package delivery implements the outbound delivery engine: the state
// machine that walks eligible transmissions, talks to the transport, and
// records every outcome in the attempt ledger. It also provides the
// Serializer, the single-writer boundary every engine operation runs behind.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sol/pkg/classify"
	"sol/pkg/outbox"
)

// Transport delivers packets to the remote service. Production impl is
// transport.HTTP. Both calls must surface status, headers, and body so the
// retry classifier can inspect them.
type Transport interface {
	Send(ctx context.Context, p outbox.Packet, idempotencyKey string) (Result, error)
	Poll(ctx context.Context, correlationID string) (Result, error)
}

// Result is one transport outcome. A returned error means the request never
// produced an HTTP response; everything else arrives here.
type Result struct {
	StatusCode    int
	Headers       http.Header
	Body          []byte
	CorrelationID string // server-assigned transmission id, if present
	Pending       bool   // poll result explicitly marked still-running
	Failed        bool   // poll result explicitly marked failed, regardless of HTTP status
	Output        string // response payload for the conversation, when complete
}

// PassOrder selects which half of the eligible set a pass works first.
type PassOrder string

// Pass order constants. PollFirst checks existing pending work before
// sending anything new; SendFirst prioritizes freshly queued work.
const (
	PollFirst PassOrder = "poll_first"
	SendFirst PassOrder = "send_first"
)

// Engine error strings surfaced in Transmission.LastError.
const (
	errPendingTimeout   = "timed out waiting for completion"
	errAttemptsExceeded = "Max retry attempts exceeded"
)

// Config holds Engine tuning knobs.
type Config struct {
	PendingTTL  time.Duration // age after which a pending attempt is declared dead (default 30s)
	MaxAttempts int           // ledger length at which the engine stops trying (default 6)
	BackoffBase time.Duration // first retry delay; doubles per failed attempt (default 2s)
	BackoffCap  time.Duration // upper bound on the backoff window (default 60s)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PendingTTL == 0 {
		out.PendingTTL = 30 * time.Second
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 6
	}
	if out.BackoffBase == 0 {
		out.BackoffBase = 2 * time.Second
	}
	if out.BackoffCap == 0 {
		out.BackoffCap = 60 * time.Second
	}
	return out
}

// Engine drives transmissions through queued → sending → {succeeded, failed,
// pending}. It has no internal timer; passes are triggered externally by the
// scheduler.
type Engine struct {
	store     *outbox.Store
	transport Transport
	cfg       Config

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an Engine over the given store and transport.
func New(store *outbox.Store, tr Transport, cfg Config) *Engine {
	return &Engine{
		store:     store,
		transport: tr,
		cfg:       cfg.withDefaults(),
		nowFunc:   time.Now,
	}
}

// RunPass processes every eligible transmission once and returns. Transport
// failures never abort the pass — they become ledger entries. Store failures
// and context cancellation do stop it; cancellation leaves the remaining
// transmissions untouched for the next trigger.
func (e *Engine) RunPass(ctx context.Context, order PassOrder) error {
	eligible, err := e.store.Eligible(ctx)
	if err != nil {
		return fmt.Errorf("run pass: %w", err)
	}

	var queued, pending []outbox.Transmission
	for _, t := range eligible {
		if t.Status == outbox.StatusPending {
			pending = append(pending, t)
		} else {
			queued = append(queued, t)
		}
	}

	ordered := append(pending, queued...)
	if order == SendFirst {
		ordered = append(queued, pending...)
	}

	for _, t := range ordered {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.processOne(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// PollResolved is the push-bridge fast path: poll one transmission by its
// server correlation id, skipping the sweep. Safe to race with a periodic
// pass — once the transmission is terminal this is a no-op.
func (e *Engine) PollResolved(ctx context.Context, correlationID string) error {
	t, err := e.store.ByCorrelation(ctx, correlationID)
	if err != nil {
		// A push for a correlation id we have not recorded yet. The periodic
		// poll-first tick converges on it later; nothing to do now.
		return nil
	}
	if !t.Status.Eligible() {
		return nil
	}
	return e.processOne(ctx, t)
}

// RequeueFailed is the explicit retry repair action: failed transmissions go
// back to queued and simulated-failure packets are restored to their normal
// kind. The ledger is untouched, so a repaired transmission resumes its old
// attempt budget rather than getting a fresh one.
func (e *Engine) RequeueFailed(ctx context.Context) (int, error) {
	return e.store.RequeueFailed(ctx)
}

// processOne runs the per-transmission state machine: TTL check, attempt
// ceiling, backoff window, then at most one transport call.
func (e *Engine) processOne(ctx context.Context, t outbox.Transmission) error {
	attempts, err := e.store.Attempts(ctx, t.ID)
	if err != nil {
		return err
	}
	now := e.nowFunc()

	var last *outbox.DeliveryAttempt
	if len(attempts) > 0 {
		last = &attempts[len(attempts)-1]
	}

	// A pending attempt older than the TTL is declared dead without another
	// network call. Exactly at the boundary is still alive.
	if last != nil && last.Outcome == outbox.OutcomePending && now.Sub(last.At()) > e.cfg.PendingTTL {
		return e.terminate(ctx, t, outbox.CodeTimeout, errPendingTimeout)
	}

	// Ledger length is the attempt counter. At the ceiling the transmission
	// fails terminally, again without touching the network.
	if len(attempts) >= e.cfg.MaxAttempts {
		return e.terminate(ctx, t, outbox.CodeNoResponse, errAttemptsExceeded)
	}

	// Backoff: after a failed attempt the transmission is left alone until
	// its window elapses. Skipping writes nothing — silence is what makes
	// the retries visibly pace out.
	if last != nil && last.Outcome == outbox.OutcomeFailed {
		if now.Sub(last.At()) < e.backoffWindow(attempts, last) {
			return nil
		}
	}

	return e.dispatch(ctx, t)
}

// terminate appends an engine-declared terminal attempt and fails the
// transmission.
func (e *Engine) terminate(ctx context.Context, t outbox.Transmission, code int, msg string) error {
	err := e.store.AppendAttempt(ctx, outbox.DeliveryAttempt{
		TransmissionID: t.ID,
		StatusCode:     code,
		Outcome:        outbox.OutcomeFailed,
		Source:         outbox.SourceTerminal,
		Error:          msg,
	})
	if err != nil {
		return err
	}
	return e.store.SetStatus(ctx, t.ID, outbox.StatusFailed, msg)
}

// backoffWindow computes the wait after the most recent failure: the base
// delay doubled per prior failed attempt, capped, and never shorter than the
// server's Retry-After hint.
func (e *Engine) backoffWindow(attempts []outbox.DeliveryAttempt, last *outbox.DeliveryAttempt) time.Duration {
	failed := 0
	for _, a := range attempts {
		if a.Outcome == outbox.OutcomeFailed {
			failed++
		}
	}
	w := e.cfg.BackoffBase
	for i := 1; i < failed; i++ {
		w *= 2
		if w >= e.cfg.BackoffCap {
			w = e.cfg.BackoffCap
			break
		}
	}
	if hint := time.Duration(last.RetryAfterMS) * time.Millisecond; hint > w {
		w = hint
	}
	return w
}

// dispatch performs one transport call for the transmission and books the
// outcome. A transmission that already carries a correlation id is always
// polled, never re-sent.
func (e *Engine) dispatch(ctx context.Context, t outbox.Transmission) error {
	if err := e.store.SetStatus(ctx, t.ID, outbox.StatusSending, ""); err != nil {
		return err
	}

	var (
		res Result
		src outbox.Source
		err error
	)
	if t.CorrelationID != "" {
		src = outbox.SourcePoll
		res, err = e.transport.Poll(ctx, t.CorrelationID)
	} else {
		src = outbox.SourceSend
		var p outbox.Packet
		p, err = e.store.Packet(ctx, t.PacketID)
		if err != nil {
			return err
		}
		res, err = e.transport.Send(ctx, p, t.IdempotencyKey)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-call (OS reclaimed the background task). Restore
			// the prior status and stop; the idempotency key makes a later
			// re-send safe and the next trigger re-evaluates from the ledger.
			_ = e.store.SetStatus(context.WithoutCancel(ctx), t.ID, t.Status, t.LastError)
			return ctx.Err()
		}
		return e.bookNetworkFailure(ctx, t, src, err)
	}

	switch {
	case res.Failed:
		return e.bookFailure(ctx, t, src, res)
	case res.Pending || res.StatusCode == http.StatusAccepted:
		return e.bookPending(ctx, t, src, res)
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return e.bookSuccess(ctx, t, src, res)
	default:
		return e.bookFailure(ctx, t, src, res)
	}
}

// bookNetworkFailure records an attempt that never reached the network.
func (e *Engine) bookNetworkFailure(ctx context.Context, t outbox.Transmission, src outbox.Source, cause error) error {
	msg := cause.Error()
	err := e.store.AppendAttempt(ctx, outbox.DeliveryAttempt{
		TransmissionID: t.ID,
		StatusCode:     outbox.CodeNoResponse,
		Outcome:        outbox.OutcomeFailed,
		Source:         src,
		Error:          msg,
	})
	if err != nil {
		return err
	}
	return e.store.SetStatus(ctx, t.ID, outbox.StatusFailed, msg)
}

// bookPending records an accepted-but-unfinished outcome and stores a newly
// learned correlation id.
func (e *Engine) bookPending(ctx context.Context, t outbox.Transmission, src outbox.Source, res Result) error {
	corr := res.CorrelationID
	if corr == "" {
		corr = t.CorrelationID
	}
	err := e.store.AppendAttempt(ctx, outbox.DeliveryAttempt{
		TransmissionID: t.ID,
		StatusCode:     res.StatusCode,
		Outcome:        outbox.OutcomePending,
		Source:         src,
		CorrelationID:  corr,
	})
	if err != nil {
		return err
	}
	if corr != "" && corr != t.CorrelationID {
		if err := e.store.SetCorrelationID(ctx, t.ID, corr); err != nil {
			return err
		}
	}
	return e.store.SetStatus(ctx, t.ID, outbox.StatusPending, "")
}

// bookSuccess records a definitive success and materializes the response in
// the conversation. Materialization is guarded by the status transition: a
// transmission that is already succeeded is no longer eligible, so a second
// success observation can never append a duplicate response.
func (e *Engine) bookSuccess(ctx context.Context, t outbox.Transmission, src outbox.Source, res Result) error {
	corr := res.CorrelationID
	if corr == "" {
		corr = t.CorrelationID
	}
	err := e.store.AppendAttempt(ctx, outbox.DeliveryAttempt{
		TransmissionID: t.ID,
		StatusCode:     res.StatusCode,
		Outcome:        outbox.OutcomeSucceeded,
		Source:         src,
		CorrelationID:  corr,
	})
	if err != nil {
		return err
	}
	if corr != "" && corr != t.CorrelationID {
		if err := e.store.SetCorrelationID(ctx, t.ID, corr); err != nil {
			return err
		}
	}
	if err := e.store.SetStatus(ctx, t.ID, outbox.StatusSucceeded, ""); err != nil {
		return err
	}

	output := res.Output
	if output == "" {
		output = string(res.Body)
	}
	p, err := e.store.Packet(ctx, t.PacketID)
	if err != nil {
		return err
	}
	if _, err := e.store.AppendAssistantMessage(ctx, p.ThreadID, output); err != nil {
		return err
	}
	return nil
}

// bookFailure records an HTTP-level failure, consulting the classifier for
// the error message, retry hint, and any server-assigned ids.
func (e *Engine) bookFailure(ctx context.Context, t outbox.Transmission, src outbox.Source, res Result) error {
	d := classify.Classify(classify.Outcome{
		StatusCode: res.StatusCode,
		Body:       res.Body,
		Headers:    res.Headers,
	})

	msg := d.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	}

	corr := d.CorrelationID
	if corr == "" {
		corr = res.CorrelationID
	}

	err := e.store.AppendAttempt(ctx, outbox.DeliveryAttempt{
		TransmissionID: t.ID,
		StatusCode:     res.StatusCode,
		Outcome:        outbox.OutcomeFailed,
		Source:         src,
		Error:          msg,
		CorrelationID:  corr,
		RetryAfterMS:   d.RetryAfter.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return e.store.SetStatus(ctx, t.ID, outbox.StatusFailed, msg)
}
