// Package outbox defines the durable records of the Sol outbound delivery
// engine — packets, transmissions, and the per-transmission delivery attempt
// ledger — and the SQLite store that owns them.
package outbox

import (
	"encoding/json"
	"time"
)

// Packet kinds. A packet's kind is immutable after creation except for the
// explicit retry repair, which flips KindChatFail back to KindChat.
const (
	KindChat          = "chat"
	KindChatFail      = "chat_fail" // simulated-failure variant of chat
	KindMemoryDistill = "memory_distill"
)

// Packet describes one outbound unit of work. It is created by whatever
// enqueued it and never mutated afterwards (kind excepted, see above).
type Packet struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	ThreadID   string `json:"thread_id"`
	MessageIDs string `json:"message_ids"` // JSON array of message ids
	Body       string `json:"body"`        // opaque request body
	CreatedAt  string `json:"created_at"`
}

// Messages decodes the packet's message id list.
func (p Packet) Messages() []string {
	var ids []string
	if err := json.Unmarshal([]byte(p.MessageIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// Status is the transmission lifecycle state. Status is the mutex: only a
// transmission that is not already sending is eligible for a new attempt.
type Status string

// Transmission status constants.
const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Eligible reports whether a transmission in this status should be picked up
// by a delivery pass.
func (s Status) Eligible() bool {
	return s == StatusQueued || s == StatusPending
}

// Terminal reports whether the status ends the transmission's lifecycle.
// Failed is terminal until an explicit retry requeues it.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Transmission is the schedulable wrapper around exactly one packet. The
// idempotency key is generated once at enqueue and is identical across every
// attempt, so the server can detect replays.
type Transmission struct {
	ID             string `json:"id"`
	PacketID       string `json:"packet_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         Status `json:"status"`
	LastError      string `json:"last_error"`
	CorrelationID  string `json:"correlation_id"` // server-assigned, empty until learned
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Outcome classifies what a single delivery attempt produced.
type Outcome string

// Attempt outcome constants.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// Source records which path produced an attempt.
type Source string

// Attempt source constants. SourceTerminal marks engine-declared attempts
// (pending TTL expiry, max-attempts exhaustion) that never hit the network.
const (
	SourceSend     Source = "send"
	SourcePoll     Source = "poll"
	SourceTerminal Source = "terminal"
)

// Synthetic status codes for attempts that never reached the network.
const (
	// CodeNoResponse marks attempts with no HTTP response at all, including
	// the engine-declared max-attempts terminal entry.
	CodeNoResponse = -1
	// CodeTimeout is the engine-declared pending-TTL timeout.
	CodeTimeout = 408
)

// DeliveryAttempt is one append-only ledger entry for a transmission. The
// ledger is the sole source of truth for backoff, TTL, and attempt-count
// decisions; no separate counters exist to drift out of sync with it.
type DeliveryAttempt struct {
	ID             int64   `json:"id"`
	TransmissionID string  `json:"transmission_id"`
	StatusCode     int     `json:"status_code"`
	Outcome        Outcome `json:"outcome"`
	Source         Source  `json:"source"`
	Error          string  `json:"error"`
	CorrelationID  string  `json:"correlation_id"`
	RetryAfterMS   int64   `json:"retry_after_ms"` // server Retry-After hint, 0 if absent
	CreatedAt      string  `json:"created_at"`
}

// Message is a row in the conversation aggregate. The engine appends exactly
// one assistant message when a transmission succeeds; it never mutates the
// conversation otherwise.
type Message struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// TimeLayout is the canonical timestamp encoding for all record columns.
// RFC3339Nano keeps backoff and TTL arithmetic exact across restarts.
const TimeLayout = time.RFC3339Nano

// FormatTime encodes t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a stored timestamp. A zero time is returned for
// unparseable values so age checks treat them as infinitely old.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// At returns the attempt's creation time.
func (a DeliveryAttempt) At() time.Time {
	return ParseTime(a.CreatedAt)
}
