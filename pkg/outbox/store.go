package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record lookup matches no row.
var ErrNotFound = errors.New("outbox: record not found")

// Store provides transactional access to the delivery records. All engine
// mutations are expected to arrive through a single writer (see
// delivery.Serializer); the store itself does not lock.
type Store struct {
	db *sql.DB

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewStore wraps an open database handle. Call Init before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for read-only consumers (status CLI, dash).
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Enqueue ---

// EnqueueParams describes a new outbound unit of work.
type EnqueueParams struct {
	Kind       string
	ThreadID   string
	MessageIDs []string
	Body       string
}

// Enqueue creates a packet and its transmission in one transaction. The
// transmission starts queued with a fresh idempotency key that stays stable
// for the rest of its life.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (Transmission, error) {
	now := FormatTime(s.nowFunc())

	ids, err := json.Marshal(p.MessageIDs)
	if err != nil {
		return Transmission{}, fmt.Errorf("encode message ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transmission{}, fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	packetID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO packets (id, kind, thread_id, message_ids, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		packetID, p.Kind, p.ThreadID, string(ids), p.Body, now); err != nil {
		return Transmission{}, fmt.Errorf("insert packet: %w", err)
	}

	tm := Transmission{
		ID:             uuid.NewString(),
		PacketID:       packetID,
		IdempotencyKey: uuid.NewString(),
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transmissions (id, packet_id, idempotency_key, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tm.ID, tm.PacketID, tm.IdempotencyKey, tm.Status, now, now); err != nil {
		return Transmission{}, fmt.Errorf("insert transmission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Transmission{}, fmt.Errorf("commit enqueue: %w", err)
	}
	return tm, nil
}

// --- Lookups ---

const transmissionCols = `id, packet_id, idempotency_key, status, last_error, correlation_id, created_at, updated_at`

func scanTransmission(row *sql.Row) (Transmission, error) {
	var t Transmission
	err := row.Scan(&t.ID, &t.PacketID, &t.IdempotencyKey, &t.Status, &t.LastError, &t.CorrelationID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transmission{}, ErrNotFound
	}
	if err != nil {
		return Transmission{}, fmt.Errorf("scan transmission: %w", err)
	}
	return t, nil
}

// Transmission returns one transmission by id.
func (s *Store) Transmission(ctx context.Context, id string) (Transmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transmissionCols+` FROM transmissions WHERE id = ?`, id)
	return scanTransmission(row)
}

// ByCorrelation returns the transmission that carries the given server
// correlation id.
func (s *Store) ByCorrelation(ctx context.Context, correlationID string) (Transmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transmissionCols+` FROM transmissions WHERE correlation_id = ?`, correlationID)
	return scanTransmission(row)
}

// Eligible returns transmissions a delivery pass should consider, FIFO by
// creation time. Eligibility is status queued or pending.
func (s *Store) Eligible(ctx context.Context) ([]Transmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transmissionCols+` FROM transmissions WHERE status IN (?, ?) ORDER BY created_at, id`,
		StatusQueued, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query eligible: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transmission
	for rows.Next() {
		var t Transmission
		if err := rows.Scan(&t.ID, &t.PacketID, &t.IdempotencyKey, &t.Status, &t.LastError, &t.CorrelationID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible: %w", err)
	}
	return out, nil
}

// Packet returns the packet a transmission wraps.
func (s *Store) Packet(ctx context.Context, id string) (Packet, error) {
	var p Packet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, thread_id, message_ids, body, created_at FROM packets WHERE id = ?`, id).
		Scan(&p.ID, &p.Kind, &p.ThreadID, &p.MessageIDs, &p.Body, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Packet{}, ErrNotFound
	}
	if err != nil {
		return Packet{}, fmt.Errorf("scan packet: %w", err)
	}
	return p, nil
}

// --- Attempt ledger ---

// Attempts returns the full ledger for a transmission, oldest first.
func (s *Store) Attempts(ctx context.Context, transmissionID string) ([]DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transmission_id, status_code, outcome, source, error, correlation_id, retry_after_ms, created_at
		 FROM delivery_attempts WHERE transmission_id = ? ORDER BY id`, transmissionID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.TransmissionID, &a.StatusCode, &a.Outcome, &a.Source, &a.Error, &a.CorrelationID, &a.RetryAfterMS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// AppendAttempt writes one ledger entry. Entries are never updated afterwards.
func (s *Store) AppendAttempt(ctx context.Context, a DeliveryAttempt) error {
	if a.CreatedAt == "" {
		a.CreatedAt = FormatTime(s.nowFunc())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (transmission_id, status_code, outcome, source, error, correlation_id, retry_after_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TransmissionID, a.StatusCode, a.Outcome, a.Source, a.Error, a.CorrelationID, a.RetryAfterMS, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// --- Transmission mutation ---

// SetStatus updates a transmission's status and last error.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transmissions SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, lastError, FormatTime(s.nowFunc()), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// SetCorrelationID records the server-assigned correlation id once learned.
func (s *Store) SetCorrelationID(ctx context.Context, id, correlationID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transmissions SET correlation_id = ?, updated_at = ? WHERE id = ?`,
		correlationID, FormatTime(s.nowFunc()), id)
	if err != nil {
		return fmt.Errorf("set correlation id: %w", err)
	}
	return nil
}

// RequeueFailed implements the retry repair action: every failed transmission
// goes back to queued, and packets carrying the simulated-failure kind are
// flipped to their normal form. The attempt ledger is left intact so backoff
// and max-attempt accounting continue from where they stopped.
func (s *Store) RequeueFailed(ctx context.Context) (int, error) {
	now := FormatTime(s.nowFunc())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin requeue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE packets SET kind = ? WHERE kind = ? AND id IN
		   (SELECT packet_id FROM transmissions WHERE status = ?)`,
		KindChat, KindChatFail, StatusFailed); err != nil {
		return 0, fmt.Errorf("repair packet kind: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE transmissions SET status = ?, last_error = '', updated_at = ? WHERE status = ?`,
		StatusQueued, now, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("requeue failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit requeue: %w", err)
	}
	return int(n), nil
}

// RecoverSending resets transmissions stuck in the sending state back to
// queued. Sending is transient within one pass; a row still carrying it
// means a previous process died mid-call. Called once at daemon start.
func (s *Store) RecoverSending(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transmissions SET status = ?, updated_at = ? WHERE status = ?`,
		StatusQueued, FormatTime(s.nowFunc()), StatusSending)
	if err != nil {
		return 0, fmt.Errorf("recover sending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover rows affected: %w", err)
	}
	return int(n), nil
}

// --- Conversation aggregate ---

// AppendAssistantMessage materializes the server response in the conversation.
func (s *Store) AppendAssistantMessage(ctx context.Context, threadID, content string) (Message, error) {
	m := Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      "assistant",
		Content:   content,
		CreatedAt: FormatTime(s.nowFunc()),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// Messages returns all messages in a thread, oldest first.
func (s *Store) Messages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// --- Reporting ---

// CountsByStatus returns the number of transmissions per status.
func (s *Store) CountsByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM transmissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}

// Recent returns the most recently updated transmissions, newest first.
// Used by the status CLI and the dashboard.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transmissionCols+` FROM transmissions ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transmission
	for rows.Next() {
		var t Transmission
		if err := rows.Scan(&t.ID, &t.PacketID, &t.IdempotencyKey, &t.Status, &t.LastError, &t.CorrelationID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return out, nil
}
