package outbox

// SchemaDDL defines the SQLite schema for the delivery engine database.
// Tables: packets, transmissions, delivery_attempts, messages.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Outbound units of work. Immutable after creation except kind, which the
-- retry repair action may flip from a simulated-failure tag to its normal form.
CREATE TABLE IF NOT EXISTS packets (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    message_ids TEXT NOT NULL DEFAULT '[]',
    body TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Schedulable delivery state, one row per packet.
CREATE TABLE IF NOT EXISTS transmissions (
    id TEXT PRIMARY KEY,
    packet_id TEXT NOT NULL REFERENCES packets(id),
    idempotency_key TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    last_error TEXT NOT NULL DEFAULT '',
    correlation_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transmissions_status ON transmissions(status);
CREATE INDEX IF NOT EXISTS idx_transmissions_correlation ON transmissions(correlation_id);

-- Append-only attempt ledger. Rows are never updated or deleted; backoff,
-- TTL, and attempt-count decisions all derive from this table.
CREATE TABLE IF NOT EXISTS delivery_attempts (
    id INTEGER PRIMARY KEY,
    transmission_id TEXT NOT NULL REFERENCES transmissions(id),
    status_code INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    source TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    correlation_id TEXT NOT NULL DEFAULT '',
    retry_after_ms INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_transmission ON delivery_attempts(transmission_id, id);

-- Conversation aggregate. The engine only ever appends assistant rows here
-- as the success side effect; the rest of the table belongs to the app.
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
`
