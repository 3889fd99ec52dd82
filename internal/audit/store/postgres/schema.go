package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	hardware_id TEXT,
	software_id TEXT,
	CONSTRAINT audit_events_one_target CHECK (
		(kind = 'hardware' AND hardware_id IS NOT NULL AND software_id IS NULL) OR
		(kind = 'software' AND software_id IS NOT NULL AND hardware_id IS NULL)
	)
);

CREATE INDEX IF NOT EXISTS audit_events_occurred_at_idx ON audit_events (occurred_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS audit_event_changes (
	id        BIGSERIAL PRIMARY KEY,
	event_id  BIGINT NOT NULL REFERENCES audit_events (id) ON DELETE CASCADE,
	position  INT NOT NULL,
	field     TEXT NOT NULL,
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS audit_event_changes_event_idx ON audit_event_changes (event_id, position);
`

// EnsureSchema creates the audit tables when missing. The one-target CHECK
// backs the kind/reference invariant at the storage layer as well.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}
