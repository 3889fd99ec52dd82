// Package postgres implements the durable audit event store. The idempotency
// check and the insert are a single statement, so two concurrent retries with
// the same external key can never both insert.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"assettrail/internal/audit"
	"assettrail/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists the event and its change rows atomically. On a duplicate
// external key no write happens and the existing event is returned with
// inserted=false.
func (s *Store) Insert(ctx context.Context, ev audit.Event) (*audit.Event, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO audit_events (external_id, occurred_at, actor, action, description, kind, hardware_id, software_id)
		VALUES ($1, now(), $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, occurred_at
	`, ev.ExternalID, ev.Actor, ev.Action, ev.Description, string(ev.Kind), ev.HardwareID, ev.SoftwareID)

	err = row.Scan(&ev.InternalID, &ev.OccurredAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race or a retried write: hand back the original.
		existing, ferr := s.findByExternalID(ctx, ev.ExternalID)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert audit event: %w", classify(err))
	}

	for i, c := range ev.Changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audit_event_changes (event_id, position, field, old_value, new_value)
			VALUES ($1, $2, $3, $4, $5)
		`, ev.InternalID, i, c.Field, c.OldValue, c.NewValue); err != nil {
			return nil, false, fmt.Errorf("insert audit event change: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit audit event: %w", err)
	}
	return &ev, true, nil
}

func (s *Store) findByExternalID(ctx context.Context, externalID string) (*audit.Event, error) {
	var (
		ev         audit.Event
		hardwareID sql.NullString
		softwareID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, occurred_at, actor, action, description, kind, hardware_id, software_id
		FROM audit_events
		WHERE external_id = $1
	`, externalID).Scan(&ev.InternalID, &ev.ExternalID, &ev.OccurredAt, &ev.Actor, &ev.Action, &ev.Description, &ev.Kind, &hardwareID, &softwareID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit event %s: %w", externalID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find audit event by external id: %w", err)
	}
	ev.HardwareID = hardwareID.String
	ev.SoftwareID = softwareID.String

	if ev.Changes, err = s.listChanges(ctx, ev.InternalID); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListSince returns committed events with occurred_at >= since, most recent
// first, capped at limit. Plain read, no locks on the write path.
func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, occurred_at, actor, action, description, kind, hardware_id, software_id
		FROM audit_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev         audit.Event
			hardwareID sql.NullString
			softwareID sql.NullString
		)
		if err := rows.Scan(&ev.InternalID, &ev.ExternalID, &ev.OccurredAt, &ev.Actor, &ev.Action, &ev.Description, &ev.Kind, &hardwareID, &softwareID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.HardwareID = hardwareID.String
		ev.SoftwareID = softwareID.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	for i := range events {
		if events[i].Changes, err = s.listChanges(ctx, events[i].InternalID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// CountSince reports the number of events at or after the watermark.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM audit_events WHERE occurred_at >= $1
	`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// classify maps low-level pq constraint violations onto the shared sentinel
// errors so callers can branch without knowing SQLSTATE codes.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%v: %w", pqErr.Message, sentinel.ErrConflict)
	}
	return err
}

func (s *Store) listChanges(ctx context.Context, eventID int64) ([]audit.FieldChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, old_value, new_value
		FROM audit_event_changes
		WHERE event_id = $1
		ORDER BY position
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query audit event changes: %w", err)
	}
	defer rows.Close()

	var changes []audit.FieldChange
	for rows.Next() {
		var c audit.FieldChange
		if err := rows.Scan(&c.Field, &c.OldValue, &c.NewValue); err != nil {
			return nil, fmt.Errorf("scan audit event change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event changes: %w", err)
	}
	return changes, nil
}
