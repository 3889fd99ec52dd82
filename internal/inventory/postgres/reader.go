// Package postgres implements the inventory reader over the asset and
// assignment tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"assettrail/internal/summary"
)

type Reader struct {
	db *sql.DB
}

func New(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// CountsByCategory scans committed asset and assignment state grouped by
// category. An assignment is active while returned_at is null.
func (r *Reader) CountsByCategory(ctx context.Context) ([]summary.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.category,
		       count(DISTINCT a.id) AS total,
		       count(s.id) FILTER (WHERE s.returned_at IS NULL) AS active
		FROM assets a
		LEFT JOIN assignments s ON s.asset_id = a.id
		GROUP BY a.category
		ORDER BY a.category
	`)
	if err != nil {
		return nil, fmt.Errorf("query inventory counts: %w", err)
	}
	defer rows.Close()

	var counts []summary.CategoryCount
	for rows.Next() {
		var c summary.CategoryCount
		if err := rows.Scan(&c.Category, &c.Total, &c.ActiveAssignments); err != nil {
			return nil, fmt.Errorf("scan inventory count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory counts: %w", err)
	}
	return counts, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id       BIGSERIAL PRIMARY KEY,
	category TEXT NOT NULL,
	kind     TEXT NOT NULL,
	name     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS assignments (
	id          BIGSERIAL PRIMARY KEY,
	asset_id    BIGINT NOT NULL REFERENCES assets (id) ON DELETE CASCADE,
	assignee    TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	returned_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS assignments_active_idx ON assignments (asset_id) WHERE returned_at IS NULL;
`

// EnsureSchema creates the inventory tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure inventory schema: %w", err)
	}
	return nil
}
