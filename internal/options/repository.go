package options

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo persists SecurityOptions as a single JSON row.
//
// Assumed table:
//
//	CREATE TABLE security_options (
//	    id         int PRIMARY KEY CHECK (id = 1),
//	    data       jsonb NOT NULL,
//	    updated_at timestamptz NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Load(ctx context.Context) (SecurityOptions, bool, error) {
	const q = `SELECT data FROM security_options WHERE id = 1`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, q).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SecurityOptions{}, false, nil
		}
		return SecurityOptions{}, false, err
	}
	var o SecurityOptions
	if err := json.Unmarshal(raw, &o); err != nil {
		return SecurityOptions{}, false, err
	}
	return o, true, nil
}

func (r *PostgresRepo) Save(ctx context.Context, o SecurityOptions) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO security_options (id, data, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (id)
DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
`
	_, err = r.db.ExecContext(ctx, q, raw, time.Now().UTC())
	return err
}
