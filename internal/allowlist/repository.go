package allowlist

import (
	"context"
	"database/sql"

	"partner-gateway/pkg/utils"
)

// PostgresRepo persists allowlist entries.
//
// Assumed table:
//
//	CREATE TABLE ip_whitelist (
//	    id          text PRIMARY KEY,
//	    tenant_id   text NOT NULL,
//	    ip_address  text,
//	    range_start text,
//	    range_end   text,
//	    description text,
//	    is_active   boolean NOT NULL DEFAULT true,
//	    created_by  text,
//	    created_at  timestamptz NOT NULL,
//	    UNIQUE (tenant_id, ip_address)
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const entryColumns = `id, tenant_id, ip_address, range_start, range_end, description, is_active, created_by, created_at`

func (r *PostgresRepo) Insert(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO ip_whitelist (
  id, tenant_id, ip_address, range_start, range_end, description, is_active, created_by, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		nullable(e.IPAddress),
		nullable(e.RangeStart),
		nullable(e.RangeEnd),
		nullable(e.Description),
		e.IsActive,
		nullable(e.CreatedBy),
		e.CreatedAt,
	)
	return err
}

// InsertBatch writes all entries in one transaction; a failing row rolls
// the whole import back.
func (r *PostgresRepo) InsertBatch(ctx context.Context, entries []Entry) error {
	const q = `
INSERT INTO ip_whitelist (
  id, tenant_id, ip_address, range_start, range_end, description, is_active, created_by, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, q,
				e.ID,
				e.TenantID,
				nullable(e.IPAddress),
				nullable(e.RangeStart),
				nullable(e.RangeEnd),
				nullable(e.Description),
				e.IsActive,
				nullable(e.CreatedBy),
				e.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Delete(ctx context.Context, entryID string) error {
	const q = `DELETE FROM ip_whitelist WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, entryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListActive(ctx context.Context, tenantID string) ([]Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM ip_whitelist WHERE tenant_id = $1 AND is_active ORDER BY created_at`
	return r.list(ctx, q, tenantID)
}

func (r *PostgresRepo) ListAll(ctx context.Context) ([]Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM ip_whitelist ORDER BY tenant_id, created_at`
	return r.list(ctx, q)
}

func (r *PostgresRepo) Exists(ctx context.Context, tenantID, ip string) (bool, error) {
	const q = `SELECT 1 FROM ip_whitelist WHERE tenant_id = $1 AND ip_address = $2 LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, tenantID, ip).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ip, rs, re, desc, by sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &ip, &rs, &re, &desc, &e.IsActive, &by, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.IPAddress = ip.String
		e.RangeStart = rs.String
		e.RangeEnd = re.String
		e.Description = desc.String
		e.CreatedBy = by.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
