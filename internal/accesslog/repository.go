package accesslog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo persists access events.
//
// Assumed table:
//
//	CREATE TABLE access_log (
//	    id               bigserial PRIMARY KEY,
//	    tenant_id        text,
//	    actor_id         text,
//	    channel          text NOT NULL,
//	    event_type       text NOT NULL,
//	    endpoint         text NOT NULL,
//	    http_method      text NOT NULL,
//	    outcome          text NOT NULL,
//	    status_code      int NOT NULL,
//	    source_ip        text NOT NULL,
//	    user_agent       text,
//	    country_code     text,
//	    region           text,
//	    city             text,
//	    request_payload  jsonb,
//	    response_payload jsonb,
//	    error_message    text,
//	    duration_seconds double precision,
//	    created_at       timestamptz NOT NULL
//	);
//
// INSERT-only by policy; DeleteOlderThan is the retention job's path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const eventColumns = `id, tenant_id, actor_id, channel, event_type, endpoint, http_method,
outcome, status_code, source_ip, user_agent, country_code, region, city,
request_payload, response_payload, error_message, duration_seconds, created_at`

func (r *PostgresRepo) Insert(ctx context.Context, e Event) (int64, error) {
	const q = `
INSERT INTO access_log (
  tenant_id, actor_id, channel, event_type, endpoint, http_method,
  outcome, status_code, source_ip, user_agent, country_code, region, city,
  request_payload, response_payload, error_message, duration_seconds, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
RETURNING id
`
	reqPayload, err := marshalPayload(e.RequestPayload)
	if err != nil {
		return 0, err
	}
	respPayload, err := marshalPayload(e.ResponsePayload)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, q,
		nullString(e.TenantID),
		nullString(e.ActorID),
		string(e.Channel),
		e.EventType,
		e.Endpoint,
		e.HTTPMethod,
		string(e.Outcome),
		e.StatusCode,
		e.SourceIP,
		nullString(e.UserAgent),
		nullString(e.CountryCode),
		nullString(e.Region),
		nullString(e.City),
		reqPayload,
		respPayload,
		nullString(e.ErrorMessage),
		e.DurationSeconds,
		e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filters, p Page) ([]Event, error) {
	where, args := buildWhere(f)
	q := fmt.Sprintf(`SELECT %s FROM access_log %s ORDER BY id DESC LIMIT %d OFFSET %d`,
		eventColumns, where, p.Limit, p.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context, f Filters) (int64, error) {
	where, args := buildWhere(f)
	q := `SELECT COUNT(*) FROM access_log ` + where

	var n int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) CountryCounts(ctx context.Context, tenantID string) (map[string]int64, error) {
	const q = `
SELECT country_code, COUNT(*)
FROM access_log
WHERE tenant_id = $1 AND outcome = 'success' AND country_code IS NOT NULL
GROUP BY country_code
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var cc string
		var n int64
		if err := rows.Scan(&cc, &n); err != nil {
			return nil, err
		}
		out[cc] = n
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM access_log WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func buildWhere(f Filters) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if f.Channel != "" {
		add("channel = $%d", string(f.Channel))
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.SourceIP != "" {
		add("source_ip LIKE $%d", "%"+f.SourceIP+"%")
	}
	if f.SourceIPExact != "" {
		add("source_ip = $%d", f.SourceIPExact)
	}
	if f.CountryCode != "" {
		add("country_code = $%d", f.CountryCode)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var tenantID, actorID, userAgent, countryCode, region, city, errMsg sql.NullString
	var reqPayload, respPayload []byte

	if err := rows.Scan(
		&e.ID,
		&tenantID,
		&actorID,
		&e.Channel,
		&e.EventType,
		&e.Endpoint,
		&e.HTTPMethod,
		&e.Outcome,
		&e.StatusCode,
		&e.SourceIP,
		&userAgent,
		&countryCode,
		&region,
		&city,
		&reqPayload,
		&respPayload,
		&errMsg,
		&e.DurationSeconds,
		&e.CreatedAt,
	); err != nil {
		return Event{}, err
	}

	e.TenantID = tenantID.String
	e.ActorID = actorID.String
	e.UserAgent = userAgent.String
	e.CountryCode = countryCode.String
	e.Region = region.String
	e.City = city.String
	e.ErrorMessage = errMsg.String

	if len(reqPayload) > 0 {
		if err := json.Unmarshal(reqPayload, &e.RequestPayload); err != nil {
			return Event{}, err
		}
	}
	if len(respPayload) > 0 {
		if err := json.Unmarshal(respPayload, &e.ResponsePayload); err != nil {
			return Event{}, err
		}
	}
	return e, nil
}

func marshalPayload(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
