package accesslog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "created_at", "tenant_id", "actor_id", "channel", "event_type",
	"endpoint", "http_method", "outcome", "status_code", "source_ip",
	"country_code", "region", "city", "duration_seconds", "error_message",
	"request_payload", "response_payload",
}

// ExportCSV streams all events matching f to w. Pages through the store
// so exports of large ranges do not load everything at once.
func (s *Service) ExportCSV(ctx context.Context, f Filters, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	page := Page{Limit: maxPageLimit}
	for {
		events, err := s.Query(ctx, f, page)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := cw.Write(csvRow(e)); err != nil {
				return err
			}
		}
		if len(events) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(e Event) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.TenantID,
		e.ActorID,
		string(e.Channel),
		e.EventType,
		e.Endpoint,
		e.HTTPMethod,
		string(e.Outcome),
		strconv.Itoa(e.StatusCode),
		e.SourceIP,
		e.CountryCode,
		e.Region,
		e.City,
		fmt.Sprintf("%.3f", e.DurationSeconds),
		e.ErrorMessage,
		payloadJSON(e.RequestPayload),
		payloadJSON(e.ResponsePayload),
	}
}

func payloadJSON(m map[string]any) string {
	if m == nil {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}
