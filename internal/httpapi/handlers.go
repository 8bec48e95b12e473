package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"partner-gateway/internal/accesslog"
	"partner-gateway/internal/alert"
	"partner-gateway/internal/allowlist"
	"partner-gateway/internal/auth"
	"partner-gateway/internal/options"
	"partner-gateway/internal/retention"
	"partner-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SMSProvider is the delivery-plus-verification surface of the SMS
// channel. Satisfied by *alert.TwilioSender.
type SMSProvider interface {
	alert.SMSSender
	Verify(ctx context.Context) error
}

// Handlers groups the admin HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Logs      *accesslog.Service
	Allowlist *allowlist.Service
	Options   *options.Store
	Retention *retention.Service
	Email     alert.EmailSender
	SMS       SMSProvider // nil when no provider credentials are configured

	Log *slog.Logger
}

// --- Access log ---

// ListLogs returns a filtered, paged slice of access events plus the
// total match count.
func (h Handlers) ListLogs(c *gin.Context) {
	f, p, err := parseLogQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.Logs.Query(c.Request.Context(), f, p)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "log query failed"})
		return
	}
	total, err := h.Logs.Count(c.Request.Context(), f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "log count failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

// ExportLogs streams the filtered events as a CSV download.
func (h Handlers) ExportLogs(c *gin.Context) {
	f, _, err := parseLogQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="access-log.csv"`)
	if err := h.Logs.ExportCSV(c.Request.Context(), f, c.Writer); err != nil {
		// Headers are already gone; all we can do is log.
		h.logger(c).Error("csv export failed", "err", err)
	}
}

func parseLogQuery(c *gin.Context) (accesslog.Filters, accesslog.Page, error) {
	var f accesslog.Filters
	var p accesslog.Page

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, p, errors.New("from must be RFC3339")
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, p, errors.New("to must be RFC3339")
		}
		f.To = t
	}
	f.TenantID = c.Query("tenant_id")
	f.Outcome = accesslog.Outcome(c.Query("outcome"))
	f.Channel = accesslog.Channel(c.Query("channel"))
	f.EventType = c.Query("event_type")
	f.SourceIP = c.Query("source_ip")
	f.CountryCode = c.Query("country")

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, p, errors.New("limit must be a non-negative integer")
		}
		p.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, p, errors.New("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return f, p, nil
}

// --- Allowlist ---

type addAllowlistRequest struct {
	TenantID    string `json:"tenant_id"`
	IPAddress   string `json:"ip_address,omitempty"`
	RangeStart  string `json:"range_start,omitempty"`
	RangeEnd    string `json:"range_end,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h Handlers) ListAllowlist(c *gin.Context) {
	var (
		entries []allowlist.Entry
		err     error
	)
	if tenantID := c.Query("tenant_id"); tenantID != "" {
		entries, err = h.Allowlist.ListTenant(c.Request.Context(), tenantID)
	} else {
		entries, err = h.Allowlist.List(c.Request.Context())
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "allowlist query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h Handlers) AddAllowlistEntry(c *gin.Context) {
	var req addAllowlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	actorID, _ := auth.ActorID(c.Request.Context())
	var (
		entry allowlist.Entry
		err   error
	)
	switch {
	case req.IPAddress != "":
		entry, err = h.Allowlist.Add(c.Request.Context(), req.TenantID, req.IPAddress, req.Description, actorID)
	case req.RangeStart != "" && req.RangeEnd != "":
		entry, err = h.Allowlist.AddRange(c.Request.Context(), req.TenantID, req.RangeStart, req.RangeEnd, req.Description, actorID)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ip_address or range_start/range_end required"})
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, allowlist.ErrDuplicate) {
			status = http.StatusConflict
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entry)
	h.recordAdmin(c, "allowlist_add", map[string]any{
		"tenant_id": req.TenantID, "entry_id": entry.ID,
		"ip_address": entry.IPAddress, "range_start": entry.RangeStart, "range_end": entry.RangeEnd,
	})
}

func (h Handlers) DeleteAllowlistEntry(c *gin.Context) {
	entryID := c.Param("entry_id")
	if err := h.Allowlist.Remove(c.Request.Context(), entryID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, allowlist.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
	h.recordAdmin(c, "allowlist_delete", map[string]any{"entry_id": entryID})
}

type importAllowlistRequest struct {
	TenantID string `json:"tenant_id"`
	// Entries is one "ip[,description]" per line.
	Entries string `json:"entries"`
}

// ImportAllowlist bulk-creates exact-address entries. Malformed and
// duplicate lines are skipped, never fatal.
func (h Handlers) ImportAllowlist(c *gin.Context) {
	var req importAllowlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TenantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	actorID, _ := auth.ActorID(c.Request.Context())
	imported, err := h.Allowlist.BulkAdd(c.Request.Context(), req.TenantID, req.Entries, actorID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "imported": imported})
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported})
	h.recordAdmin(c, "allowlist_import", map[string]any{"tenant_id": req.TenantID, "imported": imported})
}

// --- Security options ---

func (h Handlers) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Options.Get())
}

// SaveOptions validates, persists and hot-applies a full options document.
func (h Handlers) SaveOptions(c *gin.Context) {
	var o options.SecurityOptions
	if err := c.ShouldBindJSON(&o); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Options.Save(c.Request.Context(), o); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.Options.Get())
	h.recordAdmin(c, "options_update", nil)
}

// --- Retention ---

// RunCleanup triggers one retention pass with the current settings,
// independent of the daily schedule.
func (h Handlers) RunCleanup(c *gin.Context) {
	o := h.Options.Get()
	deleted, err := h.Retention.Cleanup(c.Request.Context(), o.RetentionDays)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	h.recordAdmin(c, "retention_cleanup", map[string]any{"deleted": deleted, "retention_days": o.RetentionDays})
}

// --- Alert channel checks ---

// SendTestEmail delivers a probe message to the configured alert address.
func (h Handlers) SendTestEmail(c *gin.Context) {
	o := h.Options.Get()
	to := o.AlertEmail
	if to == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no alert email configured"})
		return
	}
	err := h.Email.Send(c.Request.Context(), to,
		"[Security] Test alert", "This is a test of the security alert email channel.", "text/plain; charset=utf-8")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent_to": to})
}

type testSMSRequest struct {
	Phone string `json:"phone"`
}

// SendTestSMS delivers a probe message to one recipient.
func (h Handlers) SendTestSMS(c *gin.Context) {
	if h.SMS == nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "sms provider not configured"})
		return
	}
	var req testSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	to, err := alert.NormalizePhone(req.Phone)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.SMS.Send(c.Request.Context(), to, "Test of the security alert SMS channel."); err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent_to": to})
}

// VerifySMSCredentials checks the provider credentials without sending
// a message.
func (h Handlers) VerifySMSCredentials(c *gin.Context) {
	if h.SMS == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false, "valid": false})
		return
	}
	if err := h.SMS.Verify(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"configured": true, "valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true, "valid": true})
}

// --- helpers ---

// recordAdmin writes the audit event for a mutating admin action. The
// admin surface sits outside the request guard, so this is its only
// access-log path.
func (h Handlers) recordAdmin(c *gin.Context, action string, details map[string]any) {
	ctx := c.Request.Context()
	tenantID, _ := auth.TenantID(ctx)
	actorID, _ := auth.ActorID(ctx)

	payload := map[string]any{"action": action}
	for k, v := range details {
		payload[k] = v
	}

	_, err := h.Logs.Record(ctx, accesslog.Event{
		TenantID:       tenantID,
		ActorID:        actorID,
		Channel:        accesslog.ChannelWeb,
		EventType:      accesslog.EventTypeAdminAction,
		Endpoint:       c.Request.URL.Path,
		HTTPMethod:     c.Request.Method,
		Outcome:        accesslog.OutcomeSuccess,
		StatusCode:     c.Writer.Status(),
		SourceIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		RequestPayload: payload,
	})
	if err != nil {
		h.logger(c).Error("admin action audit write failed", "action", action, "err", err)
	}
}

func (h Handlers) logger(c *gin.Context) *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return logger.FromGin(c)
}
