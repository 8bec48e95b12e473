package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"partner-gateway/internal/accesslog"
	"partner-gateway/internal/allowlist"
	"partner-gateway/internal/auth"
	"partner-gateway/internal/ratelimit"
)

// maxCapturedBody caps how much of a request or response body is kept for
// the access log. Larger bodies are dropped, not truncated: a truncated
// JSON document is useless and misleading in an audit record.
const maxCapturedBody = 8 << 10

const ctxEventType = "guard.event_type"

// BlockNotifier raises the alert for an allowlist denial. Satisfied by
// *detect.Detector.
type BlockNotifier interface {
	AllowlistBlocked(ctx context.Context, tenantID, sourceIP string)
}

// Config maps routes to the stricter limit policies. Paths are matched
// against the request URL path, exact.
type Config struct {
	LoginPaths        []string
	RegistrationPaths []string
}

// Guard is the request middleware tying the access controls together:
// rate limit first, then the IP allowlist, then the handler, then one
// access-log event for whatever happened.
type Guard struct {
	limiter  *ratelimit.Service
	allow    *allowlist.Service
	logs     *accesslog.Service
	notifier BlockNotifier
	cfg      Config
	log      *slog.Logger
	clock    func() time.Time
}

func New(limiter *ratelimit.Service, allow *allowlist.Service, logs *accesslog.Service, notifier BlockNotifier, cfg Config, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		limiter:  limiter,
		allow:    allow,
		logs:     logs,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		clock:    time.Now,
	}
}

// SetEventType lets a handler override the recorded event type for the
// current request, e.g. "login" on the session endpoint.
func SetEventType(c *gin.Context, eventType string) {
	c.Set(ctxEventType, eventType)
}

// Middleware returns the gin handler chain entry. auth.Identify must run
// before it so tenant identity is on the request context.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := g.clock()
		ctx := c.Request.Context()
		ip := c.ClientIP()
		tenantID, _ := auth.TenantID(ctx)
		actorID, _ := auth.ActorID(ctx)

		lt := g.limitType(c.Request.URL.Path)
		identifier := tenantID
		if identifier == "" || lt == ratelimit.LimitRegistration {
			// Registration has no tenant yet; key it by source address.
			identifier = ip
		}

		// The login counter advances only on failed outcomes, post-handler.
		// Here we just refuse callers under a standing login lockout, and
		// meter the attempt against the general api budget.
		meterType := lt
		if lt == ratelimit.LimitLogin {
			meterType = ratelimit.LimitAPI
			if d := g.limiter.Status(ctx, ratelimit.LimitLogin, identifier); !d.Allowed {
				g.deny(c, tenantID, actorID, lt, d.RetryAfter, start)
				return
			}
		}

		if d := g.limiter.Check(ctx, meterType, identifier, ip); !d.Allowed {
			g.deny(c, tenantID, actorID, lt, d.RetryAfter, start)
			return
		}

		allowed, err := g.allow.IsAllowed(ctx, tenantID, ip)
		if err != nil {
			// Enforcement needs the entry list; without it we admit and
			// log rather than turn a store outage into a full outage.
			g.log.Error("allowlist check failed; admitting", "tenant_id", tenantID, "ip", ip, "err", err)
			allowed = true
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "source address not allowed"})
			g.record(c, accesslog.Event{
				TenantID:     tenantID,
				ActorID:      actorID,
				EventType:    accesslog.EventTypeAllowlistBlocked,
				Outcome:      accesslog.OutcomeBlocked,
				StatusCode:   http.StatusForbidden,
				ErrorMessage: "source address not allowed",
			}, start)
			if g.notifier != nil {
				g.notifier.AllowlistBlocked(ctx, tenantID, ip)
			}
			return
		}

		reqPayload := g.captureRequestBody(c)
		w := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		outcome := classifyOutcome(status)
		if lt == ratelimit.LimitLogin && outcome == accesslog.OutcomeFailed {
			// Count the failed attempt; the response is already on its way,
			// so a tripped lockout only affects the next attempt.
			g.limiter.Check(ctx, ratelimit.LimitLogin, identifier, ip)
		}

		e := accesslog.Event{
			TenantID:        tenantID,
			ActorID:         actorID,
			EventType:       g.eventType(c, lt),
			Outcome:         outcome,
			StatusCode:      status,
			RequestPayload:  reqPayload,
			ResponsePayload: parseJSONBody(w.buf.Bytes(), w.overflow),
		}
		if len(c.Errors) > 0 {
			e.ErrorMessage = c.Errors.Last().Error()
		}
		g.record(c, e, start)
	}
}

// deny answers a rate-limited request with 429 and records the blocked
// attempt.
func (g *Guard) deny(c *gin.Context, tenantID, actorID string, lt ratelimit.LimitType, retryAfter time.Time, start time.Time) {
	retry := int(time.Until(retryAfter).Seconds())
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":               "rate limit exceeded",
		"retry_after_seconds": retry,
	})
	g.record(c, accesslog.Event{
		TenantID:     tenantID,
		ActorID:      actorID,
		EventType:    g.eventType(c, lt),
		Outcome:      accesslog.OutcomeBlocked,
		StatusCode:   http.StatusTooManyRequests,
		ErrorMessage: "rate limit exceeded",
	}, start)
}

func (g *Guard) record(c *gin.Context, e accesslog.Event, start time.Time) {
	e.Channel = accesslog.ChannelAPI
	e.Endpoint = c.Request.URL.Path
	e.HTTPMethod = c.Request.Method
	e.SourceIP = c.ClientIP()
	e.UserAgent = c.Request.UserAgent()
	e.DurationSeconds = g.clock().Sub(start).Seconds()

	if _, err := g.logs.Record(c.Request.Context(), e); err != nil {
		g.log.Error("access event lost", "endpoint", e.Endpoint, "err", err)
	}
}

func (g *Guard) limitType(path string) ratelimit.LimitType {
	for _, p := range g.cfg.LoginPaths {
		if p == path {
			return ratelimit.LimitLogin
		}
	}
	for _, p := range g.cfg.RegistrationPaths {
		if p == path {
			return ratelimit.LimitRegistration
		}
	}
	return ratelimit.LimitAPI
}

// eventType resolves the recorded event type: a handler override wins,
// then the limit type implies login/registration, then the default.
func (g *Guard) eventType(c *gin.Context, lt ratelimit.LimitType) string {
	if v, ok := c.Get(ctxEventType); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	switch lt {
	case ratelimit.LimitLogin:
		return accesslog.EventTypeLogin
	case ratelimit.LimitRegistration:
		return accesslog.EventTypeRegistration
	default:
		return accesslog.EventTypeAPIRequest
	}
}

// captureRequestBody reads and restores the request body, returning its
// parsed form when it is JSON within the size cap.
func (g *Guard) captureRequestBody(c *gin.Context) map[string]any {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if ct := c.ContentType(); !strings.Contains(ct, "json") {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedBody+1))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
	return parseJSONBody(body, len(body) > maxCapturedBody)
}

func parseJSONBody(b []byte, overflow bool) map[string]any {
	if overflow || len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func classifyOutcome(status int) accesslog.Outcome {
	switch {
	case status >= 200 && status < 300:
		return accesslog.OutcomeSuccess
	case status == http.StatusTooManyRequests:
		return accesslog.OutcomeBlocked
	default:
		return accesslog.OutcomeFailed
	}
}

// bodyCapture tees the response body up to the capture cap.
type bodyCapture struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	overflow bool
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	if w.buf.Len()+len(b) <= maxCapturedBody {
		w.buf.Write(b)
	} else {
		w.overflow = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
