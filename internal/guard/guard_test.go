package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"partner-gateway/internal/accesslog"
	"partner-gateway/internal/allowlist"
	"partner-gateway/internal/auth"
	"partner-gateway/internal/options"
	"partner-gateway/internal/ratelimit"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string // tenantID|ip
}

func (f *fakeNotifier) AllowlistBlocked(ctx context.Context, tenantID, sourceIP string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tenantID+"|"+sourceIP)
}

type fixture struct {
	guard    *Guard
	repo     *accesslog.MemoryRepo
	allow    *allowlist.Service
	notifier *fakeNotifier
}

func newFixture(t *testing.T, apiMax int, mode options.AllowlistMode) *fixture {
	t.Helper()

	policies := func(lt ratelimit.LimitType) ratelimit.Policy {
		p := ratelimit.Policy{MaxRequests: apiMax, Window: time.Minute, Lockout: 30 * time.Minute}
		if lt == ratelimit.LimitLogin {
			p = ratelimit.Policy{MaxRequests: 10, Window: time.Hour, Lockout: 30 * time.Minute}
		}
		return p
	}
	limiter := ratelimit.NewService(ratelimit.NewMemoryStore(), policies, nil)

	allow := allowlist.NewService(allowlist.NewMemoryRepo(), func() options.AllowlistMode { return mode }, nil)

	repo := accesslog.NewMemoryRepo()
	logs := accesslog.NewService(repo, nil, nil)

	notifier := &fakeNotifier{}
	cfg := Config{LoginPaths: []string{"/v1/login"}, RegistrationPaths: []string{"/v1/partners"}}
	return &fixture{
		guard:    New(limiter, allow, logs, notifier, cfg, nil),
		repo:     repo,
		allow:    allow,
		notifier: notifier,
	}
}

func (f *fixture) router(tenantID string, method, path string, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tenantID != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), tenantID, "user-1", "partner"))
		}
	})
	r.Use(f.guard.Middleware())
	r.Handle(method, path, handler)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func lastEvent(t *testing.T, repo *accesslog.MemoryRepo) accesslog.Event {
	t.Helper()
	events, err := repo.List(context.Background(), accesslog.Filters{}, accesslog.Page{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no events recorded")
	}
	return events[0]
}

func TestMiddleware_RecordsSuccessWithSanitizedPayload(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	r := f.router("t1", http.MethodPost, "/v1/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"order_id": "o-1"})
	})

	w := doJSON(r, http.MethodPost, "/v1/orders", `{"item":"widget","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	e := lastEvent(t, f.repo)
	if e.EventType != accesslog.EventTypeAPIRequest || e.Outcome != accesslog.OutcomeSuccess {
		t.Fatalf("unexpected event %q/%q", e.EventType, e.Outcome)
	}
	if e.TenantID != "t1" || e.SourceIP != "203.0.113.9" || e.HTTPMethod != http.MethodPost {
		t.Fatalf("unexpected envelope %+v", e)
	}
	if e.RequestPayload["item"] != "widget" {
		t.Fatalf("request payload not captured: %v", e.RequestPayload)
	}
	if e.RequestPayload["password"] != accesslog.RedactionMarker {
		t.Fatalf("password not redacted: %v", e.RequestPayload["password"])
	}
	if e.ResponsePayload["order_id"] != "o-1" {
		t.Fatalf("response payload not captured: %v", e.ResponsePayload)
	}
	if e.DurationSeconds < 0 {
		t.Fatalf("negative duration %f", e.DurationSeconds)
	}
}

func TestMiddleware_HandlerStillSeesRequestBody(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	var gotItem string
	r := f.router("t1", http.MethodPost, "/v1/orders", func(c *gin.Context) {
		var in struct {
			Item string `json:"item"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gotItem = in.Item
		c.Status(http.StatusOK)
	})

	if w := doJSON(r, http.MethodPost, "/v1/orders", `{"item":"widget"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotItem != "widget" {
		t.Fatalf("handler saw %q", gotItem)
	}
}

func TestMiddleware_RateLimitDenialIsRecordedAndAnswered(t *testing.T) {
	f := newFixture(t, 2, options.AllowlistDisabled)
	r := f.router("t1", http.MethodGet, "/v1/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		if w := doJSON(r, http.MethodGet, "/v1/orders", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	w := doJSON(r, http.MethodGet, "/v1/orders", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	e := lastEvent(t, f.repo)
	if e.Outcome != accesslog.OutcomeBlocked || e.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestMiddleware_AllowlistBlockRecordsAndNotifies(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistMandatory)
	r := f.router("t1", http.MethodGet, "/v1/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Mandatory mode, tenant has no entries: denied.
	w := doJSON(r, http.MethodGet, "/v1/orders", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	e := lastEvent(t, f.repo)
	if e.EventType != accesslog.EventTypeAllowlistBlocked || e.Outcome != accesslog.OutcomeBlocked {
		t.Fatalf("unexpected event %q/%q", e.EventType, e.Outcome)
	}
	if len(f.notifier.calls) != 1 || f.notifier.calls[0] != "t1|203.0.113.9" {
		t.Fatalf("unexpected notifier calls %v", f.notifier.calls)
	}
}

func TestMiddleware_AllowlistedIPPasses(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistMandatory)
	if _, err := f.allow.Add(context.Background(), "t1", "203.0.113.9", "office", "admin-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	r := f.router("t1", http.MethodGet, "/v1/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doJSON(r, http.MethodGet, "/v1/orders", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestMiddleware_LoginPathClassification(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	r := f.router("", http.MethodPost, "/v1/login", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
	})

	if w := doJSON(r, http.MethodPost, "/v1/login", `{"email":"a@b.c","password":"nope"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}

	e := lastEvent(t, f.repo)
	if e.EventType != accesslog.EventTypeLogin {
		t.Fatalf("event type = %q, want login", e.EventType)
	}
	if e.Outcome != accesslog.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", e.Outcome)
	}
	if e.RequestPayload["password"] != accesslog.RedactionMarker {
		t.Fatalf("password not redacted: %v", e.RequestPayload)
	}
}

func TestMiddleware_SuccessfulLoginsDoNotConsumeLoginBudget(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	r := f.router("", http.MethodPost, "/v1/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": "issued"})
	})

	// The login policy allows 10 failed attempts; successes are not
	// failed attempts and must never trip it.
	for i := 0; i < 15; i++ {
		if w := doJSON(r, http.MethodPost, "/v1/login", `{"email":"a@b.c","password":"right"}`); w.Code != http.StatusOK {
			t.Fatalf("login %d: status %d", i+1, w.Code)
		}
	}
}

func TestMiddleware_FailedLoginsLockOutAfterThreshold(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	r := f.router("", http.MethodPost, "/v1/login", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
	})

	// Ten failures fill the window; the eleventh still reaches the
	// handler (its failure trips the lockout after the response), and
	// the twelfth is refused outright.
	for i := 0; i < 11; i++ {
		if w := doJSON(r, http.MethodPost, "/v1/login", `{"email":"a@b.c","password":"nope"}`); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d, want 401", i+1, w.Code)
		}
	}
	w := doJSON(r, http.MethodPost, "/v1/login", `{"email":"a@b.c","password":"nope"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("attempt 12: status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	e := lastEvent(t, f.repo)
	if e.EventType != accesslog.EventTypeLogin || e.Outcome != accesslog.OutcomeBlocked {
		t.Fatalf("unexpected event %q/%q", e.EventType, e.Outcome)
	}
}

func TestMiddleware_EventTypeOverride(t *testing.T) {
	f := newFixture(t, 100, options.AllowlistDisabled)
	r := f.router("t1", http.MethodPost, "/v1/orders/confirm", func(c *gin.Context) {
		SetEventType(c, "order_confirmation")
		c.Status(http.StatusOK)
	})

	doJSON(r, http.MethodPost, "/v1/orders/confirm", "")

	if e := lastEvent(t, f.repo); e.EventType != "order_confirmation" {
		t.Fatalf("event type = %q", e.EventType)
	}
}

func TestClassifyOutcome(t *testing.T) {
	cases := map[int]accesslog.Outcome{
		200: accesslog.OutcomeSuccess,
		201: accesslog.OutcomeSuccess,
		401: accesslog.OutcomeFailed,
		403: accesslog.OutcomeFailed,
		429: accesslog.OutcomeBlocked,
		500: accesslog.OutcomeFailed,
	}
	for status, want := range cases {
		if got := classifyOutcome(status); got != want {
			t.Errorf("classifyOutcome(%d) = %q, want %q", status, got, want)
		}
	}
}
