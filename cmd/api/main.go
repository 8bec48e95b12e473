package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partner-gateway/internal/accesslog"
	"partner-gateway/internal/alert"
	"partner-gateway/internal/allowlist"
	"partner-gateway/internal/auth"
	"partner-gateway/internal/config"
	"partner-gateway/internal/detect"
	"partner-gateway/internal/geo"
	"partner-gateway/internal/guard"
	"partner-gateway/internal/httpapi"
	"partner-gateway/internal/options"
	"partner-gateway/internal/ratelimit"
	"partner-gateway/internal/retention"
	"partner-gateway/pkg/logger"
	"partner-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Hot-reloadable security options; defaults apply until a row exists.
	optStore := options.NewStore(options.NewPostgresRepo(db), options.Defaults())
	if err := optStore.Reload(rootCtx); err != nil {
		log.Error("security options load failed", "err", err)
		os.Exit(1)
	}

	enricher := geo.NewEnricher(cfg.Geo.BaseURL, cfg.Geo.Timeout, rdb)

	logRepo := accesslog.NewPostgresRepo(db)
	logs := accesslog.NewService(logRepo, enricher, log)

	emailSender := alert.NewSMTPSender(cfg.SMTP)
	var smsSender alert.SMSSender
	var smsProvider httpapi.SMSProvider
	if cfg.SMSConfigured() {
		tw, err := alert.NewTwilioSender(cfg.Twilio)
		if err != nil {
			log.Error("twilio init failed", "err", err)
			os.Exit(1)
		}
		smsSender = tw
		smsProvider = tw
	}
	dispatcher := alert.NewDispatcher(emailSender, smsSender, optStore.Get, cfg.App.AdminEmail, log)

	detector := detect.NewDetector(logs, dispatcher, detect.NewRedisThrottle(rdb, log), optStore.Get, log)
	logs.SetNotifier(detector)

	limiter := ratelimit.NewService(ratelimit.NewRedisStore(rdb), rateLimitPolicies(optStore), log)
	limiter.SetLockoutHook(func(ctx context.Context, lt ratelimit.LimitType, identifier, sourceIP string, lockedUntil time.Time) {
		// One event and one alert per tripped lockout, not per denied
		// retry. A counter keyed by source address has no tenant.
		tenantID := identifier
		if identifier == sourceIP {
			tenantID = ""
		}
		_, err := logs.Record(ctx, accesslog.Event{
			TenantID:   tenantID,
			Channel:    accesslog.ChannelAPI,
			EventType:  accesslog.EventTypeRateLimitExceeded,
			Outcome:    accesslog.OutcomeBlocked,
			StatusCode: http.StatusTooManyRequests,
			SourceIP:   sourceIP,
			RequestPayload: map[string]any{
				"limit_type":   string(lt),
				"identifier":   identifier,
				"locked_until": lockedUntil.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			log.Error("lockout event write failed", "identifier", identifier, "err", err)
		}
		dispatcher.Dispatch(ctx, alert.Event{
			Type:       alert.TypeRateLimit,
			Severity:   alert.SeverityCritical,
			TenantID:   tenantID,
			SourceIP:   sourceIP,
			Extra:      map[string]string{"limit_type": string(lt), "identifier": identifier},
			OccurredAt: time.Now().UTC(),
		})
	})

	allow := allowlist.NewService(allowlist.NewPostgresRepo(db), func() options.AllowlistMode {
		return optStore.Get().AllowlistMode
	}, log)

	gd := guard.New(limiter, allow, logs, detector, guard.Config{
		LoginPaths:        []string{"/v1/login"},
		RegistrationPaths: []string{"/v1/partners"},
	}, log)

	retentionSvc := retention.NewService(logRepo, log)
	go retention.NewScheduler(retentionSvc, optStore.Get, log).Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Logs:      logs,
		Allowlist: allow,
		Options:   optStore,
		Retention: retentionSvc,
		Email:     emailSender,
		SMS:       smsProvider,
		Log:       log,
	}
	registerRoutes(r, authManager, gd, dispatcher, handlers)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env, "sms_alerts", cfg.SMSConfigured())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// rateLimitPolicies maps limit types to the current option thresholds.
// Registration shares the api thresholds; it is keyed by source address
// in the guard instead.
func rateLimitPolicies(store *options.Store) ratelimit.PolicyFunc {
	return func(lt ratelimit.LimitType) ratelimit.Policy {
		o := store.Get()
		if lt == ratelimit.LimitLogin {
			return ratelimit.Policy{
				MaxRequests: o.LoginMaxAttempts,
				Window:      time.Duration(o.LoginWindowSeconds) * time.Second,
				Lockout:     time.Duration(o.LoginLockoutMinutes) * time.Minute,
			}
		}
		return ratelimit.Policy{
			MaxRequests: o.APIMaxRequests,
			Window:      time.Duration(o.APIWindowSeconds) * time.Second,
			Lockout:     time.Duration(o.APILockoutMinutes) * time.Minute,
		}
	}
}
