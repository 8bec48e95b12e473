package main

import (
	"net/http"

	"partner-gateway/internal/alert"
	"partner-gateway/internal/auth"
	"partner-gateway/internal/guard"
	"partner-gateway/internal/httpapi"
	"partner-gateway/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, gd *guard.Guard, dispatcher *alert.Dispatcher, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The guarded B2B surface. Everything under /v1 passes identity
	// resolution, the rate limiter, the allowlist and the access log.
	v1 := r.Group("/v1")
	v1.Use(auth.Identify(authManager))
	v1.Use(gd.Middleware())
	{
		// Identity echo for partner integration debugging.
		v1.GET("/me", func(c *gin.Context) {
			tid, _ := auth.TenantID(c.Request.Context())
			aid, _ := auth.ActorID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"tenant_id": tid, "actor_id": aid, "role": role})
		})

		// Login lives with the upstream identity service; this core only
		// meters and records attempts against it. The route exists so the
		// login rate limit and event classification have an anchor.
		v1.POST("/login", func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "login is handled by the identity service"})
		})

		// Partner registration intake. Creation is upstream; the gateway
		// raises the new_tenant alert once the request clears its checks.
		v1.POST("/partners", func(c *gin.Context) {
			dispatcher.Dispatch(c.Request.Context(), alert.Event{
				Type:     alert.TypeNewTenant,
				Severity: alert.SeverityWarning,
				SourceIP: c.ClientIP(),
			})
			c.JSON(http.StatusAccepted, gin.H{"status": "pending_review"})
		})
	}

	// Admin surface: strict identity, admin role, no guard (its mutations
	// write their own admin_action audit events).
	admin := r.Group("/admin")
	admin.Use(auth.RequireIdentity(authManager))
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.GET("/logs", h.ListLogs)
		admin.GET("/logs/export", h.ExportLogs)

		admin.GET("/allowlist", h.ListAllowlist)
		admin.POST("/allowlist", h.AddAllowlistEntry)
		admin.DELETE("/allowlist/:entry_id", h.DeleteAllowlistEntry)
		admin.POST("/allowlist/import", h.ImportAllowlist)

		admin.GET("/options", h.GetOptions)
		admin.PUT("/options", h.SaveOptions)

		admin.POST("/retention/run", h.RunCleanup)

		admin.POST("/alerts/test-email", h.SendTestEmail)
		admin.POST("/alerts/test-sms", h.SendTestSMS)
		admin.GET("/alerts/sms-credentials", h.VerifySMSCredentials)
	}
}
