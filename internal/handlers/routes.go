package handlers

import (
	"cmm/internal/manager"
	"cmm/internal/middleware"
	"cmm/internal/models"
	"cmm/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Auth      *middleware.AuthService
	Manager   *manager.Manager
	Logger    *zap.Logger
	IngestKey string
}

// RegisterRoutes mounts every API endpoint on r.
func RegisterRoutes(r gin.IRouter, d Dependencies) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	authHandlers := NewAuthHandlers(d.Auth, d.Manager, log)
	serverHandlers := NewServerHandlers(d.Manager, log)
	metricHandlers := NewMetricHandlers(d.Manager, log)
	alertHandlers := NewAlertHandlers(d.Manager, log)
	userHandlers := NewUserHandlers(d.Manager, log)
	health := NewHealthHandlers(d.Manager, log)

	anyRole := d.Auth.RequireRoles(models.RoleAdmin, models.RoleTech, models.RoleViewer)
	operators := d.Auth.RequireRoles(models.RoleAdmin, models.RoleTech)
	adminOnly := d.Auth.RequireRoles(models.RoleAdmin)

	// Public routes
	r.GET("/", health.Root)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/version", health.Version)
	r.GET("/internal/metrics", gin.WrapH(telemetry.Handler()))

	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandlers.APIRegister)
		auth.POST("/login", authHandlers.APILogin)
	}

	servers := r.Group("/servers")
	{
		servers.POST("", operators, serverHandlers.APIRegisterServer)
		servers.GET("", anyRole, serverHandlers.APIListServers)
		servers.DELETE("/:server_id", adminOnly, serverHandlers.APIDeleteServer)
	}

	metrics := r.Group("/metrics")
	{
		metrics.POST("", middleware.RequireIngestKey(d.IngestKey), metricHandlers.APIIngest)
		metrics.GET("/latest/:server_id", anyRole, metricHandlers.APILatest)
		metrics.GET("/history/:server_id", anyRole, metricHandlers.APIHistory)
	}

	r.GET("/alerts", anyRole, alertHandlers.APIListAlerts)

	users := r.Group("/users", adminOnly)
	{
		users.GET("", userHandlers.APIListUsers)
		users.PUT("/:id/active", userHandlers.APISetActive)
		users.PUT("/:id/role", userHandlers.APISetRole)
	}
}
