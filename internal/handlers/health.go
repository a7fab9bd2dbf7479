package handlers

import (
	"net/http"

	"cmm/internal/manager"
	"cmm/internal/version"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HealthHandlers struct {
	manager *manager.Manager
	log     *zap.Logger
}

func NewHealthHandlers(mgr *manager.Manager, log *zap.Logger) *HealthHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthHandlers{manager: mgr, log: log}
}

func (h *HealthHandlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "CMM API running"})
}

func (h *HealthHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandlers) Readyz(c *gin.Context) {
	if err := h.manager.Ready(c.Request.Context()); err != nil {
		h.log.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": version.String(),
		"commit":  version.Commit,
		"date":    version.Date,
	})
}
