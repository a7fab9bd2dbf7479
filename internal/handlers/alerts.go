package handlers

import (
	"net/http"

	"cmm/internal/manager"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AlertHandlers struct {
	manager *manager.Manager
	log     *zap.Logger
}

func NewAlertHandlers(mgr *manager.Manager, log *zap.Logger) *AlertHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertHandlers{manager: mgr, log: log}
}

// APIListAlerts returns the 200 most recent alerts.
func (h *AlertHandlers) APIListAlerts(c *gin.Context) {
	list, err := h.manager.RecentAlerts(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
