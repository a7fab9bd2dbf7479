package handlers

import (
	"net/http"
	"strconv"

	"cmm/internal/manager"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MetricHandlers struct {
	manager *manager.Manager
	log     *zap.Logger
}

func NewMetricHandlers(mgr *manager.Manager, log *zap.Logger) *MetricHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetricHandlers{manager: mgr, log: log}
}

// APIIngest accepts one sample from an agent.
func (h *MetricHandlers) APIIngest(c *gin.Context) {
	var in manager.IngestInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.manager.Ingest(c.Request.Context(), in)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, gin.H{"alerts": len(res.Alerts)})
}

// APILatest returns the newest sample for a server, or {} when there is none.
func (h *MetricHandlers) APILatest(c *gin.Context) {
	m, err := h.manager.LatestMetric(c.Request.Context(), c.Param("server_id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MetricHandlers) APIHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusOK, gin.H{"ok": false, "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	list, err := h.manager.MetricHistory(c.Request.Context(), c.Param("server_id"), limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
