package handlers

import (
	"errors"
	"net/http"
	"strings"

	"cmm/internal/middleware"
	"cmm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fail reports a domain outcome as {"ok":false} with status 200 and
// anything else as a 5xx. Auth failures never reach here from protected
// routes; RequireRoles answers those itself.
func fail(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrAuth):
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": models.Message(err)})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "message": models.Message(err)})
	default:
		_ = c.Error(err)
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInfrastructure) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ok": false, "message": "internal error"})
	}
}

// bindJSON decodes the body into v or answers 400.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		msg := "Invalid JSON format"
		if detail := strings.TrimSpace(err.Error()); detail != "" {
			msg += ": " + detail
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "message": msg})
		return false
	}
	return true
}

func ok(c *gin.Context, extra gin.H) {
	body := gin.H{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
