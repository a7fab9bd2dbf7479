package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"cmm/internal/manager"
	"cmm/internal/middleware"
	"cmm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandlers struct {
	manager *manager.Manager
	log     *zap.Logger
}

func NewUserHandlers(mgr *manager.Manager, log *zap.Logger) *UserHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandlers{manager: mgr, log: log}
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *UserHandlers) APIListUsers(c *gin.Context) {
	list, err := h.manager.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": "Invalid user id"})
		return 0, false
	}
	return id, true
}

func (h *UserHandlers) APISetActive(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	var req setActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	actor, _ := middleware.CurrentUser(c)
	if err := h.manager.SetUserActive(c.Request.Context(), actor, id, *req.Active); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, nil)
}

func (h *UserHandlers) APISetRole(c *gin.Context) {
	id, valid := userIDParam(c)
	if !valid {
		return
	}
	var req setRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role := models.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if err := h.manager.SetUserRole(c.Request.Context(), id, role); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, nil)
}
