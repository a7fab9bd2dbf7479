package handlers

import (
	"net/http"

	"cmm/internal/manager"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServerHandlers struct {
	manager *manager.Manager
	log     *zap.Logger
}

func NewServerHandlers(mgr *manager.Manager, log *zap.Logger) *ServerHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServerHandlers{manager: mgr, log: log}
}

func (h *ServerHandlers) APIRegisterServer(c *gin.Context) {
	var req manager.RegisterServerInput
	if !bindJSON(c, &req) {
		return
	}
	if _, err := h.manager.RegisterServer(c.Request.Context(), req); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, nil)
}

func (h *ServerHandlers) APIListServers(c *gin.Context) {
	list, err := h.manager.ListServers(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ServerHandlers) APIDeleteServer(c *gin.Context) {
	if err := h.manager.DeleteServer(c.Request.Context(), c.Param("server_id")); err != nil {
		fail(c, h.log, err)
		return
	}
	ok(c, nil)
}
