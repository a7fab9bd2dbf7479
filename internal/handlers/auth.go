package handlers

import (
	"errors"

	"cmm/internal/manager"
	"cmm/internal/middleware"
	"cmm/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandlers struct {
	authService *middleware.AuthService
	manager     *manager.Manager
	log         *zap.Logger
}

func NewAuthHandlers(authService *middleware.AuthService, mgr *manager.Manager, log *zap.Logger) *AuthHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandlers{authService: authService, manager: mgr, log: log}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// APIRegister creates an account.
func (h *AuthHandlers) APIRegister(c *gin.Context) {
	var req manager.RegisterUserInput
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.manager.RegisterUser(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	h.log.Info("account created", zap.Int64("user_id", u.ID), zap.String("client_ip", c.ClientIP()))
	ok(c, gin.H{"message": "User created"})
}

// APILogin exchanges credentials for a bearer token.
func (h *AuthHandlers) APILogin(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	email := middleware.SanitizeString(req.Email)
	token, u, err := h.authService.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrAuth) {
			// Which credential was wrong stays in the log.
			h.log.Info("login failed", zap.String("email", email), zap.String("client_ip", c.ClientIP()))
		}
		fail(c, h.log, err)
		return
	}
	h.log.Info("login successful", zap.Int64("user_id", u.ID), zap.String("client_ip", c.ClientIP()))
	ok(c, gin.H{
		"token":      token,
		"token_type": "bearer",
		"role":       u.Role,
		"expires_in": int(h.authService.TTL().Seconds()),
	})
}
