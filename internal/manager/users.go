package manager

import (
	"context"
	"errors"
	"strings"

	"cmm/internal/middleware"
	"cmm/internal/models"
	"cmm/internal/store"

	"go.uber.org/zap"
)

type RegisterUserInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,role"`
}

// RegisterUser creates an active account. Role defaults to viewer.
func (m *Manager) RegisterUser(ctx context.Context, in RegisterUserInput) (*models.User, error) {
	in.Email = store.NormalizeEmail(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := middleware.ValidateStruct(in); err != nil {
		return nil, err
	}
	role := models.RoleViewer
	if in.Role != "" {
		role = models.Role(in.Role)
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, models.NewError(models.ErrValidation, "password is required")
	}
	if m.hasher == nil {
		return nil, errors.New("manager: no password hasher configured")
	}
	hash, err := m.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.db.Repository().CreateUser(ctx, u); err != nil {
		return nil, err
	}
	m.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

func (m *Manager) ListUsers(ctx context.Context) ([]models.User, error) {
	return m.db.Repository().ListUsers(ctx)
}

// SetUserActive enables or disables an account. It applies to the user's
// next request since authorization re-reads the account every time.
func (m *Manager) SetUserActive(ctx context.Context, actor *models.User, id int64, active bool) error {
	if actor != nil && actor.ID == id && !active {
		return models.NewError(models.ErrValidation, "You cannot deactivate your own account")
	}
	if err := m.db.Repository().SetUserActive(ctx, id, active); err != nil {
		return err
	}
	m.log.Info("user active state changed", zap.Int64("user_id", id), zap.Bool("active", active))
	return nil
}

// SetUserRole changes an account's role. The last active admin cannot be demoted.
func (m *Manager) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	if !role.Valid() {
		return models.NewError(models.ErrValidation, "Invalid role")
	}
	return m.db.WithTx(ctx, func(r *store.Repository) error {
		u, err := r.UserByID(ctx, id)
		if err != nil {
			return err
		}
		if u.Role == models.RoleAdmin && role != models.RoleAdmin && u.IsActive {
			n, err := r.AdminCount(ctx)
			if err != nil {
				return err
			}
			if n <= 1 {
				return models.NewError(models.ErrValidation, "Cannot demote the last admin")
			}
		}
		if err := r.SetUserRole(ctx, id, role); err != nil {
			return err
		}
		m.log.Info("user role changed", zap.Int64("user_id", id), zap.String("role", string(role)))
		return nil
	})
}
