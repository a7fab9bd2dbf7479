package manager

import (
	"context"
	"errors"

	"cmm/internal/middleware"
	"cmm/internal/models"
	"cmm/internal/store"

	"go.uber.org/zap"
)

type RegisterServerInput struct {
	ServerID    string `json:"server_id" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,max=255"`
	IP          string `json:"ip" validate:"required,max=255"`
	Environment string `json:"environment" validate:"required,max=64"`
	Owner       string `json:"owner" validate:"required,max=255"`
}

func (in *RegisterServerInput) sanitize() {
	in.ServerID = middleware.SanitizeString(in.ServerID)
	in.Name = middleware.SanitizeString(in.Name)
	in.IP = middleware.SanitizeString(in.IP)
	in.Environment = middleware.SanitizeString(in.Environment)
	in.Owner = middleware.SanitizeString(in.Owner)
}

// RegisterServer adds a server. An existing server_id is rejected, never replaced.
func (m *Manager) RegisterServer(ctx context.Context, in RegisterServerInput) (*models.Server, error) {
	in.sanitize()
	if err := middleware.ValidateStruct(in); err != nil {
		return nil, err
	}
	srv := &models.Server{
		ServerID:    in.ServerID,
		Name:        in.Name,
		IP:          in.IP,
		Environment: in.Environment,
		Owner:       in.Owner,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.db.Repository().CreateServer(ctx, srv); err != nil {
		return nil, err
	}
	m.log.Info("server registered", zap.String("server_id", srv.ServerID), zap.String("environment", srv.Environment))
	return srv, nil
}

// ListServers returns servers newest registration first.
func (m *Manager) ListServers(ctx context.Context) ([]models.Server, error) {
	return m.db.Repository().ListServers(ctx)
}

// DeleteServer removes a server and its metrics together. Alerts raised
// for it are kept.
func (m *Manager) DeleteServer(ctx context.Context, serverID string) error {
	err := m.db.WithTx(ctx, func(r *store.Repository) error {
		srv, err := r.ServerByServerID(ctx, serverID)
		if err != nil {
			return err
		}
		return r.DeleteServer(ctx, srv.ID)
	})
	if err != nil {
		return err
	}
	m.log.Info("server deleted", zap.String("server_id", serverID))
	return nil
}

// LatestMetric returns the newest sample for serverID, or nil when the
// server is unknown or has not reported yet.
func (m *Manager) LatestMetric(ctx context.Context, serverID string) (*models.Metric, error) {
	r := m.db.Repository()
	srv, err := r.ServerByServerID(ctx, serverID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.LatestMetric(ctx, srv)
}

// MetricHistory returns recent samples for serverID, newest first.
func (m *Manager) MetricHistory(ctx context.Context, serverID string, limit int) ([]models.Metric, error) {
	r := m.db.Repository()
	srv, err := r.ServerByServerID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return r.RecentMetrics(ctx, srv, limit)
}

// RecentAlerts returns up to 200 alerts, newest first.
func (m *Manager) RecentAlerts(ctx context.Context) ([]models.Alert, error) {
	return m.db.Repository().RecentAlerts(ctx, store.MaxRecentAlerts)
}
