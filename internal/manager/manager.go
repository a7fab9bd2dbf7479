// Package manager implements the service operations behind the HTTP API:
// account administration, the server registry, metric ingestion with alert
// evaluation, and the read-side queries.
package manager

import (
	"context"
	"time"

	"cmm/internal/alerts"
	"cmm/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PasswordHasher turns a plaintext password into a stored hash.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

type Options struct {
	Engine *alerts.Engine
	Hasher PasswordHasher
	Logger *zap.Logger
}

type Manager struct {
	db     *store.DB
	engine *alerts.Engine
	hasher PasswordHasher
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(db *store.DB, opts Options) *Manager {
	engine := opts.Engine
	if engine == nil {
		engine = alerts.NewEngine(nil)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		db:     db,
		engine: engine,
		hasher: opts.Hasher,
		log:    log,
		tracer: otel.Tracer("cmm/internal/manager"),
		now:    time.Now,
	}
}

// Repository exposes pool-bound queries, e.g. as the auth gate's user lookup.
func (m *Manager) Repository() *store.Repository {
	return m.db.Repository()
}

// Ready reports whether the database answers.
func (m *Manager) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return m.db.PingContext(ctx)
}
