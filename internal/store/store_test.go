package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"cmm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "data", "cmm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func mustServer(t *testing.T, r *Repository, serverID string) *models.Server {
	t.Helper()
	srv := &models.Server{ServerID: serverID, Name: serverID, IP: "10.0.0.1", Environment: "prod", Owner: "ops"}
	require.NoError(t, r.CreateServer(context.Background(), srv))
	return srv
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?`
	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3`, DialectPostgres.Rebind(q))
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		in      string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{in: "sqlite://./data/cmm.db", dialect: DialectSQLite, dsn: "./data/cmm.db"},
		{in: "sqlite:////var/lib/cmm.db", dialect: DialectSQLite, dsn: "/var/lib/cmm.db"},
		{in: "cmm.db", dialect: DialectSQLite, dsn: "cmm.db"},
		{in: "postgres://u:p@db:5432/cmm?sslmode=disable", dialect: DialectPostgres, dsn: "postgres://u:p@db:5432/cmm?sslmode=disable"},
		{in: "postgresql://db/cmm", dialect: DialectPostgres, dsn: "postgresql://db/cmm"},
		{in: "mysql://db/cmm", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		d, dsn, err := parseURL(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.dialect, d, tc.in)
		assert.Equal(t, tc.dsn, dsn, tc.in)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	r := db.Repository()
	ctx := context.Background()

	u := &models.User{Email: "Ops@Example.com", PasswordHash: "x", Role: models.RoleTech, IsActive: true}
	require.NoError(t, r.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ops@example.com", u.Email)

	err := r.CreateUser(ctx, &models.User{Email: "ops@example.com ", PasswordHash: "y", Role: models.RoleAdmin, IsActive: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, "Email already exists", models.Message(err))

	got, err := r.UserByEmail(ctx, "OPS@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RoleTech, got.Role)
	assert.True(t, got.IsActive)
}

func TestUserLookupMissing(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Repository().UserByID(context.Background(), 42)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = db.Repository().UserByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSetUserActive(t *testing.T) {
	db := newTestDB(t)
	r := db.Repository()
	ctx := context.Background()
	u := &models.User{Email: "a@example.com", PasswordHash: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, r.CreateUser(ctx, u))

	n, err := r.AdminCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.SetUserActive(ctx, u.ID, false))
	got, err := r.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	n, err = r.AdminCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	err = r.SetUserActive(ctx, u.ID+100, true)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestServerRegistry(t *testing.T) {
	db := newTestDB(t)
	r := db.Repository()
	ctx := context.Background()

	mustServer(t, r, "web-01")
	mustServer(t, r, "web-02")
	mustServer(t, r, "db-01")

	err := r.CreateServer(ctx, &models.Server{ServerID: "web-01", Name: "other", IP: "10.0.0.9", Environment: "dev", Owner: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, "server_id already exists", models.Message(err))

	list, err := r.ListServers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "db-01", list[0].ServerID)
	assert.Equal(t, "web-01", list[2].ServerID)
	assert.Equal(t, "web-01", list[2].Name, "duplicate registration must not overwrite")

	_, err = r.ServerByServerID(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestLatestMetric(t *testing.T) {
	db := newTestDB(t)
	r := db.Repository()
	ctx := context.Background()
	srv := mustServer(t, r, "web-01")

	got, err := r.LatestMetric(ctx, srv)
	require.NoError(t, err)
	assert.Nil(t, got)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	insert := func(ts time.Time, cpu float64) {
		require.NoError(t, r.InsertMetric(ctx, &models.Metric{ServerFK: srv.ID, Timestamp: ts, CPUPercent: cpu, RAMPercent: 1, DiskPercent: 2, UptimeSeconds: 3}))
	}
	insert(base.Add(time.Minute), 10)
	insert(base, 20)
	got, err = r.LatestMetric(ctx, srv)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, got.CPUPercent, "older sample inserted later must not win")
	assert.True(t, got.Timestamp.Equal(base.Add(time.Minute)))

	insert(base.Add(time.Minute), 30)
	got, err = r.LatestMetric(ctx, srv)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.CPUPercent, "timestamp tie goes to the last insert")
	assert.Equal(t, "web-01", got.ServerID)
	assert.Equal(t, int64(3), got.UptimeSeconds)

	hist, err := r.RecentMetrics(ctx, srv, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 30.0, hist[0].CPUPercent)
	assert.Equal(t, 10.0, hist[1].CPUPercent)
}

func TestRecentAlertsCapAndOrder(t *testing.T) {
	db := newTestDB(t)
	r := db.Repository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxRecentAlerts+5; i++ {
		require.NoError(t, r.InsertAlert(ctx, &models.Alert{
			ServerID:  "web-01",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Level:     models.AlertWarning,
			Message:   fmt.Sprintf("alert %d", i),
		}))
	}
	list, err := r.RecentAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, MaxRecentAlerts)
	assert.Equal(t, fmt.Sprintf("alert %d", MaxRecentAlerts+4), list[0].Message)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].Timestamp.After(list[i-1].Timestamp))
	}

	list, err = r.RecentAlerts(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, list, MaxRecentAlerts)
}

func TestDeleteServerKeepsAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := db.Repository()
	srv := mustServer(t, r, "web-01")
	require.NoError(t, r.InsertMetric(ctx, &models.Metric{ServerFK: srv.ID, Timestamp: time.Now().UTC()}))
	require.NoError(t, r.InsertAlert(ctx, &models.Alert{ServerID: "web-01", Timestamp: time.Now().UTC(), Level: models.AlertCritical, Message: "Disk nearly full: 95%"}))

	require.NoError(t, db.WithTx(ctx, func(tx *Repository) error {
		return tx.DeleteServer(ctx, srv.ID)
	}))

	n, err := r.CountMetrics(ctx, srv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = r.ServerByServerID(ctx, "web-01")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	alerts, err := r.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	srv := mustServer(t, db.Repository(), "web-01")
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *Repository) error {
		if err := tx.InsertMetric(ctx, &models.Metric{ServerFK: srv.ID, Timestamp: time.Now().UTC()}); err != nil {
			return err
		}
		if err := tx.InsertAlert(ctx, &models.Alert{ServerID: "web-01", Timestamp: time.Now().UTC(), Level: models.AlertWarning, Message: "x"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.Repository().CountMetrics(ctx, srv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	alerts, err := db.Repository().RecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestMetricRequiresExistingServer(t *testing.T) {
	db := newTestDB(t)
	err := db.Repository().InsertMetric(context.Background(), &models.Metric{ServerFK: 999, Timestamp: time.Now().UTC()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInfrastructure))
}
