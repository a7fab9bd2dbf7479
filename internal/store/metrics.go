package store

import (
	"context"

	"cmm/internal/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// InsertMetric appends m. Values are stored as received.
func (r *Repository) InsertMetric(ctx context.Context, m *models.Metric) error {
	err := r.queryRow(ctx, `INSERT INTO metrics (server_fk,ts,cpu_percent,ram_percent,disk_percent,uptime_seconds)
		VALUES (?,?,?,?,?,?) RETURNING id`,
		m.ServerFK, m.Timestamp.UTC(), m.CPUPercent, m.RAMPercent, m.DiskPercent, m.UptimeSeconds).Scan(&m.ID)
	if err != nil {
		return dbError("insert metric", err)
	}
	return nil
}

// LatestMetric returns the sample with the greatest timestamp for the server.
// Equal timestamps resolve to the most recently inserted row. It returns
// (nil, nil) when the server has no samples.
func (r *Repository) LatestMetric(ctx context.Context, srv *models.Server) (*models.Metric, error) {
	m := models.Metric{ServerFK: srv.ID, ServerID: srv.ServerID}
	err := r.queryRow(ctx, `SELECT id,ts,cpu_percent,ram_percent,disk_percent,uptime_seconds
		FROM metrics WHERE server_fk = ? ORDER BY ts DESC, id DESC LIMIT 1`, srv.ID).
		Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.RAMPercent, &m.DiskPercent, &m.UptimeSeconds)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, dbError("load latest metric", err)
	}
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}

// RecentMetrics returns up to limit samples, newest first, using the same
// ordering as LatestMetric.
func (r *Repository) RecentMetrics(ctx context.Context, srv *models.Server, limit int) ([]models.Metric, error) {
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	rows, err := r.query(ctx, `SELECT id,ts,cpu_percent,ram_percent,disk_percent,uptime_seconds
		FROM metrics WHERE server_fk = ? ORDER BY ts DESC, id DESC LIMIT ?`, srv.ID, limit)
	if err != nil {
		return nil, dbError("list metrics", err)
	}
	defer rows.Close()
	out := make([]models.Metric, 0, limit)
	for rows.Next() {
		m := models.Metric{ServerFK: srv.ID, ServerID: srv.ServerID}
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.RAMPercent, &m.DiskPercent, &m.UptimeSeconds); err != nil {
			return nil, dbError("scan metric", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list metrics", err)
	}
	return out, nil
}

func (r *Repository) CountMetrics(ctx context.Context, serverFK int64) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM metrics WHERE server_fk = ?`, serverFK).Scan(&n); err != nil {
		return 0, dbError("count metrics", err)
	}
	return n, nil
}
