package store

import (
	"context"

	"cmm/internal/models"
)

const MaxRecentAlerts = 200

func (r *Repository) InsertAlert(ctx context.Context, a *models.Alert) error {
	err := r.queryRow(ctx, `INSERT INTO alerts (server_id,ts,level,message) VALUES (?,?,?,?) RETURNING id`,
		a.ServerID, a.Timestamp.UTC(), string(a.Level), a.Message).Scan(&a.ID)
	if err != nil {
		return dbError("insert alert", err)
	}
	return nil
}

// RecentAlerts returns at most limit alerts (capped at MaxRecentAlerts), newest first.
func (r *Repository) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	limit = clampLimit(limit, MaxRecentAlerts, MaxRecentAlerts)
	rows, err := r.query(ctx, `SELECT id,server_id,ts,level,message FROM alerts ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, dbError("list alerts", err)
	}
	defer rows.Close()
	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		var a models.Alert
		var level string
		if err := rows.Scan(&a.ID, &a.ServerID, &a.Timestamp, &level, &a.Message); err != nil {
			return nil, dbError("scan alert", err)
		}
		a.Level = models.AlertLevel(level)
		a.Timestamp = a.Timestamp.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list alerts", err)
	}
	return out, nil
}
