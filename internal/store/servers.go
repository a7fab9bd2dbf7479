package store

import (
	"context"
	"time"

	"cmm/internal/models"
)

const serverColumns = `id,server_id,name,ip,environment,owner,created_at`

func scanServer(s rowScanner) (*models.Server, error) {
	var srv models.Server
	if err := s.Scan(&srv.ID, &srv.ServerID, &srv.Name, &srv.IP, &srv.Environment, &srv.Owner, &srv.CreatedAt); err != nil {
		return nil, err
	}
	return &srv, nil
}

// CreateServer registers srv. An existing server_id is never overwritten.
func (r *Repository) CreateServer(ctx context.Context, srv *models.Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}
	err := r.queryRow(ctx, `INSERT INTO servers (server_id,name,ip,environment,owner,created_at)
		VALUES (?,?,?,?,?,?) RETURNING id`,
		srv.ServerID, srv.Name, srv.IP, srv.Environment, srv.Owner, srv.CreatedAt.UTC()).Scan(&srv.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewError(models.ErrConflict, "server_id already exists")
		}
		return dbError("insert server", err)
	}
	return nil
}

func (r *Repository) ServerByServerID(ctx context.Context, serverID string) (*models.Server, error) {
	srv, err := scanServer(r.queryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE server_id = ?`, serverID))
	if err != nil {
		if isNoRows(err) {
			return nil, models.NewError(models.ErrNotFound, "Unknown server_id")
		}
		return nil, dbError("load server", err)
	}
	return srv, nil
}

// ListServers returns servers newest registration first.
func (r *Repository) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := r.query(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id DESC`)
	if err != nil {
		return nil, dbError("list servers", err)
	}
	defer rows.Close()
	out := []models.Server{}
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, dbError("scan server", err)
		}
		out = append(out, *srv)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list servers", err)
	}
	return out, nil
}

// DeleteServer removes the server row and its metrics. Call it inside WithTx
// so both deletes land together. Alerts are left in place.
func (r *Repository) DeleteServer(ctx context.Context, id int64) error {
	if _, err := r.exec(ctx, `DELETE FROM metrics WHERE server_fk = ?`, id); err != nil {
		return dbError("delete metrics", err)
	}
	res, err := r.exec(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return dbError("delete server", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewError(models.ErrNotFound, "Unknown server_id")
	}
	return nil
}
