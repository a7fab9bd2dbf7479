package store

import (
	"context"
	"strings"
	"time"

	"cmm/internal/models"
)

const userColumns = `id,email,password_hash,role,is_active,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts u and fills in its ID. Duplicate emails fail with ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = NormalizeEmail(u.Email)
	err := r.queryRow(ctx, `INSERT INTO users (email,password_hash,role,is_active,created_at)
		VALUES (?,?,?,?,?) RETURNING id`,
		u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt.UTC()).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewError(models.ErrConflict, "Email already exists")
		}
		return dbError("insert user", err)
	}
	return nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email)))
	if err != nil {
		if isNoRows(err) {
			return nil, models.NewError(models.ErrNotFound, "user not found")
		}
		return nil, dbError("load user", err)
	}
	return u, nil
}

func (r *Repository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, models.NewError(models.ErrNotFound, "user not found")
		}
		return nil, dbError("load user", err)
	}
	return u, nil
}

// ListUsers returns every account ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, dbError("list users", err)
	}
	defer rows.Close()
	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, dbError("scan user", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list users", err)
	}
	return out, nil
}

func (r *Repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := r.exec(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return dbError("update user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewError(models.ErrNotFound, "user not found")
	}
	return nil
}

func (r *Repository) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	res, err := r.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return dbError("update user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewError(models.ErrNotFound, "user not found")
	}
	return nil
}

// AdminCount reports how many active admins exist.
func (r *Repository) AdminCount(ctx context.Context) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = ? AND is_active = ?`, string(models.RoleAdmin), true).Scan(&n); err != nil {
		return 0, dbError("count admins", err)
	}
	return n, nil
}
