package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/qr-access-control/internal/model"
	"github.com/iliyamo/qr-access-control/internal/utils"
)

// GuardRepo persists guard operator accounts.
type GuardRepo struct{ DB *sql.DB }

func NewGuardRepo(db *sql.DB) *GuardRepo { return &GuardRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a guard and returns its ID.
func (r *GuardRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO guards (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a guard by normalized email.
func (r *GuardRepo) GetByEmail(ctx context.Context, email string) (model.Guard, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var g model.Guard
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM guards WHERE email=? LIMIT 1",
		email).Scan(&g.ID, &g.Email, &g.PasswordHash, &g.Role, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// GetByID fetches a guard by id.
func (r *GuardRepo) GetByID(ctx context.Context, id uint64) (model.Guard, error) {
	var g model.Guard
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM guards WHERE id=? LIMIT 1",
		id).Scan(&g.ID, &g.Email, &g.PasswordHash, &g.Role, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}
