package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/qr-access-control/internal/access"
	"github.com/iliyamo/qr-access-control/internal/model"
)

// SubjectRepo reads institutional users and reads/writes guest visits.
// Institutional account CRUD belongs to an external subsystem; this
// service only consumes the rows.  Guest visits, in contrast, are
// registered here by guards and admins.
type SubjectRepo struct {
	db *sql.DB
}

// NewSubjectRepo returns a SubjectRepo bound to the given database.
func NewSubjectRepo(db *sql.DB) *SubjectRepo { return &SubjectRepo{db: db} }

// FindInstitutional returns an institutional user without locking.
func (r *SubjectRepo) FindInstitutional(ctx context.Context, id uint64) (*model.InstitutionalUser, error) {
	var u model.InstitutionalUser
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, type, access_state, is_active, created_at
		 FROM institutional_users WHERE id = ?`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &u.Type, &u.AccessState, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindGuest returns a guest visit without locking.
func (r *SubjectRepo) FindGuest(ctx context.Context, id uint64) (*model.GuestVisit, error) {
	var g model.GuestVisit
	err := r.db.QueryRowContext(ctx,
		`SELECT id, public_id, full_name, document, state, expires_at, created_at
		 FROM guest_visits WHERE id = ?`, id).
		Scan(&g.ID, &g.PublicID, &g.FullName, &g.Document, &g.State, &g.ExpiresAt, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.ExpiresAt = g.ExpiresAt.UTC()
	return &g, nil
}

// CreateGuestVisit registers a new visit in the OUTSIDE state with the
// given validity window end.  A fresh public UUID is assigned and the
// generated row ID is filled in.  A window that already ended is a
// conflict.
func (r *SubjectRepo) CreateGuestVisit(ctx context.Context, fullName, document string, expiresAt time.Time) (*model.GuestVisit, error) {
	fullName = strings.TrimSpace(fullName)
	document = strings.TrimSpace(document)
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrConflict
	}
	g := &model.GuestVisit{
		PublicID:  uuid.NewString(),
		FullName:  fullName,
		Document:  document,
		State:     model.GuestOutside,
		ExpiresAt: expiresAt.UTC(),
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO guest_visits (public_id, full_name, document, state, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		g.PublicID, g.FullName, g.Document, string(g.State), g.ExpiresAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	g.ID = uint64(id)
	g.CreatedAt = time.Now().UTC()
	return g, nil
}

// CompleteLapsedVisitsTx marks lapsed guest visits as COMPLETED.  It
// returns the number of rows transitioned.  The caller owns the
// transaction and should expire the visits' ACTIVE passes in the same
// transaction.
func (r *SubjectRepo) CompleteLapsedVisitsTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE guest_visits SET state = 'COMPLETED'
		 WHERE state <> 'COMPLETED' AND expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
