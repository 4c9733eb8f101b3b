package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/qr-access-control/internal/access"
	"github.com/iliyamo/qr-access-control/internal/model"
)

// PassRepo provides read access to passes outside the validator's locking
// transactions, plus the bulk transitions used by the periodic expiry
// sweep.  The sweep materializes the same terminal states the validator
// produces lazily, so reporting stays fresh for rows that are never
// scanned again.
type PassRepo struct {
	db *sql.DB
}

// NewPassRepo returns a PassRepo bound to the given database.
func NewPassRepo(db *sql.DB) *PassRepo { return &PassRepo{db: db} }

// DB exposes the underlying handle so callers can open sweep
// transactions.
func (r *PassRepo) DB() *sql.DB { return r.db }

// FindByCode returns a pass without locking it.  Used by read-only
// listings; the validator always goes through the locking store instead.
func (r *PassRepo) FindByCode(ctx context.Context, code string) (*model.Pass, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes WHERE code = ?`, code)
	var p model.Pass
	var expires sql.NullTime
	var subjectKind string
	err := row.Scan(&p.ID, &p.Code, &p.Kind, &p.Status, &expires, &subjectKind, &p.Subject.ID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		p.ExpiresAt = &t
	}
	p.Subject.Kind = model.SubjectKind(subjectKind)
	return &p, nil
}

// ListBySubject returns all passes of a subject, newest first.
func (r *PassRepo) ListBySubject(ctx context.Context, subject model.SubjectRef) ([]model.Pass, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE subject_kind = ? AND subject_id = ?
		 ORDER BY id DESC`,
		string(subject.Kind), subject.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	passes := make([]model.Pass, 0)
	for rows.Next() {
		var p model.Pass
		var expires sql.NullTime
		var subjectKind string
		if err := rows.Scan(&p.ID, &p.Code, &p.Kind, &p.Status, &expires, &subjectKind, &p.Subject.ID, &p.CreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time.UTC()
			p.ExpiresAt = &t
		}
		p.Subject.Kind = model.SubjectKind(subjectKind)
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return passes, nil
}

// ExpireStaleInstitutionalTx marks ACTIVE institutional passes whose
// expires_at has elapsed as EXPIRED.  It returns the number of rows
// transitioned.  The caller owns the transaction.
func (r *PassRepo) ExpireStaleInstitutionalTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE passes SET status = 'EXPIRED'
		 WHERE subject_kind = 'INSTITUTIONAL' AND status = 'ACTIVE'
		   AND expires_at IS NOT NULL AND expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireActiveOfLapsedGuestsTx marks ACTIVE passes of lapsed guest visits
// as EXPIRED, matching the validator's lazy transition for lapsed visits.
// The caller owns the transaction.
func (r *PassRepo) ExpireActiveOfLapsedGuestsTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE passes p
		 JOIN guest_visits g ON g.id = p.subject_id
		 SET p.status = 'EXPIRED'
		 WHERE p.subject_kind = 'GUEST' AND p.status = 'ACTIVE'
		   AND g.expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
