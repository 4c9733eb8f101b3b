package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/qr-access-control/internal/access"
	"github.com/iliyamo/qr-access-control/internal/model"
)

// Store implements access.Store over MySQL.  Every pass/subject mutation
// in the system funnels through WithinTx; lookups inside the transaction
// use SELECT ... FOR UPDATE so that concurrent operations on the same
// pass or subject serialize on the row locks.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store bound to the given database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for components that manage their own
// transactions (the expiry sweep).
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx starts a transaction, runs fn against a transactional view and
// commits when fn returns nil.  MySQL lock-wait timeouts and deadlocks
// are mapped to access.ErrTxConflict so idempotent callers can retry.
func (s *Store) WithinTx(ctx context.Context, fn func(tx access.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapTxErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&storeTx{tx: tx}); err != nil {
		return mapTxErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapTxErr(err)
	}
	committed = true
	return nil
}

// mapTxErr translates driver errors into the access package sentinels.
// Error 1205 is a lock wait timeout, 1213 a deadlock victim.
func mapTxErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "1205") || strings.Contains(msg, "1213") {
		return access.ErrTxConflict
	}
	return err
}

// storeTx adapts a *sql.Tx to the access.StoreTx contract.
type storeTx struct {
	tx *sql.Tx
}

const passColumns = `id, code, kind, status, expires_at, subject_kind, subject_id, created_at`

// scanPass reads one passes row.  expires_at is nullable.
func scanPass(row *sql.Row) (*model.Pass, error) {
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

func (t *storeTx) PassByCode(ctx context.Context, code string) (*model.Pass, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes WHERE code = ? FOR UPDATE`, code)
	return scanPass(row)
}

func (t *storeTx) ActivePass(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (*model.Pass, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE subject_kind = ? AND subject_id = ? AND kind = ? AND status = 'ACTIVE'
		 ORDER BY id DESC LIMIT 1 FOR UPDATE`,
		string(subject.Kind), subject.ID, string(kind))
	return scanPass(row)
}

func (t *storeTx) InsertPass(ctx context.Context, p *model.Pass) error {
	var expires interface{}
	if p.ExpiresAt != nil {
		expires = p.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO passes (code, kind, status, expires_at, subject_kind, subject_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Code, string(p.Kind), string(p.Status), expires, string(p.Subject.Kind), p.Subject.ID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = time.Now().UTC()
	return nil
}

func (t *storeTx) RevokeActive(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE passes SET status = 'REVOKED'
		 WHERE subject_kind = ? AND subject_id = ? AND kind = ? AND status = 'ACTIVE'`,
		string(subject.Kind), subject.ID, string(kind))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *storeTx) SetPassStatus(ctx context.Context, passID uint64, status model.PassStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE passes SET status = ? WHERE id = ?`, string(status), passID)
	return err
}

func (t *storeTx) Institutional(ctx context.Context, id uint64) (*model.InstitutionalUser, error) {
	var u model.InstitutionalUser
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, full_name, email, type, access_state, is_active, created_at
		 FROM institutional_users WHERE id = ? FOR UPDATE`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &u.Type, &u.AccessState, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *storeTx) Guest(ctx context.Context, id uint64) (*model.GuestVisit, error) {
	var g model.GuestVisit
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, public_id, full_name, document, state, expires_at, created_at
		 FROM guest_visits WHERE id = ? FOR UPDATE`, id).
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

func (t *storeTx) SetAccessState(ctx context.Context, id uint64, st model.AccessState) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE institutional_users SET access_state = ? WHERE id = ?`, string(st), id)
	return err
}

func (t *storeTx) SetGuestState(ctx context.Context, id uint64, st model.GuestState) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE guest_visits SET state = ? WHERE id = ?`, string(st), id)
	return err
}

func (t *storeTx) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	return insertAudit(ctx, t.tx, e)
}

// execer lets audit inserts run against either *sql.DB or *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, e *model.AuditEntry) error {
	var subjectKind interface{}
	if e.SubjectKind != nil {
		subjectKind = string(*e.SubjectKind)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (kind, action, subject_kind, subject_id, pass_id, guard_id, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), string(e.Action), subjectKind, e.SubjectID, e.PassID, e.GuardID, e.Reason)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = uint64(id)
	}
	return nil
}
