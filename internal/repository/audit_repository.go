package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// AuditRepo provides append-only access to the audit_log and
// scan_attempts tables.  Rows are never updated or deleted here;
// retention is an external policy.  It satisfies access.AuditLog for the
// entries that are written outside the decision transaction.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns an AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Append writes an audit entry and fills in its generated ID.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEntry) error {
	return insertAudit(ctx, r.db, e)
}

// RecordAttempt writes a scan-attempt row for a failed institutional
// scan.
func (r *AuditRepo) RecordAttempt(ctx context.Context, a *model.ScanAttempt) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_attempts (subject_id, pass_id, guard_id, outcome, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		a.SubjectID, a.PassID, a.GuardID, a.Outcome, a.Reason)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = uint64(id)
	}
	return nil
}

// CountRecentFailures returns how many failed scans were recorded for an
// institutional user within the given window.  Used by security review
// endpoints and by tests; the validator itself never reads attempts.
func (r *AuditRepo) CountRecentFailures(ctx context.Context, subjectID uint64, windowMinutes int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scan_attempts
		 WHERE subject_id = ? AND created_at >= UTC_TIMESTAMP() - INTERVAL ? MINUTE`,
		subjectID, windowMinutes).Scan(&n)
	return n, err
}
