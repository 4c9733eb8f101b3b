package model

import "time"

// AuditAction enumerates the actions recorded in the access audit log.
type AuditAction string

const (
	ActionIssue         AuditAction = "ISSUE"
	ActionValidateAllow AuditAction = "VALIDATE_ALLOW"
	ActionValidateDeny  AuditAction = "VALIDATE_DENY"
)

// AuditEntry models a row of the append-only `audit_log` table.  Entries
// are written once and never mutated or deleted by this service; retention
// is an external policy.
//
// Fields:
//  ID          – primary key identifier.
//  Kind        – pass kind involved, when known (empty on lookup misses).
//  Action      – ISSUE, VALIDATE_ALLOW or VALIDATE_DENY.
//  SubjectKind – subject population, when the pass resolved to one.
//  SubjectID   – subject row ID, when resolved.
//  PassID      – pass involved, when one was found.
//  GuardID     – guard who performed the scan; nil for issuance flows
//                triggered by the system itself.
//  Reason      – machine-readable reason token for deny outcomes.
//  CreatedAt   – timestamp of the event.
type AuditEntry struct {
	ID          uint64       // audit_log.id
	Kind        PassKind     // audit_log.kind (may be empty)
	Action      AuditAction  // audit_log.action
	SubjectKind *SubjectKind // audit_log.subject_kind (nullable)
	SubjectID   *uint64      // audit_log.subject_id (nullable)
	PassID      *uint64      // audit_log.pass_id (nullable)
	GuardID     *uint64      // audit_log.guard_id (nullable)
	Reason      string       // audit_log.reason
	CreatedAt   time.Time    // audit_log.created_at
}

// ScanAttempt models a row of the `scan_attempts` table, kept separate
// from the access audit log.  A row is appended for every failed scan that
// resolved to an institutional user so that security review can spot
// repeated failures against one account.
//
// Fields:
//  ID        – primary key identifier.
//  SubjectID – institutional user the failed scan resolved to.
//  PassID    – pass involved, when one was found.
//  GuardID   – guard who performed the scan.
//  Outcome   – outcome token (DENIED, INVALID_QR, EXPIRED_QR).
//  Reason    – machine-readable reason token.
//  CreatedAt – timestamp of the attempt.
type ScanAttempt struct {
	ID        uint64    // scan_attempts.id
	SubjectID uint64    // scan_attempts.subject_id
	PassID    *uint64   // scan_attempts.pass_id (nullable)
	GuardID   *uint64   // scan_attempts.guard_id (nullable)
	Outcome   string    // scan_attempts.outcome
	Reason    string    // scan_attempts.reason
	CreatedAt time.Time // scan_attempts.created_at
}
