package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// Sentinel errors shared by every Store implementation.  Repositories map
// their driver-specific failures onto these so the issuer and validator
// never inspect database errors directly.
var (
	// ErrNotFound indicates the requested pass or subject row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTxConflict indicates the transaction lost a lock race (deadlock or
	// lock wait timeout) and may be retried by idempotent callers.
	ErrTxConflict = errors.New("transaction conflict")
)

// Store is the persistence boundary of the issuer and the validator.  All
// pass and subject mutation in the whole system goes through WithinTx; no
// other component writes pass status or subject location.
type Store interface {
	// WithinTx runs fn inside a single database transaction and commits it
	// when fn returns nil.  Rows read through the StoreTx are locked for
	// the duration of the transaction, which serializes concurrent
	// operations on the same pass or subject.  Once fn starts, the
	// transaction runs to commit or abort regardless of caller
	// cancellation.
	WithinTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the transactional view handed to WithinTx callbacks.  Lookup
// methods take row-level locks; mutation methods only touch rows already
// locked in the same transaction.
type StoreTx interface {
	// PassByCode returns the pass with the given code, locked for update.
	PassByCode(ctx context.Context, code string) (*model.Pass, error)
	// ActivePass returns the ACTIVE pass for a subject and kind, locked
	// for update, or ErrNotFound when none exists.
	ActivePass(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (*model.Pass, error)
	// InsertPass stores a new pass and fills in its generated ID and
	// creation timestamp.
	InsertPass(ctx context.Context, p *model.Pass) error
	// RevokeActive marks every ACTIVE pass for the subject and kind as
	// REVOKED and reports how many rows changed.
	RevokeActive(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (int, error)
	// SetPassStatus writes a new status for the given pass.
	SetPassStatus(ctx context.Context, passID uint64, status model.PassStatus) error

	// Institutional returns an institutional user, locked for update.
	Institutional(ctx context.Context, id uint64) (*model.InstitutionalUser, error)
	// Guest returns a guest visit, locked for update.
	Guest(ctx context.Context, id uint64) (*model.GuestVisit, error)
	// SetAccessState writes the location flag of an institutional user.
	SetAccessState(ctx context.Context, id uint64, st model.AccessState) error
	// SetGuestState writes the lifecycle state of a guest visit.
	SetGuestState(ctx context.Context, id uint64, st model.GuestState) error

	// AppendAudit writes an audit row inside the transaction.  Used for
	// VALIDATE_ALLOW and ISSUE entries, which must commit atomically with
	// the state change they describe.
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
}

// AuditLog receives the audit rows that do not need to be transactional
// with a state change: deny entries and the institutional scan-attempt
// records kept for security review.  Failures are logged by callers and
// never affect the scan outcome.
type AuditLog interface {
	Append(ctx context.Context, e *model.AuditEntry) error
	RecordAttempt(ctx context.Context, a *model.ScanAttempt) error
}

// AccessEvent is the notification payload produced after a scan decision
// for an institutional user with a resolvable contact channel.
type AccessEvent struct {
	SubjectName string                  `json:"subject_name"`
	Email       string                  `json:"email"`
	Kind        model.PassKind          `json:"kind"`
	Outcome     Outcome                 `json:"outcome"`
	Reason      string                  `json:"reason"`
	OccurredAt  string                  `json:"occurred_at"`
	GuardID     uint64                  `json:"guard_id"`
	SubjectType model.InstitutionalType `json:"subject_type"`
}

// Notifier dispatches access events best-effort.  Implementations must
// never block on downstream availability longer than their own internal
// timeouts; the validator calls this strictly after its transaction has
// committed and discards the error after logging it.
type Notifier interface {
	NotifyAccessEvent(ctx context.Context, ev AccessEvent) error
}

// newPassCode returns a fresh 128-bit random pass code, hex encoded to 32
// characters.
func newPassCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// nowUTC is the default clock; tests substitute a fixed one.
func nowUTC() time.Time { return time.Now().UTC() }
