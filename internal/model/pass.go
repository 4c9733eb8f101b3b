package model

import (
	"fmt"
	"time"
)

// PassKind names the direction of movement a pass authorizes.  The two
// built-in kinds are ENTRY and EXIT; deployments may register additional
// kinds through the PASS_KINDS_EXTRA allow-list, which is validated at the
// issuer and validator boundaries before any storage is touched.
type PassKind string

const (
	KindEntry PassKind = "ENTRY" // pass authorizes an entry transition
	KindExit  PassKind = "EXIT"  // pass authorizes an exit transition
)

// PassStatus is the stored lifecycle state of a pass.  ACTIVE passes are
// the only ones a scan can honor.  USED, EXPIRED and REVOKED are terminal:
// once written they are authoritative and never re-derived from time.
type PassStatus string

const (
	StatusActive  PassStatus = "ACTIVE"  // issued and scannable
	StatusUsed    PassStatus = "USED"    // consumed by a guest scan
	StatusExpired PassStatus = "EXPIRED" // lapsed past expires_at
	StatusRevoked PassStatus = "REVOKED" // superseded by a reissue
)

// Terminal reports whether the status can never transition again.
func (s PassStatus) Terminal() bool {
	return s == StatusUsed || s == StatusExpired || s == StatusRevoked
}

// SubjectKind discriminates the two subject populations a pass can belong
// to.  A pass references exactly one of them.
type SubjectKind string

const (
	SubjectInstitutional SubjectKind = "INSTITUTIONAL" // registered institutional user
	SubjectGuest         SubjectKind = "GUEST"         // pre-registered guest visit
)

// SubjectRef is a tagged reference to the owner of a pass.  It replaces a
// pair of mutually exclusive nullable foreign keys with a variant that the
// validator can switch over exhaustively; a zero ID or unknown kind is
// never persisted.
type SubjectRef struct {
	Kind SubjectKind // which table ID points into
	ID   uint64      // row identifier of the subject
}

// InstitutionalRef builds a reference to an institutional user.
func InstitutionalRef(id uint64) SubjectRef {
	return SubjectRef{Kind: SubjectInstitutional, ID: id}
}

// GuestRef builds a reference to a guest visit.
func GuestRef(id uint64) SubjectRef {
	return SubjectRef{Kind: SubjectGuest, ID: id}
}

// String renders the reference for logs and audit rows, e.g. "GUEST/42".
func (r SubjectRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Pass models a row of the `passes` table.  The code column is the opaque
// 32-character hex token encoded into the QR image and is the only lookup
// key the validator accepts.
//
// Fields:
//  ID        – primary key identifier.
//  Code      – unique random token (16 bytes, hex encoded), immutable.
//  Kind      – direction the pass authorizes (ENTRY, EXIT, extension).
//  Status    – lifecycle state (ACTIVE, USED, EXPIRED, REVOKED).
//  ExpiresAt – expiry timestamp; nil only for guest passes, which are
//              bounded by their visit window instead.
//  Subject   – tagged reference to the owning subject.
//  CreatedAt – creation timestamp.
type Pass struct {
	ID        uint64     // passes.id
	Code      string     // passes.code
	Kind      PassKind   // passes.kind
	Status    PassStatus // passes.status
	ExpiresAt *time.Time // passes.expires_at (nullable)
	Subject   SubjectRef // passes.subject_kind + passes.subject_id
	CreatedAt time.Time  // passes.created_at
}

// ExpiredBy reports whether the pass's own expiry timestamp has elapsed at
// the given instant.  A nil expiry never elapses here; guest passes with
// nil expiry are bounded by the guest visit window checked at the
// directory level.
func (p *Pass) ExpiredBy(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}
