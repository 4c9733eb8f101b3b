package access

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// Issuance errors surfaced to handlers.
var (
	// ErrUnknownKind is returned when the requested kind is outside the
	// configured allow-list.  Checked before any storage access.
	ErrUnknownKind = errors.New("unknown pass kind")
	// ErrSubjectInactive is returned when the subject exists but may not
	// receive passes: deactivated institutional account, or a guest visit
	// that is completed or whose window has lapsed.
	ErrSubjectInactive = errors.New("subject not eligible for passes")
)

// issueRetries bounds the re-execution of the issuance transaction after a
// lock conflict.  Issuance is idempotent by construction, so retrying is
// safe; validation is never retried this way.
const issueRetries = 3

// Issuer creates passes.  It guarantees that at most one ACTIVE pass per
// (subject, kind) exists at any time: reissuing revokes the prior pass in
// the same transaction that inserts the new one.
type Issuer struct {
	store      Store
	kinds      KindSet
	cutoff     Calculator
	defaultTTL int              // minutes, applied when the caller passes ttlMin <= 0
	now        func() time.Time // injectable clock for tests
}

// NewIssuer constructs an Issuer.  defaultTTLMin is used when callers do
// not specify a TTL.
func NewIssuer(store Store, kinds KindSet, cutoff Calculator, defaultTTLMin int) *Issuer {
	if store == nil {
		panic("nil store passed to NewIssuer")
	}
	return &Issuer{store: store, kinds: kinds, cutoff: cutoff, defaultTTL: defaultTTLMin, now: nowUTC}
}

// PassPair groups the two directional passes returned by EnsureBoth.
type PassPair struct {
	Entry *model.Pass
	Exit  *model.Pass
}

// Issue returns the subject's pass for the given kind.  When an ACTIVE,
// non-expired pass already exists it is returned unchanged, so immediate
// repeated calls observe the same code.  Otherwise any stale ACTIVE passes
// are retired, a fresh pass is created with a cutoff-capped expiry and an
// ISSUE audit entry is appended, all within one transaction.
func (i *Issuer) Issue(ctx context.Context, subject model.SubjectRef, kind model.PassKind, ttlMin int) (*model.Pass, error) {
	if !i.kinds.Valid(kind) {
		return nil, ErrUnknownKind
	}
	if ttlMin <= 0 {
		ttlMin = i.defaultTTL
	}

	var pass *model.Pass
	var err error
	for attempt := 0; attempt < issueRetries; attempt++ {
		pass, err = i.issueOnce(ctx, subject, kind, ttlMin)
		if !errors.Is(err, ErrTxConflict) {
			break
		}
		log.Printf("issuer: lock conflict for %s kind=%s, retrying (%d)", subject, kind, attempt+1)
	}
	return pass, err
}

func (i *Issuer) issueOnce(ctx context.Context, subject model.SubjectRef, kind model.PassKind, ttlMin int) (*model.Pass, error) {
	now := i.now()
	var issued *model.Pass
	err := i.store.WithinTx(ctx, func(tx StoreTx) error {
		visitCap, err := i.checkSubject(ctx, tx, subject, now)
		if err != nil {
			return err
		}

		active, err := tx.ActivePass(ctx, subject, kind)
		switch {
		case err == nil && !active.ExpiredBy(now):
			issued = active // idempotent reuse
			return nil
		case err == nil:
			// The stored row says ACTIVE but its time has lapsed; make the
			// terminal state explicit rather than revoking it.
			if err := tx.SetPassStatus(ctx, active.ID, model.StatusExpired); err != nil {
				return err
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if _, err := tx.RevokeActive(ctx, subject, kind); err != nil {
			return err
		}

		code, err := newPassCode()
		if err != nil {
			return err
		}
		expiry := i.cutoff.ComputeExpiry(now, ttlMin)
		if visitCap != nil && visitCap.Before(expiry) {
			expiry = *visitCap
		}
		p := &model.Pass{
			Code:      code,
			Kind:      kind,
			Status:    model.StatusActive,
			ExpiresAt: &expiry,
			Subject:   subject,
		}
		if err := tx.InsertPass(ctx, p); err != nil {
			return err
		}
		sk, sid := subject.Kind, subject.ID
		if err := tx.AppendAudit(ctx, &model.AuditEntry{
			Kind:        kind,
			Action:      model.ActionIssue,
			SubjectKind: &sk,
			SubjectID:   &sid,
			PassID:      &p.ID,
		}); err != nil {
			return err
		}
		issued = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// checkSubject verifies the subject exists and may hold passes.  For
// guests it returns the visit window end so the pass expiry can be capped
// by it; for institutional users it returns nil.
func (i *Issuer) checkSubject(ctx context.Context, tx StoreTx, subject model.SubjectRef, now time.Time) (*time.Time, error) {
	switch subject.Kind {
	case model.SubjectInstitutional:
		u, err := tx.Institutional(ctx, subject.ID)
		if err != nil {
			return nil, err
		}
		if !u.IsActive {
			return nil, ErrSubjectInactive
		}
		return nil, nil
	case model.SubjectGuest:
		g, err := tx.Guest(ctx, subject.ID)
		if err != nil {
			return nil, err
		}
		if g.State == model.GuestCompleted || g.LapsedBy(now) {
			return nil, ErrSubjectInactive
		}
		capAt := g.ExpiresAt
		return &capAt, nil
	default:
		return nil, ErrNotFound
	}
}

// EnsureBoth issues the ENTRY and EXIT passes for a subject in one call,
// each idempotently.  It is used to pre-provision a subject with both
// directions in a single round trip.
func (i *Issuer) EnsureBoth(ctx context.Context, subject model.SubjectRef, ttlMin int) (PassPair, error) {
	entry, err := i.Issue(ctx, subject, model.KindEntry, ttlMin)
	if err != nil {
		return PassPair{}, err
	}
	exit, err := i.Issue(ctx, subject, model.KindExit, ttlMin)
	if err != nil {
		return PassPair{}, err
	}
	return PassPair{Entry: entry, Exit: exit}, nil
}
