package access

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// codePattern matches well-formed pass codes: 32 hex characters.  Anything
// else is rejected before storage is touched.
var codePattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// notifyTimeout bounds a single notification dispatch.  The dispatch runs
// after the transaction has committed, on its own context, so a slow
// broker can never delay the scan outcome.
const notifyTimeout = 5 * time.Second

// Validator decides ALLOW/DENY for a scanned code and keeps subject
// location consistent with pass usage.  The whole decision for one code
// runs inside a single locking transaction; concurrent scans of the same
// code serialize on the pass row.
type Validator struct {
	store    Store
	audit    AuditLog
	notifier Notifier
	kinds    KindSet
	now      func() time.Time
}

// NewValidator constructs a Validator.  audit and notifier may not be nil;
// use no-op implementations when a deployment does not carry them.
func NewValidator(store Store, audit AuditLog, notifier Notifier, kinds KindSet) *Validator {
	if store == nil || audit == nil || notifier == nil {
		panic("nil dependency passed to NewValidator")
	}
	return &Validator{store: store, audit: audit, notifier: notifier, kinds: kinds, now: nowUTC}
}

// postScan carries the side effects that run strictly after the decision
// transaction has committed: non-transactional audit rows, the
// scan-attempt record for failed institutional scans, and the
// notification event.
type postScan struct {
	entry   *model.AuditEntry
	attempt *model.ScanAttempt
	event   *AccessEvent
}

// Scan validates a presented code on behalf of a guard and returns the
// structured outcome.  It never returns an error: storage failures
// surface as OutcomeError and the guard re-scans.
func (v *Validator) Scan(ctx context.Context, code string, guardID uint64) Result {
	code = strings.ToLower(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		// Input error: rejected before storage, no audit row.
		return deny(OutcomeInvalid, ReasonMalformedCode, "", nil)
	}

	now := v.now()
	var res Result
	var post postScan

	// Once the transactional region is entered the scan runs to commit or
	// abort even if the request is cancelled; an interrupted state flip
	// would leave the subject's location ambiguous.
	dctx := context.WithoutCancel(ctx)
	err := v.store.WithinTx(dctx, func(tx StoreTx) error {
		return v.decide(dctx, tx, code, guardID, now, &res, &post)
	})
	if err != nil {
		log.Printf("validator: scan transaction failed for guard=%d: %v", guardID, err)
		return deny(OutcomeError, ReasonTransient, "", nil)
	}

	v.dispatch(dctx, post)
	return res
}

// decide walks the validation state machine in strict order: lookup,
// stored status, time-based expiry, subject-state consistency, success.
// The stored status is authoritative: a terminal status is never
// re-derived from time.
func (v *Validator) decide(ctx context.Context, tx StoreTx, code string, guardID uint64, now time.Time, res *Result, post *postScan) error {
	pass, err := tx.PassByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		*res = deny(OutcomeInvalid, ReasonCodeNotFound, "", nil)
		post.entry = v.denyEntry(nil, nil, guardID, ReasonCodeNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	switch pass.Status {
	case model.StatusUsed:
		return v.refuse(ctx, tx, pass, guardID, OutcomeInvalid, ReasonAlreadyUsed, res, post)
	case model.StatusRevoked:
		return v.refuse(ctx, tx, pass, guardID, OutcomeInvalid, ReasonRevoked, res, post)
	case model.StatusExpired:
		return v.refuse(ctx, tx, pass, guardID, OutcomeExpired, ReasonExpired, res, post)
	}

	switch pass.Subject.Kind {
	case model.SubjectInstitutional:
		return v.decideInstitutional(ctx, tx, pass, guardID, now, res, post)
	case model.SubjectGuest:
		return v.decideGuest(ctx, tx, pass, guardID, now, res, post)
	default:
		*res = deny(OutcomeInvalid, ReasonOrphanedPass, pass.Kind, nil)
		post.entry = v.denyEntry(pass, nil, guardID, ReasonOrphanedPass)
		return nil
	}
}

func (v *Validator) decideInstitutional(ctx context.Context, tx StoreTx, pass *model.Pass, guardID uint64, now time.Time, res *Result, post *postScan) error {
	u, err := tx.Institutional(ctx, pass.Subject.ID)
	if errors.Is(err, ErrNotFound) {
		// Pass references a subject that no longer resolves.
		*res = deny(OutcomeInvalid, ReasonOrphanedPass, pass.Kind, nil)
		post.entry = v.denyEntry(pass, nil, guardID, ReasonOrphanedPass)
		return nil
	}
	if err != nil {
		return err
	}
	snap := &SubjectSnapshot{Ref: pass.Subject, Name: u.FullName, Type: u.Type, AccessState: u.AccessState}

	// Lazy time-based expiry: detected here, materialized here.  The
	// periodic sweep performs the identical transition for rows that are
	// never scanned again.
	if pass.ExpiredBy(now) {
		if err := tx.SetPassStatus(ctx, pass.ID, model.StatusExpired); err != nil {
			return err
		}
		v.fail(pass, snap, u, guardID, OutcomeExpired, ReasonExpired, false, res, post)
		return nil
	}

	if !v.kinds.Valid(pass.Kind) {
		v.fail(pass, snap, u, guardID, OutcomeInvalid, ReasonUnknownKind, false, res, post)
		return nil
	}

	// Directional consistency: an ENTRY pass only performs OUTSIDE to
	// INSIDE, an EXIT pass only the reverse.  State-conflict denials are
	// notified so repeated anomalies reach the user.
	next := u.AccessState
	switch pass.Kind {
	case model.KindEntry:
		if u.AccessState == model.StateInside {
			v.fail(pass, snap, u, guardID, OutcomeDenied, ReasonAlreadyInside, true, res, post)
			return nil
		}
		next = model.StateInside
	case model.KindExit:
		if u.AccessState == model.StateOutside {
			v.fail(pass, snap, u, guardID, OutcomeDenied, ReasonNotInside, true, res, post)
			return nil
		}
		next = model.StateOutside
	}

	// Success: flip the location flag; the pass stays ACTIVE.  An
	// institutional pass is a weekly-cycle badge, not a single-use ticket.
	if next != u.AccessState {
		if err := tx.SetAccessState(ctx, u.ID, next); err != nil {
			return err
		}
		snap.AccessState = next
	}
	if err := v.allowAudit(ctx, tx, pass, guardID); err != nil {
		return err
	}
	*res = Result{Outcome: OutcomeAllowed, Reason: ReasonOK, Message: allowMessage(pass.Kind), Kind: pass.Kind, Subject: snap}
	if u.Notifiable() {
		post.event = v.event(u, pass.Kind, OutcomeAllowed, ReasonOK, guardID)
	}
	return nil
}

func (v *Validator) decideGuest(ctx context.Context, tx StoreTx, pass *model.Pass, guardID uint64, now time.Time, res *Result, post *postScan) error {
	g, err := tx.Guest(ctx, pass.Subject.ID)
	if errors.Is(err, ErrNotFound) {
		*res = deny(OutcomeInvalid, ReasonOrphanedPass, pass.Kind, nil)
		post.entry = v.denyEntry(pass, nil, guardID, ReasonOrphanedPass)
		return nil
	}
	if err != nil {
		return err
	}
	snap := &SubjectSnapshot{Ref: pass.Subject, Name: g.FullName, GuestState: g.State}

	// Guest passes are bounded by the visit window, not by their own
	// expiry.  A lapsed visit is materialized the same way the sweep does
	// it: pass expired, visit completed.
	if g.LapsedBy(now) {
		if err := tx.SetPassStatus(ctx, pass.ID, model.StatusExpired); err != nil {
			return err
		}
		if g.State != model.GuestCompleted {
			if err := tx.SetGuestState(ctx, g.ID, model.GuestCompleted); err != nil {
				return err
			}
			snap.GuestState = model.GuestCompleted
		}
		*res = deny(OutcomeExpired, ReasonVisitLapsed, pass.Kind, snap)
		post.entry = v.denyEntry(pass, snap, guardID, ReasonVisitLapsed)
		return nil
	}

	if !v.kinds.Valid(pass.Kind) {
		*res = deny(OutcomeInvalid, ReasonUnknownKind, pass.Kind, snap)
		post.entry = v.denyEntry(pass, snap, guardID, ReasonUnknownKind)
		return nil
	}

	reason := ""
	switch {
	case g.State == model.GuestCompleted:
		reason = ReasonVisitCompleted
	case pass.Kind == model.KindEntry && g.State == model.GuestInside:
		reason = ReasonAlreadyInside
	case pass.Kind == model.KindExit && g.State == model.GuestOutside:
		reason = ReasonNotInside
	}
	if reason != "" {
		*res = deny(OutcomeDenied, reason, pass.Kind, snap)
		post.entry = v.denyEntry(pass, snap, guardID, reason)
		return nil
	}

	// Success: guest passes are strictly single-use.
	if err := tx.SetPassStatus(ctx, pass.ID, model.StatusUsed); err != nil {
		return err
	}
	switch pass.Kind {
	case model.KindEntry:
		if err := tx.SetGuestState(ctx, g.ID, model.GuestInside); err != nil {
			return err
		}
		snap.GuestState = model.GuestInside
	case model.KindExit:
		if err := tx.SetGuestState(ctx, g.ID, model.GuestCompleted); err != nil {
			return err
		}
		snap.GuestState = model.GuestCompleted
	}
	if err := v.allowAudit(ctx, tx, pass, guardID); err != nil {
		return err
	}
	*res = Result{Outcome: OutcomeAllowed, Reason: ReasonOK, Message: allowMessage(pass.Kind), Kind: pass.Kind, Subject: snap}
	return nil
}

// refuse handles terminal stored statuses.  The subject is resolved
// best-effort so the audit row and the scan-attempt record can link to it;
// resolution failures do not change the outcome, which the status check
// already fixed.
func (v *Validator) refuse(ctx context.Context, tx StoreTx, pass *model.Pass, guardID uint64, outcome Outcome, reason string, res *Result, post *postScan) error {
	var snap *SubjectSnapshot
	var user *model.InstitutionalUser
	switch pass.Subject.Kind {
	case model.SubjectInstitutional:
		if u, err := tx.Institutional(ctx, pass.Subject.ID); err == nil {
			user = u
			snap = &SubjectSnapshot{Ref: pass.Subject, Name: u.FullName, Type: u.Type, AccessState: u.AccessState}
		}
	case model.SubjectGuest:
		if g, err := tx.Guest(ctx, pass.Subject.ID); err == nil {
			snap = &SubjectSnapshot{Ref: pass.Subject, Name: g.FullName, GuestState: g.State}
		}
	}
	v.fail(pass, snap, user, guardID, outcome, reason, false, res, post)
	return nil
}

// fail records a non-allowed outcome: result, deny audit entry and, when
// the subject is institutional, the scan-attempt row.  notify controls
// whether a state-conflict notification is queued.
func (v *Validator) fail(pass *model.Pass, snap *SubjectSnapshot, user *model.InstitutionalUser, guardID uint64, outcome Outcome, reason string, notify bool, res *Result, post *postScan) {
	*res = deny(outcome, reason, pass.Kind, snap)
	post.entry = v.denyEntry(pass, snap, guardID, reason)
	if snap != nil && snap.Ref.Kind == model.SubjectInstitutional {
		pid := pass.ID
		gid := guardID
		post.attempt = &model.ScanAttempt{
			SubjectID: snap.Ref.ID,
			PassID:    &pid,
			GuardID:   &gid,
			Outcome:   string(outcome),
			Reason:    reason,
		}
		if notify && user != nil && user.Notifiable() {
			post.event = v.event(user, pass.Kind, outcome, reason, guardID)
		}
	}
}

func (v *Validator) denyEntry(pass *model.Pass, snap *SubjectSnapshot, guardID uint64, reason string) *model.AuditEntry {
	e := &model.AuditEntry{Action: model.ActionValidateDeny, Reason: reason}
	gid := guardID
	e.GuardID = &gid
	if pass != nil {
		e.Kind = pass.Kind
		pid := pass.ID
		e.PassID = &pid
	}
	if snap != nil {
		sk, sid := snap.Ref.Kind, snap.Ref.ID
		e.SubjectKind = &sk
		e.SubjectID = &sid
	}
	return e
}

// allowAudit appends the VALIDATE_ALLOW entry inside the decision
// transaction so the state flip and its audit row commit together.
func (v *Validator) allowAudit(ctx context.Context, tx StoreTx, pass *model.Pass, guardID uint64) error {
	sk, sid := pass.Subject.Kind, pass.Subject.ID
	pid := pass.ID
	gid := guardID
	return tx.AppendAudit(ctx, &model.AuditEntry{
		Kind:        pass.Kind,
		Action:      model.ActionValidateAllow,
		SubjectKind: &sk,
		SubjectID:   &sid,
		PassID:      &pid,
		GuardID:     &gid,
		Reason:      ReasonOK,
	})
}

func (v *Validator) event(u *model.InstitutionalUser, kind model.PassKind, outcome Outcome, reason string, guardID uint64) *AccessEvent {
	return &AccessEvent{
		SubjectName: u.FullName,
		Email:       u.Email,
		Kind:        kind,
		Outcome:     outcome,
		Reason:      reason,
		OccurredAt:  v.now().Format(time.RFC3339),
		GuardID:     guardID,
		SubjectType: u.Type,
	}
}

// dispatch runs the post-commit side effects.  Audit and attempt writes
// happen synchronously but their failures only get logged; notification is
// handed to a goroutine the caller never waits on.
func (v *Validator) dispatch(ctx context.Context, post postScan) {
	if post.entry != nil {
		if err := v.audit.Append(ctx, post.entry); err != nil {
			log.Printf("validator: audit append failed: %v", err)
		}
	}
	if post.attempt != nil {
		if err := v.audit.RecordAttempt(ctx, post.attempt); err != nil {
			log.Printf("validator: attempt record failed: %v", err)
		}
	}
	if post.event != nil {
		ev := *post.event
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := v.notifier.NotifyAccessEvent(nctx, ev); err != nil {
				log.Printf("validator: notification dispatch failed: %v", err)
			}
		}()
	}
}

func allowMessage(kind model.PassKind) string {
	if kind == model.KindExit {
		return "Salida permitida."
	}
	return "Acceso permitido."
}
