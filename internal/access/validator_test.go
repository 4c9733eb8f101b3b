package access

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-access-control/internal/model"
)

const (
	entryCode = "0123456789abcdef0123456789abcdef"
	exitCode  = "fedcba9876543210fedcba9876543210"
)

type scanFixture struct {
	store *memStore
	audit *memAudit
	notif *memNotifier
	v     *Validator
}

func newScanFixture(extraKinds ...string) *scanFixture {
	f := &scanFixture{
		store: newMemStore(),
		audit: &memAudit{},
		notif: newMemNotifier(),
	}
	f.v = NewValidator(f.store, f.audit, f.notif, NewKindSet(extraKinds))
	f.v.now = func() time.Time { return testNow }
	return f
}

func (f *scanFixture) addInstitutionalPasses(u model.InstitutionalUser) {
	f.store.addUser(u)
	exp := testNow.Add(24 * time.Hour)
	subject := model.InstitutionalRef(u.ID)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.KindEntry, Status: model.StatusActive, ExpiresAt: &exp, Subject: subject})
	f.store.addPass(model.Pass{ID: 2, Code: exitCode, Kind: model.KindExit, Status: model.StatusActive, ExpiresAt: &exp, Subject: subject})
}

func (f *scanFixture) addGuestPasses(g model.GuestVisit) {
	f.store.addGuest(g)
	subject := model.GuestRef(g.ID)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.KindEntry, Status: model.StatusActive, Subject: subject})
	f.store.addPass(model.Pass{ID: 2, Code: exitCode, Kind: model.KindExit, Status: model.StatusActive, Subject: subject})
}

func TestScanMalformedCode(t *testing.T) {
	f := newScanFixture()
	for _, code := range []string{"", "zzz", "0123", strings.Repeat("g", 32), strings.Repeat("a", 33)} {
		res := f.v.Scan(context.Background(), code, 9)
		assert.Equal(t, OutcomeInvalid, res.Outcome, "code=%q", code)
		assert.Equal(t, ReasonMalformedCode, res.Reason, "code=%q", code)
	}
	// Malformed input is rejected before storage: no audit rows at all.
	assert.Equal(t, 0, f.audit.entryCount())
}

func TestScanUnknownCode(t *testing.T) {
	f := newScanFixture()
	res := f.v.Scan(context.Background(), strings.Repeat("a", 32), 9)

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, ReasonCodeNotFound, res.Reason)
	assert.Equal(t, "Código QR inválido.", res.Message)

	e := f.audit.lastEntry(t)
	assert.Equal(t, model.ActionValidateDeny, e.Action)
	assert.Nil(t, e.PassID)
	require.NotNil(t, e.GuardID)
	assert.Equal(t, uint64(9), *e.GuardID)
}

func TestScanNormalizesPresentedCode(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))

	res := f.v.Scan(context.Background(), "  "+strings.ToUpper(entryCode)+"\n", 9)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
}

func TestInstitutionalEntryFlow(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, ReasonOK, res.Reason)
	assert.Equal(t, "Acceso permitido.", res.Message)
	require.NotNil(t, res.Subject)
	assert.Equal(t, "Ana Torres", res.Subject.Name)
	assert.Equal(t, model.StateInside, res.Subject.AccessState)

	// Location flipped; the badge itself stays ACTIVE for reuse.
	assert.Equal(t, model.StateInside, f.store.user(t, 1).AccessState)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 1).Status)

	// Allow audit committed with the flip.
	assert.Equal(t, []model.AuditAction{model.ActionValidateAllow}, f.store.auditActions())

	ev := f.notif.next(t)
	assert.Equal(t, OutcomeAllowed, ev.Outcome)
	assert.Equal(t, "ana@example.edu", ev.Email)
	assert.Equal(t, uint64(9), ev.GuardID)
}

func TestInstitutionalEntryWhileInside(t *testing.T) {
	f := newScanFixture()
	u := activeUser(1)
	u.AccessState = model.StateInside
	f.addInstitutionalPasses(u)

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonAlreadyInside, res.Reason)
	assert.Equal(t, "Ya se encuentra dentro.", res.Message)

	// Nothing changed and a scan attempt was recorded.
	assert.Equal(t, model.StateInside, f.store.user(t, 1).AccessState)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 1).Status)
	assert.Equal(t, 1, f.audit.attemptCount())

	// State-conflict denials notify the user.
	ev := f.notif.next(t)
	assert.Equal(t, OutcomeDenied, ev.Outcome)
	assert.Equal(t, ReasonAlreadyInside, ev.Reason)
}

func TestInstitutionalExitWhileOutside(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1)) // OUTSIDE

	res := f.v.Scan(context.Background(), exitCode, 9)

	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonNotInside, res.Reason)
	assert.Equal(t, "Aún no ha ingresado.", res.Message)
	assert.Equal(t, model.StateOutside, f.store.user(t, 1).AccessState)
}

func TestInstitutionalBadgeReusableAcrossCycle(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))
	ctx := context.Background()

	// Enter, exit, enter again on the same pair of badges.
	assert.Equal(t, OutcomeAllowed, f.v.Scan(ctx, entryCode, 9).Outcome)
	exitRes := f.v.Scan(ctx, exitCode, 9)
	assert.Equal(t, OutcomeAllowed, exitRes.Outcome)
	assert.Equal(t, "Salida permitida.", exitRes.Message)
	assert.Equal(t, OutcomeAllowed, f.v.Scan(ctx, entryCode, 9).Outcome)

	assert.Equal(t, model.StateInside, f.store.user(t, 1).AccessState)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 1).Status)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 2).Status)
}

func TestInstitutionalLazyExpiry(t *testing.T) {
	f := newScanFixture()
	u := activeUser(1)
	f.store.addUser(u)
	past := testNow.Add(-time.Minute)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.KindEntry, Status: model.StatusActive, ExpiresAt: &past, Subject: model.InstitutionalRef(1)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Equal(t, ReasonExpired, res.Reason)
	assert.Equal(t, "El código QR ha expirado.", res.Message)
	// Lazy expiry materialized the terminal status.
	assert.Equal(t, model.StatusExpired, f.store.pass(t, 1).Status)

	// A second scan takes the stored-status path with the same verdict.
	again := f.v.Scan(context.Background(), entryCode, 9)
	assert.Equal(t, OutcomeExpired, again.Outcome)
	assert.Equal(t, ReasonExpired, again.Reason)
}

func TestStoredStatusIsAuthoritative(t *testing.T) {
	f := newScanFixture()
	f.store.addUser(activeUser(1))
	// Still inside its time window, but the stored status is terminal.
	future := testNow.Add(time.Hour)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.KindEntry, Status: model.StatusRevoked, ExpiresAt: &future, Subject: model.InstitutionalRef(1)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, ReasonRevoked, res.Reason)
	assert.Equal(t, "El código QR fue revocado.", res.Message)
	assert.Equal(t, model.StatusRevoked, f.store.pass(t, 1).Status)
}

func TestScanOrphanedPass(t *testing.T) {
	f := newScanFixture()
	exp := testNow.Add(time.Hour)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.KindEntry, Status: model.StatusActive, ExpiresAt: &exp, Subject: model.InstitutionalRef(404)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, ReasonOrphanedPass, res.Reason)
}

func TestScanUnknownKindOnStoredPass(t *testing.T) {
	// A pass issued under an allow-list entry that was later removed.
	f := newScanFixture()
	f.store.addUser(activeUser(1))
	exp := testNow.Add(time.Hour)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.PassKind("CAFETERIA"), Status: model.StatusActive, ExpiresAt: &exp, Subject: model.InstitutionalRef(1)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, ReasonUnknownKind, res.Reason)
}

func TestExtensionKindScanDoesNotFlipLocation(t *testing.T) {
	f := newScanFixture("CAFETERIA")
	f.store.addUser(activeUser(1))
	exp := testNow.Add(time.Hour)
	f.store.addPass(model.Pass{ID: 1, Code: entryCode, Kind: model.PassKind("CAFETERIA"), Status: model.StatusActive, ExpiresAt: &exp, Subject: model.InstitutionalRef(1)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, model.StateOutside, f.store.user(t, 1).AccessState)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 1).Status)
}

func TestGuestEntryThenExit(t *testing.T) {
	f := newScanFixture()
	f.addGuestPasses(model.GuestVisit{
		ID: 5, PublicID: "a4f0", FullName: "Luis Mora", Document: "CC-100",
		State: model.GuestOutside, ExpiresAt: testNow.Add(time.Hour),
	})
	ctx := context.Background()

	entry := f.v.Scan(ctx, entryCode, 9)
	assert.Equal(t, OutcomeAllowed, entry.Outcome)
	require.NotNil(t, entry.Subject)
	assert.Equal(t, model.GuestInside, entry.Subject.GuestState)
	// Guest passes are single-use.
	assert.Equal(t, model.StatusUsed, f.store.pass(t, 1).Status)

	// Replaying the consumed entry code is refused.
	replay := f.v.Scan(ctx, entryCode, 9)
	assert.Equal(t, OutcomeInvalid, replay.Outcome)
	assert.Equal(t, ReasonAlreadyUsed, replay.Reason)
	assert.Equal(t, "El código QR ya fue utilizado.", replay.Message)

	exit := f.v.Scan(ctx, exitCode, 9)
	assert.Equal(t, OutcomeAllowed, exit.Outcome)
	assert.Equal(t, model.GuestCompleted, f.store.guest(t, 5).State)
	assert.Equal(t, model.StatusUsed, f.store.pass(t, 2).Status)
}

func TestGuestExitBeforeEntry(t *testing.T) {
	f := newScanFixture()
	f.addGuestPasses(model.GuestVisit{ID: 5, State: model.GuestOutside, ExpiresAt: testNow.Add(time.Hour)})

	res := f.v.Scan(context.Background(), exitCode, 9)

	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonNotInside, res.Reason)
	assert.Equal(t, model.GuestOutside, f.store.guest(t, 5).State)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 2).Status)
}

func TestGuestVisitLapsed(t *testing.T) {
	f := newScanFixture()
	f.addGuestPasses(model.GuestVisit{ID: 5, FullName: "Luis Mora", State: model.GuestInside, ExpiresAt: testNow.Add(-time.Minute)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Equal(t, ReasonVisitLapsed, res.Reason)
	assert.Equal(t, "La visita ha expirado.", res.Message)
	// The lapse is materialized on both rows.
	assert.Equal(t, model.StatusExpired, f.store.pass(t, 1).Status)
	assert.Equal(t, model.GuestCompleted, f.store.guest(t, 5).State)
}

func TestGuestCompletedVisitRefused(t *testing.T) {
	f := newScanFixture()
	f.addGuestPasses(model.GuestVisit{ID: 5, State: model.GuestCompleted, ExpiresAt: testNow.Add(time.Hour)})

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, ReasonVisitCompleted, res.Reason)
	assert.Equal(t, "La visita ya fue completada.", res.Message)
	assert.Equal(t, model.StatusActive, f.store.pass(t, 1).Status)
}

func TestGuestScansNeverNotify(t *testing.T) {
	f := newScanFixture()
	f.addGuestPasses(model.GuestVisit{ID: 5, State: model.GuestOutside, ExpiresAt: testNow.Add(time.Hour)})

	res := f.v.Scan(context.Background(), entryCode, 9)
	assert.Equal(t, OutcomeAllowed, res.Outcome)
	f.notif.quiet(t)
}

func TestScanStorageFailureYieldsError(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))
	f.store.conflicts = 1 // next transaction aborts

	res := f.v.Scan(context.Background(), entryCode, 9)

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, ReasonTransient, res.Reason)
	assert.Equal(t, "Error temporal, escanee nuevamente.", res.Message)
	// Validation is never retried: the state is untouched and the guard
	// decides whether to scan again.
	assert.Equal(t, model.StateOutside, f.store.user(t, 1).AccessState)
}

func TestScanSurvivesCallerCancellation(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.v.Scan(ctx, entryCode, 9)

	assert.Equal(t, OutcomeAllowed, res.Outcome)
	assert.Equal(t, model.StateInside, f.store.user(t, 1).AccessState)
}

func TestConcurrentScansOfOneCodeSerialize(t *testing.T) {
	f := newScanFixture()
	f.addInstitutionalPasses(activeUser(1))

	results := make(chan Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- f.v.Scan(context.Background(), entryCode, 9).Outcome
		}()
	}
	a, b := <-results, <-results

	// The row lock serializes the two scans: exactly one flip happens,
	// the loser observes INSIDE and is denied.
	outcomes := map[Outcome]int{a: 1}
	outcomes[b]++
	assert.Equal(t, 1, outcomes[OutcomeAllowed])
	assert.Equal(t, 1, outcomes[OutcomeDenied])
	assert.Equal(t, model.StateInside, f.store.user(t, 1).AccessState)
	assert.Equal(t, []model.AuditAction{model.ActionValidateAllow}, f.store.auditActions())
	assert.Equal(t, 1, f.audit.entryCount())
}

func TestDenyAuditRowsLandOutsideTheTransaction(t *testing.T) {
	f := newScanFixture()
	u := activeUser(1)
	u.AccessState = model.StateInside
	f.addInstitutionalPasses(u)

	f.v.Scan(context.Background(), entryCode, 9)

	// Deny rows flow through the standalone audit log, not the decision
	// transaction.
	assert.Empty(t, f.store.auditActions())
	e := f.audit.lastEntry(t)
	assert.Equal(t, model.ActionValidateDeny, e.Action)
	assert.Equal(t, ReasonAlreadyInside, e.Reason)
	require.NotNil(t, e.SubjectID)
	assert.Equal(t, uint64(1), *e.SubjectID)
}
