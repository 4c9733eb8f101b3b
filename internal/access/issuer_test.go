package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-access-control/internal/model"
)

var testNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC) // Wednesday

func newTestIssuer(store *memStore) *Issuer {
	i := NewIssuer(store, NewKindSet(nil), utcCutoff(), 10080)
	i.now = func() time.Time { return testNow }
	return i
}

func activeUser(id uint64) model.InstitutionalUser {
	return model.InstitutionalUser{
		ID:          id,
		FullName:    "Ana Torres",
		Email:       "ana@example.edu",
		Type:        model.TypeStudent,
		AccessState: model.StateOutside,
		IsActive:    true,
	}
}

func TestIssueCreatesActivePass(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := newTestIssuer(store)

	p, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.KindEntry, 0)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Len(t, p.Code, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", p.Code)
	assert.Equal(t, model.StatusActive, p.Status)
	require.NotNil(t, p.ExpiresAt)
	assert.False(t, p.ExpiresAt.After(utcCutoff().NextCutoff(testNow)))
	assert.Equal(t, []model.AuditAction{model.ActionIssue}, store.auditActions())
}

func TestIssueIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := newTestIssuer(store)
	subject := model.InstitutionalRef(1)

	first, err := iss.Issue(context.Background(), subject, model.KindEntry, 0)
	require.NoError(t, err)
	second, err := iss.Issue(context.Background(), subject, model.KindEntry, 0)
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, 1, store.activeCount(subject, model.KindEntry))
	// Only the first call appends an ISSUE entry.
	assert.Equal(t, []model.AuditAction{model.ActionIssue}, store.auditActions())
}

func TestIssueSupersedesLapsedActivePass(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	subject := model.InstitutionalRef(1)
	past := testNow.Add(-time.Hour)
	store.addPass(model.Pass{
		ID: 7, Code: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Kind: model.KindEntry, Status: model.StatusActive,
		ExpiresAt: &past, Subject: subject,
	})
	iss := newTestIssuer(store)

	p, err := iss.Issue(context.Background(), subject, model.KindEntry, 0)
	require.NoError(t, err)

	assert.NotEqual(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", p.Code)
	assert.Equal(t, model.StatusExpired, store.pass(t, 7).Status)
	assert.Equal(t, 1, store.activeCount(subject, model.KindEntry))
}

func TestIssueUnknownKind(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.PassKind("TUNNEL"), 0)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestIssueExtensionKindFromAllowList(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := NewIssuer(store, NewKindSet([]string{"cafeteria"}), utcCutoff(), 10080)
	iss.now = func() time.Time { return testNow }

	p, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.PassKind("CAFETERIA"), 0)
	require.NoError(t, err)
	assert.Equal(t, model.PassKind("CAFETERIA"), p.Kind)
}

func TestIssueInactiveUser(t *testing.T) {
	store := newMemStore()
	u := activeUser(1)
	u.IsActive = false
	store.addUser(u)
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.KindEntry, 0)
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestIssueUnknownSubject(t *testing.T) {
	store := newMemStore()
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.InstitutionalRef(99), model.KindEntry, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssueGuestCappedByVisitWindow(t *testing.T) {
	store := newMemStore()
	windowEnd := testNow.Add(30 * time.Minute)
	store.addGuest(model.GuestVisit{
		ID: 5, PublicID: "a4f0", FullName: "Luis Mora", Document: "CC-100",
		State: model.GuestOutside, ExpiresAt: windowEnd,
	})
	iss := newTestIssuer(store)

	p, err := iss.Issue(context.Background(), model.GuestRef(5), model.KindEntry, 10080)
	require.NoError(t, err)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, windowEnd, *p.ExpiresAt)
}

func TestIssueCompletedVisitRejected(t *testing.T) {
	store := newMemStore()
	store.addGuest(model.GuestVisit{
		ID: 5, State: model.GuestCompleted, ExpiresAt: testNow.Add(time.Hour),
	})
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.GuestRef(5), model.KindEntry, 0)
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestIssueLapsedVisitRejected(t *testing.T) {
	store := newMemStore()
	store.addGuest(model.GuestVisit{
		ID: 5, State: model.GuestOutside, ExpiresAt: testNow.Add(-time.Minute),
	})
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.GuestRef(5), model.KindEntry, 0)
	assert.ErrorIs(t, err, ErrSubjectInactive)
}

func TestIssueRetriesLockConflicts(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	store.conflicts = issueRetries - 1
	iss := newTestIssuer(store)

	p, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.KindEntry, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, p.Status)
}

func TestIssueGivesUpAfterBoundedRetries(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	store.conflicts = issueRetries
	iss := newTestIssuer(store)

	_, err := iss.Issue(context.Background(), model.InstitutionalRef(1), model.KindEntry, 0)
	assert.ErrorIs(t, err, ErrTxConflict)
}

func TestEnsureBothProvisionsBothDirections(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := newTestIssuer(store)
	subject := model.InstitutionalRef(1)

	pair, err := iss.EnsureBoth(context.Background(), subject, 0)
	require.NoError(t, err)
	assert.Equal(t, model.KindEntry, pair.Entry.Kind)
	assert.Equal(t, model.KindExit, pair.Exit.Kind)
	assert.NotEqual(t, pair.Entry.Code, pair.Exit.Code)

	again, err := iss.EnsureBoth(context.Background(), subject, 0)
	require.NoError(t, err)
	assert.Equal(t, pair.Entry.Code, again.Entry.Code)
	assert.Equal(t, pair.Exit.Code, again.Exit.Code)
}

func TestConcurrentIssueKeepsSingleActivePass(t *testing.T) {
	store := newMemStore()
	store.addUser(activeUser(1))
	iss := newTestIssuer(store)
	subject := model.InstitutionalRef(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := iss.Issue(context.Background(), subject, model.KindEntry, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.activeCount(subject, model.KindEntry))
}
