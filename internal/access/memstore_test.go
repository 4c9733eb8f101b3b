package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// memStore is an in-memory Store double.  A single mutex serializes
// WithinTx callers, which mirrors the row-locking the real store gets from
// SELECT ... FOR UPDATE.  Mutations apply eagerly; the decision paths under
// test never mutate before a deliberate abort.
type memStore struct {
	mu     sync.Mutex
	passes map[uint64]*model.Pass
	byCode map[string]uint64
	users  map[uint64]*model.InstitutionalUser
	guests map[uint64]*model.GuestVisit
	audits []model.AuditEntry
	nextID uint64

	// conflicts makes the next N transactions fail with ErrTxConflict
	// before any callback runs, to exercise retry behavior.
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		passes: make(map[uint64]*model.Pass),
		byCode: make(map[string]uint64),
		users:  make(map[uint64]*model.InstitutionalUser),
		guests: make(map[uint64]*model.GuestVisit),
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return ErrTxConflict
	}
	return fn(&memTx{s: s})
}

// Seed helpers lock the same mutex so tests can set up state while scans
// run in other goroutines.

func (s *memStore) addUser(u model.InstitutionalUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func (s *memStore) addGuest(g model.GuestVisit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := g
	s.guests[g.ID] = &cp
}

func (s *memStore) addPass(p model.Pass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	cp := p
	s.passes[p.ID] = &cp
	s.byCode[p.Code] = p.ID
}

func (s *memStore) pass(t *testing.T, id uint64) model.Pass {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passes[id]
	if !ok {
		t.Fatalf("pass %d not in store", id)
	}
	return *p
}

func (s *memStore) user(t *testing.T, id uint64) model.InstitutionalUser {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		t.Fatalf("user %d not in store", id)
	}
	return *u
}

func (s *memStore) guest(t *testing.T, id uint64) model.GuestVisit {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[id]
	if !ok {
		t.Fatalf("guest %d not in store", id)
	}
	return *g
}

func (s *memStore) activeCount(subject model.SubjectRef, kind model.PassKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.passes {
		if p.Subject == subject && p.Kind == kind && p.Status == model.StatusActive {
			n++
		}
	}
	return n
}

func (s *memStore) auditActions() []model.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditAction, 0, len(s.audits))
	for _, e := range s.audits {
		out = append(out, e.Action)
	}
	return out
}

// memTx operates on the store the surrounding WithinTx already locked.
type memTx struct {
	s *memStore
}

func (t *memTx) PassByCode(ctx context.Context, code string) (*model.Pass, error) {
	id, ok := t.s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t.s.passes[id]
	return &cp, nil
}

func (t *memTx) ActivePass(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (*model.Pass, error) {
	for _, p := range t.s.passes {
		if p.Subject == subject && p.Kind == kind && p.Status == model.StatusActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertPass(ctx context.Context, p *model.Pass) error {
	t.s.nextID++
	p.ID = t.s.nextID
	p.CreatedAt = time.Now().UTC()
	cp := *p
	t.s.passes[p.ID] = &cp
	t.s.byCode[p.Code] = p.ID
	return nil
}

func (t *memTx) RevokeActive(ctx context.Context, subject model.SubjectRef, kind model.PassKind) (int, error) {
	n := 0
	for _, p := range t.s.passes {
		if p.Subject == subject && p.Kind == kind && p.Status == model.StatusActive {
			p.Status = model.StatusRevoked
			n++
		}
	}
	return n, nil
}

func (t *memTx) SetPassStatus(ctx context.Context, passID uint64, status model.PassStatus) error {
	p, ok := t.s.passes[passID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (t *memTx) Institutional(ctx context.Context, id uint64) (*model.InstitutionalUser, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) Guest(ctx context.Context, id uint64) (*model.GuestVisit, error) {
	g, ok := t.s.guests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (t *memTx) SetAccessState(ctx context.Context, id uint64, st model.AccessState) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.AccessState = st
	return nil
}

func (t *memTx) SetGuestState(ctx context.Context, id uint64, st model.GuestState) error {
	g, ok := t.s.guests[id]
	if !ok {
		return ErrNotFound
	}
	g.State = st
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	t.s.audits = append(t.s.audits, cp)
	return nil
}

// memAudit is an in-memory AuditLog double for the non-transactional deny
// rows and scan attempts.
type memAudit struct {
	mu       sync.Mutex
	entries  []model.AuditEntry
	attempts []model.ScanAttempt
}

func (a *memAudit) Append(ctx context.Context, e *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *memAudit) RecordAttempt(ctx context.Context, s *model.ScanAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, *s)
	return nil
}

func (a *memAudit) lastEntry(t *testing.T) model.AuditEntry {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return a.entries[len(a.entries)-1]
}

func (a *memAudit) entryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *memAudit) attemptCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attempts)
}

// memNotifier captures dispatched events on a channel; dispatch runs on a
// detached goroutine so tests must wait, not poll.
type memNotifier struct {
	events chan AccessEvent
}

func newMemNotifier() *memNotifier {
	return &memNotifier{events: make(chan AccessEvent, 16)}
}

func (n *memNotifier) NotifyAccessEvent(ctx context.Context, ev AccessEvent) error {
	n.events <- ev
	return nil
}

func (n *memNotifier) next(t *testing.T) AccessEvent {
	t.Helper()
	select {
	case ev := <-n.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification, none dispatched")
		return AccessEvent{}
	}
}

func (n *memNotifier) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-n.events:
		t.Fatalf("unexpected notification: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
