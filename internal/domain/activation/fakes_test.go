package activation

import (
	"context"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/event"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type roleKey struct {
	customerID int64
	roleType   customer.RoleType
}

// fakeTx buffers writes until commit and holds role row locks like
// SELECT ... FOR UPDATE would.
type fakeTx struct {
	pgx.Tx
	id     int
	locked []*sync.Mutex
	ops    []func()
	done   bool
}

// fakeStore is an in-memory stand-in for the postgres repositories.
type fakeStore struct {
	mu              sync.Mutex
	roles           map[roleKey]*customer.Role
	sets            map[roleKey]identifier.Set
	initials        map[string]int64
	pendingInitials map[string]int
	sagas           map[uuid.UUID]*Saga
	sagaOrder       []uuid.UUID
	rowLocks        map[roleKey]*sync.Mutex
	nextTx          int
	begun           int
	commitErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:           map[roleKey]*customer.Role{},
		sets:            map[roleKey]identifier.Set{},
		initials:        map[string]int64{},
		pendingInitials: map[string]int{},
		sagas:           map[uuid.UUID]*Saga{},
		rowLocks:        map[roleKey]*sync.Mutex{},
	}
}

func (s *fakeStore) putRole(role *customer.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[roleKey{role.CustomerID, role.RoleType}] = role.Clone()
}

func (s *fakeStore) role(customerID int64, rt customer.RoleType) *customer.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[roleKey{customerID, rt}].Clone()
}

func (s *fakeStore) set(customerID int64, rt customer.RoleType) identifier.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[roleKey{customerID, rt}].Clone()
}

func (s *fakeStore) saga(id uuid.UUID) *Saga {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg, ok := s.sagas[id]; ok {
		c := *sg
		return &c
	}
	return nil
}

func (s *fakeStore) onlySaga() *Saga {
	s.mu.Lock()
	ids := append([]uuid.UUID(nil), s.sagaOrder...)
	s.mu.Unlock()
	if len(ids) != 1 {
		return nil
	}
	return s.saga(ids[0])
}

func (s *fakeStore) sagaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sagas)
}

func (s *fakeStore) txOf(tx pgx.Tx) *fakeTx {
	ft, ok := tx.(*fakeTx)
	if !ok {
		panic(fmt.Sprintf("unexpected transaction type %T", tx))
	}
	return ft
}

func (s *fakeStore) BeginTx(context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTx++
	s.begun++
	return &fakeTx{id: s.nextTx}, nil
}

func (s *fakeStore) CommitTx(_ context.Context, tx pgx.Tx) error {
	ft := s.txOf(tx)
	if ft.done {
		return pgx.ErrTxClosed
	}
	s.mu.Lock()
	err := s.commitErr
	if err == nil {
		for _, op := range ft.ops {
			op()
		}
	}
	s.clearPendingLocked(ft)
	s.mu.Unlock()
	s.finish(ft)
	if err != nil {
		return fmt.Errorf("%w: commit: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

func (s *fakeStore) RollbackTx(_ context.Context, tx pgx.Tx) error {
	ft := s.txOf(tx)
	if ft.done {
		return nil
	}
	s.mu.Lock()
	s.clearPendingLocked(ft)
	s.mu.Unlock()
	s.finish(ft)
	return nil
}

func (s *fakeStore) clearPendingLocked(ft *fakeTx) {
	for initial, owner := range s.pendingInitials {
		if owner == ft.id {
			delete(s.pendingInitials, initial)
		}
	}
}

func (s *fakeStore) finish(ft *fakeTx) {
	ft.done = true
	ft.ops = nil
	for _, l := range ft.locked {
		l.Unlock()
	}
	ft.locked = nil
}

func (s *fakeStore) FindRole(_ context.Context, customerID int64, rt customer.RoleType) (*customer.Role, error) {
	role := s.role(customerID, rt)
	if role == nil {
		return nil, customer.ErrNotFound
	}
	return role, nil
}

func (s *fakeStore) FindRoleForUpdate(_ context.Context, tx pgx.Tx, customerID int64, rt customer.RoleType) (*customer.Role, error) {
	ft := s.txOf(tx)
	key := roleKey{customerID, rt}

	s.mu.Lock()
	if _, ok := s.roles[key]; !ok {
		s.mu.Unlock()
		return nil, customer.ErrNotFound
	}
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	ft.locked = append(ft.locked, l)
	return s.role(customerID, rt), nil
}

func (s *fakeStore) UpdateRoleStatusInTx(_ context.Context, tx pgx.Tx, change *customer.PendingChange) error {
	ft := s.txOf(tx)
	key := roleKey{change.CustomerID, change.RoleType}
	ft.ops = append(ft.ops, func() {
		s.roles[key] = change.Apply(s.roles[key])
	})
	return nil
}

func (s *fakeStore) FindSet(_ context.Context, customerID int64, roleCode int) (identifier.Set, error) {
	return s.set(customerID, customer.RoleType(roleCode)), nil
}

func (s *fakeStore) FindSetInTx(_ context.Context, _ pgx.Tx, customerID int64, roleCode int) (identifier.Set, error) {
	return s.set(customerID, customer.RoleType(roleCode)), nil
}

func (s *fakeStore) SaveCIFInTx(_ context.Context, tx pgx.Tx, customerID int64, cif identifier.CIF, _ string) error {
	ft := s.txOf(tx)
	key := roleKey{customerID, customer.RoleType(cif.RoleCode)}
	ft.ops = append(ft.ops, func() {
		set := s.sets[key]
		c := cif
		set.CIF = &c
		s.sets[key] = set
	})
	return nil
}

func (s *fakeStore) ReserveInitialInTx(_ context.Context, tx pgx.Tx, customerID int64, initial string) error {
	ft := s.txOf(tx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.initials[initial]; ok && owner != customerID {
		return fmt.Errorf("%w: borrower_initials_initial_key", apperrors.ErrAlreadyExists)
	}
	if owner, ok := s.pendingInitials[initial]; ok && owner != ft.id {
		return fmt.Errorf("%w: borrower_initials_initial_key", apperrors.ErrAlreadyExists)
	}
	s.pendingInitials[initial] = ft.id
	key := roleKey{customerID, customer.RoleBorrower}
	ft.ops = append(ft.ops, func() {
		s.initials[initial] = customerID
		set := s.sets[key]
		set.Initial = initial
		s.sets[key] = set
	})
	return nil
}

func (s *fakeStore) ReleaseInitialInTx(_ context.Context, tx pgx.Tx, customerID int64) error {
	ft := s.txOf(tx)
	key := roleKey{customerID, customer.RoleBorrower}
	ft.ops = append(ft.ops, func() {
		set := s.sets[key]
		delete(s.initials, set.Initial)
		set.Initial = ""
		s.sets[key] = set
	})
	return nil
}

func (s *fakeStore) SaveVirtualAccountsInTx(_ context.Context, tx pgx.Tx, customerID int64, roleCode int, accounts []identifier.VirtualAccount) error {
	ft := s.txOf(tx)
	key := roleKey{customerID, customer.RoleType(roleCode)}
	ft.ops = append(ft.ops, func() {
		set := s.sets[key]
		set.VirtualAccounts = append([]identifier.VirtualAccount(nil), accounts...)
		s.sets[key] = set
	})
	return nil
}

func (s *fakeStore) Create(_ context.Context, saga *Saga) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *saga
	s.sagas[saga.ID] = &c
	s.sagaOrder = append(s.sagaOrder, saga.ID)
	return nil
}

func (s *fakeStore) LockInTx(context.Context, pgx.Tx, uuid.UUID) error { return nil }

func (s *fakeStore) CompleteInTx(_ context.Context, tx pgx.Tx, id uuid.UUID, forward legacy.ChangeSet) error {
	ft := s.txOf(tx)
	ft.ops = append(ft.ops, func() {
		sg := s.sagas[id]
		sg.State = StateCommitted
		f := forward
		sg.ChangeSet = &f
	})
	return nil
}

func (s *fakeStore) MarkAborted(_ context.Context, id uuid.UUID, reason string, compensated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.sagas[id]
	if !ok {
		return errors.New("saga not found")
	}
	sg.State = StateAborted
	sg.FailureReason = reason
	sg.Compensated = compensated
	return nil
}

func (s *fakeStore) MarkAbortedInTx(_ context.Context, tx pgx.Tx, id uuid.UUID, reason string, compensated bool) error {
	ft := s.txOf(tx)
	ft.ops = append(ft.ops, func() {
		sg := s.sagas[id]
		sg.State = StateAborted
		sg.FailureReason = reason
		sg.Compensated = compensated
	})
	return nil
}

func (s *fakeStore) ClaimStaleInTx(_ context.Context, _ pgx.Tx, cutoff time.Time, limit int) ([]*Saga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Saga
	for _, id := range s.sagaOrder {
		sg := s.sagas[id]
		if sg.State.Terminal() || !sg.UpdatedAt.Before(cutoff) {
			continue
		}
		c := *sg
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) SupersededInTx(_ context.Context, _ pgx.Tx, saga *Saga) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.sagaOrder {
		sg := s.sagas[id]
		if sg.ID == saga.ID || sg.CustomerID != saga.CustomerID || sg.RoleType != saga.RoleType || !sg.CreatedAt.After(saga.CreatedAt) {
			continue
		}
		if sg.State == StateCommitted || (sg.State == StateAborted && sg.Compensated) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) FindByID(_ context.Context, id uuid.UUID) (*Saga, error) {
	if sg := s.saga(id); sg != nil {
		return sg, nil
	}
	return nil, apperrors.ErrNotFound
}

// fakeLegacy keeps one mirror row per migration id.
type fakeLegacy struct {
	mu      sync.Mutex
	records map[int64]legacy.ChangeSet
	pushes  []legacy.ChangeSet
	// fail returns the error for a push and whether the row was written anyway.
	fail func(cs legacy.ChangeSet) (bool, error)
}

func newFakeLegacy() *fakeLegacy {
	return &fakeLegacy{records: map[int64]legacy.ChangeSet{}}
}

func (l *fakeLegacy) Push(_ context.Context, cs legacy.ChangeSet) (legacy.Ack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushes = append(l.pushes, cs)
	if l.fail != nil {
		if applied, err := l.fail(cs); err != nil {
			if applied {
				l.records[cs.MigrationID] = cs
			}
			return legacy.Ack{}, err
		}
	}
	l.records[cs.MigrationID] = cs
	return legacy.Ack{AckID: fmt.Sprintf("ack-%d", len(l.pushes)), MigrationID: cs.MigrationID}, nil
}

func (l *fakeLegacy) Fetch(_ context.Context, migrationID int64) (*legacy.MirrorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cs, ok := l.records[migrationID]
	if !ok {
		return nil, fmt.Errorf("legacy record %w", apperrors.ErrNotFound)
	}
	return &legacy.MirrorRecord{ChangeSet: cs}, nil
}

func (l *fakeLegacy) record(id int64) (legacy.ChangeSet, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cs, ok := l.records[id]
	return cs, ok
}

func (l *fakeLegacy) pushCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pushes)
}

func (l *fakeLegacy) lastPush() legacy.ChangeSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pushes[len(l.pushes)-1]
}

type memoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (c *memoryCounter) Next(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.values == nil {
		c.values = map[string]int64{}
	}
	c.values[key]++
	return c.values[key], nil
}

func (c *memoryCounter) value(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.StatusChangedEvent
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, evt event.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) published() []event.StatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]event.StatusChangedEvent(nil), p.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
