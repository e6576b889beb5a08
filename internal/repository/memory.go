package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/booking"
	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// MemoryStore keeps reservations in process memory.  The policy row lock
// is a one-slot channel so that waiting on it honours context
// cancellation; writes staged by a transaction become visible only when
// it commits.
type MemoryStore struct {
	lock chan struct{}

	mu           sync.RWMutex
	reservations map[string]model.Reservation
	policy       *model.Policy
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lock:         make(chan struct{}, 1),
		reservations: make(map[string]model.Reservation),
		now:          time.Now,
	}
}

var _ booking.Store = (*MemoryStore)(nil)

func (m *MemoryStore) acquire(ctx context.Context) error {
	select {
	case m.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryStore) release() { <-m.lock }

// SumConfirmedGuests sums committed CONFIRMED reservations in w.
func (m *MemoryStore) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sumConfirmed(slices.Collect(maps.Values(m.reservations)), w), nil
}

// CurrentPolicy returns the committed policy without locking.
func (m *MemoryStore) CurrentPolicy(ctx context.Context) (model.Policy, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Policy{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.policy == nil {
		return model.Policy{}, false, nil
	}
	return *m.policy, true, nil
}

// WithinTx runs fn in a transaction.  Staged writes are applied only when
// fn returns nil and ctx is still live.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{store: m}
	defer tx.close()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

// UpdatePolicy upserts the singleton policy row.
func (m *MemoryStore) UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error) {
	if err := m.acquire(ctx); err != nil {
		return model.Policy{}, err
	}
	defer m.release()

	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = m.now().UTC().Truncate(time.Microsecond)
	m.policy = &p
	return p, nil
}

// ListByOwner returns the owner's reservations ordered by start instant.
func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Reservation, 0)
	for _, r := range m.reservations {
		if r.OwnedBy(ownerID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

// GetByID returns the reservation with the given id.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return model.Reservation{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, ErrNotFound
	}
	return r, nil
}

// Cancel marks the owner's reservation CANCELLED.  It returns ErrNotFound,
// ErrForbidden for another owner's reservation, and ErrConflict when the
// reservation is already cancelled or has started by now.  It waits for
// the policy lock so that it never interleaves with a reschedule.
func (m *MemoryStore) Cancel(ctx context.Context, id, ownerID string, now time.Time) (model.Reservation, error) {
	if err := m.acquire(ctx); err != nil {
		return model.Reservation{}, err
	}
	defer m.release()

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, ErrNotFound
	}
	if err := booking.CheckModifiable(r, ownerID, now); err != nil {
		return model.Reservation{}, err
	}
	r.Status = model.StatusCancelled
	r.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	m.reservations[id] = r
	return r, nil
}

type memoryTx struct {
	store        *MemoryStore
	locked       bool
	staged       []model.Reservation
	updated      map[string]model.Reservation
	stagedPolicy *model.Policy
}

func (t *memoryTx) lock(ctx context.Context) error {
	if t.locked {
		return nil
	}
	if err := t.store.acquire(ctx); err != nil {
		return err
	}
	t.locked = true
	return nil
}

func (t *memoryTx) LockPolicy(ctx context.Context) (model.Policy, error) {
	if err := t.lock(ctx); err != nil {
		return model.Policy{}, err
	}
	if t.stagedPolicy != nil {
		return *t.stagedPolicy, nil
	}

	t.store.mu.RLock()
	current := t.store.policy
	t.store.mu.RUnlock()
	if current != nil {
		return *current, nil
	}

	p := booking.DefaultPolicy()
	p.UpdatedAt = t.store.now().UTC().Truncate(time.Microsecond)
	t.stagedPolicy = &p
	return p, nil
}

// LockReservation takes the policy lock as well: the memory store has no
// finer lock, and every writer of a reservation waits for it.
func (t *memoryTx) LockReservation(ctx context.Context, id string) (model.Reservation, error) {
	if err := t.lock(ctx); err != nil {
		return model.Reservation{}, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, r := range t.visible() {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Reservation{}, ErrNotFound
}

func (t *memoryTx) SumConfirmedGuests(ctx context.Context, w booking.Window) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return sumConfirmed(t.visible(), w), nil
}

func (t *memoryTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rows := t.visible()
	if slices.ContainsFunc(rows, func(o model.Reservation) bool { return o.ID == r.ID }) || ownerClash(rows, r) {
		return booking.ErrUniqueViolation
	}
	t.staged = append(t.staged, r)
	return nil
}

func (t *memoryTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rows := t.visible()
	if !slices.ContainsFunc(rows, func(o model.Reservation) bool { return o.ID == r.ID }) {
		return ErrNotFound
	}
	if ownerClash(rows, r) {
		return booking.ErrUniqueViolation
	}
	if i := slices.IndexFunc(t.staged, func(o model.Reservation) bool { return o.ID == r.ID }); i >= 0 {
		t.staged[i] = r
		return nil
	}
	if t.updated == nil {
		t.updated = make(map[string]model.Reservation)
	}
	t.updated[r.ID] = r
	return nil
}

// visible returns the committed rows with this transaction's writes
// applied.  The caller holds store.mu.
func (t *memoryTx) visible() []model.Reservation {
	rows := make([]model.Reservation, 0, len(t.store.reservations)+len(t.staged))
	for id, r := range t.store.reservations {
		if u, ok := t.updated[id]; ok {
			r = u
		}
		rows = append(rows, r)
	}
	return append(rows, t.staged...)
}

// commit re-checks the unique constraints against whatever was committed
// since the writes were staged, then swaps the new rows in.
func (t *memoryTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	next := maps.Clone(m.reservations)
	for id, r := range t.updated {
		if _, ok := next[id]; !ok {
			return ErrNotFound
		}
		next[id] = r
	}
	for _, r := range t.staged {
		if _, dup := next[r.ID]; dup {
			return booking.ErrUniqueViolation
		}
		next[r.ID] = r
	}
	if !uniqueOwnerStart(next) {
		return booking.ErrUniqueViolation
	}

	if t.stagedPolicy != nil && m.policy == nil {
		m.policy = t.stagedPolicy
	}
	m.reservations = next
	t.staged = nil
	t.updated = nil
	t.stagedPolicy = nil
	return nil
}

func (t *memoryTx) close() {
	if t.locked {
		t.locked = false
		t.store.release()
	}
}

func sumConfirmed(rows []model.Reservation, w booking.Window) int {
	total := 0
	for _, r := range rows {
		if r.IsConfirmed() && w.Contains(r.StartsAt) {
			total += r.GuestCount
		}
	}
	return total
}

// ownerClash mirrors the UNIQUE (owner_id, starts_at) index for r against
// every other row: NULL owners never collide, and status does not matter.
func ownerClash(rows []model.Reservation, r model.Reservation) bool {
	if r.OwnerID == nil {
		return false
	}
	return slices.ContainsFunc(rows, func(o model.Reservation) bool {
		return o.ID != r.ID && o.OwnerID != nil && *o.OwnerID == *r.OwnerID && o.StartsAt.Equal(r.StartsAt)
	})
}

func uniqueOwnerStart(rows map[string]model.Reservation) bool {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.OwnerID == nil {
			continue
		}
		key := *r.OwnerID + "|" + r.StartsAt.UTC().Format(time.RFC3339Nano)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}
