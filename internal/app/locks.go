package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stayhold/internal/adapters/observability"
	"stayhold/internal/domain"
)

// LockManager grants and enforces time-boxed exclusive holds over contiguous
// date ranges. It is the only writer of blocked<->available/booked
// transitions; atomicity per date set comes from the calendar actor.
type LockManager struct {
	cal   *Calendar
	clock domain.Clock
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// terminalRetention is how long released/expired/confirmed entries stay
// queryable before the sweep prunes them.
const terminalRetention = time.Hour

type lockEntry struct {
	lock domain.ReservationLock
	// commitInFlight is set the instant payment capture succeeds and cleared
	// when the saga reaches done or stuck_after_payment. While set, the
	// expiry sweep must not touch the lock regardless of elapsed time.
	commitInFlight bool
	stuck          bool
	terminatedAt   time.Time
}

func NewLockManager(cal *Calendar, clock domain.Clock, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = domain.DefaultLockTTL
	}
	return &LockManager{cal: cal, clock: clock, ttl: ttl, locks: make(map[string]*lockEntry)}
}

// Acquire blocks dates for holderID as a unit. Dates must be a contiguous
// chronological run. Re-acquiring the exact range already held returns the
// existing lock with its expiry refreshed.
func (m *LockManager) Acquire(ctx context.Context, propertyID int64, dates []domain.Date, holderID string) (domain.ReservationLock, error) {
	ve := domain.NewValidationError()
	if holderID == "" {
		ve.Add("holderId", "required")
	}
	if len(dates) == 0 {
		ve.Add("dates", "provide at least one date")
	} else if !domain.Contiguous(dates) {
		ve.Add("dates", "must be a contiguous chronological range")
	}
	if !ve.Empty() {
		return domain.ReservationLock{}, ve
	}

	// Re-acquiring the exact range already held returns the existing lock,
	// refreshed. A second lock over the same dates would let the older
	// one's expiry free days the newer still owns.
	m.mu.Lock()
	for _, e := range m.locks {
		if e.lock.State != domain.LockActive || e.lock.PropertyID != propertyID ||
			e.lock.HolderID != holderID || !sameDates(e.lock.Dates, dates) {
			continue
		}
		if newExp := m.clock.Now().Add(m.ttl); newExp.After(e.lock.ExpiresAt) {
			e.lock.ExpiresAt = newExp
		}
		lock := e.lock
		m.mu.Unlock()
		observability.ObserveLock("reacquire")
		return lock, nil
	}
	m.mu.Unlock()

	if err := m.cal.Transition(ctx, propertyID, dates, domain.StatusAvailable, domain.StatusBlocked, holderID); err != nil {
		if domain.AsConflictError(err) != nil {
			observability.ObserveLock("conflict")
		}
		return domain.ReservationLock{}, err
	}

	lock := domain.ReservationLock{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		Dates:      append([]domain.Date(nil), dates...),
		HolderID:   holderID,
		ExpiresAt:  m.clock.Now().Add(m.ttl),
		State:      domain.LockActive,
	}
	m.mu.Lock()
	m.locks[lock.ID] = &lockEntry{lock: lock}
	m.mu.Unlock()

	observability.ObserveLock("acquire")
	observability.SetActiveLocks(m.activeCount())
	return lock, nil
}

// Get returns a copy of the lock.
func (m *LockManager) Get(lockID string) (domain.ReservationLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ReservationLock{}, domain.ErrNotFound
	}
	return e.lock, nil
}

// Extend pushes the lock's expiry to now+ttl. It never shortens: if the
// current expiry is already later, it stays. Extending an expired lock fails
// after lazily reclaiming it.
func (m *LockManager) Extend(ctx context.Context, lockID string, ttl time.Duration) (domain.ReservationLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ReservationLock{}, domain.ErrNotFound
	}
	if e.lock.State != domain.LockActive {
		return domain.ReservationLock{}, domain.ErrLockNotActive
	}
	if m.lazyExpire(ctx, e) {
		return domain.ReservationLock{}, domain.ErrLockExpired
	}
	if newExp := m.clock.Now().Add(ttl); newExp.After(e.lock.ExpiresAt) {
		e.lock.ExpiresAt = newExp
	}
	observability.ObserveLock("extend")
	return e.lock, nil
}

// Release returns the lock's dates to available. Idempotent: releasing a
// lock that is already released or expired is a no-op, not an error.
func (m *LockManager) Release(ctx context.Context, lockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ErrNotFound
	}
	if e.lock.State != domain.LockActive {
		return nil
	}
	return m.releaseEntry(ctx, e, domain.LockReleased, "user")
}

// Confirm transitions the lock's dates blocked->booked. Sole path to booked;
// callable once, by the commit coordinator, after capture succeeds. With the
// commit guard set it proceeds regardless of elapsed time.
func (m *LockManager) Confirm(ctx context.Context, lockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ErrNotFound
	}
	if e.lock.State != domain.LockActive {
		return domain.ErrLockNotActive
	}
	if m.lazyExpire(ctx, e) {
		return domain.ErrLockExpired
	}
	if err := m.cal.Transition(ctx, e.lock.PropertyID, e.lock.Dates, domain.StatusBlocked, domain.StatusBooked, e.lock.HolderID); err != nil {
		return err
	}
	e.lock.State = domain.LockConfirmed
	e.commitInFlight = false
	e.stuck = false
	e.terminatedAt = m.clock.Now()
	observability.ObserveLock("confirm")
	observability.SetActiveLocks(m.activeCountLocked())
	return nil
}

// SetCommitGuard flags the lock as mid-commit so expiry cannot race the
// payment-to-booking transition.
func (m *LockManager) SetCommitGuard(lockID string) error {
	return m.setGuard(lockID, true)
}

func (m *LockManager) ClearCommitGuard(lockID string) error {
	return m.setGuard(lockID, false)
}

func (m *LockManager) setGuard(lockID string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ErrNotFound
	}
	if v && e.lock.State != domain.LockActive {
		return domain.ErrLockNotActive
	}
	e.commitInFlight = v
	return nil
}

// MarkStuck moves a paid-but-unpersisted lock into the grace window: expiry
// extended to the 30-minute manual-resolution TTL (never shortened), guard
// cleared, lock flagged for the operator listing. The dates stay blocked.
func (m *LockManager) MarkStuck(lockID string) (domain.ReservationLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[lockID]
	if !ok {
		return domain.ReservationLock{}, domain.ErrNotFound
	}
	if newExp := m.clock.Now().Add(domain.GraceLockTTL); newExp.After(e.lock.ExpiresAt) {
		e.lock.ExpiresAt = newExp
	}
	e.stuck = true
	e.commitInFlight = false
	observability.ObserveLock("stuck")
	return e.lock, nil
}

// Stuck lists grace-window locks awaiting manual resolution.
func (m *LockManager) Stuck() []domain.ReservationLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReservationLock
	for _, e := range m.locks {
		if e.stuck && e.lock.State == domain.LockActive {
			out = append(out, e.lock)
		}
	}
	return out
}

// SweepOnce reclaims every active lock past its expiry, skipping any with
// the commit guard set or flagged stuck. Returns how many locks it expired.
func (m *LockManager) SweepOnce(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for id, e := range m.locks {
		if e.lock.State != domain.LockActive {
			if now.Sub(e.terminatedAt) > terminalRetention {
				delete(m.locks, id)
			}
			continue
		}
		if e.commitInFlight || e.stuck {
			continue
		}
		if now.After(e.lock.ExpiresAt) {
			if err := m.releaseEntry(ctx, e, domain.LockExpired, "expiry"); err != nil {
				log.Warn().Str("lock", e.lock.ID).Err(err).Msg("expiry sweep release failed")
				continue
			}
			n++
		}
	}
	return n
}

// Run drives the expiry sweep until ctx is done.
func (m *LockManager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.SweepOnce(ctx); n > 0 {
				log.Info().Int("expired", n).Msg("lock sweep reclaimed holds")
			}
		}
	}
}

// lazyExpire reclaims e if its expiry has passed and no commit is in flight.
// Caller holds m.mu. Reports whether the lock is now expired.
func (m *LockManager) lazyExpire(ctx context.Context, e *lockEntry) bool {
	if e.commitInFlight || e.stuck {
		return false
	}
	if !m.clock.Now().After(e.lock.ExpiresAt) {
		return false
	}
	if err := m.releaseEntry(ctx, e, domain.LockExpired, "expiry"); err != nil {
		log.Warn().Str("lock", e.lock.ID).Err(err).Msg("lazy expiry release failed")
	}
	return true
}

// releaseEntry transitions the entry's dates back to available and marks the
// terminal state. Days still covered by another active lock of the same
// holder stay blocked; they belong to the surviving hold. Caller holds m.mu.
func (m *LockManager) releaseEntry(ctx context.Context, e *lockEntry, terminal domain.LockState, cause string) error {
	if free := m.datesToFree(e); len(free) > 0 {
		if err := m.cal.Transition(ctx, e.lock.PropertyID, free, domain.StatusBlocked, domain.StatusAvailable, e.lock.HolderID); err != nil {
			return fmt.Errorf("release lock %s: %w", e.lock.ID, err)
		}
	}
	e.lock.State = terminal
	e.commitInFlight = false
	e.terminatedAt = m.clock.Now()
	observability.ObserveLock("release_" + cause)
	observability.SetActiveLocks(m.activeCountLocked())
	return nil
}

// datesToFree returns the subset of e's dates no other active lock of the
// same holder covers. Overlap happens when a holder widens a range into a
// new lock. Caller holds m.mu.
func (m *LockManager) datesToFree(e *lockEntry) []domain.Date {
	covered := map[domain.Date]bool{}
	for _, o := range m.locks {
		if o == e || o.lock.State != domain.LockActive ||
			o.lock.PropertyID != e.lock.PropertyID || o.lock.HolderID != e.lock.HolderID {
			continue
		}
		for _, d := range o.lock.Dates {
			covered[d] = true
		}
	}
	free := make([]domain.Date, 0, len(e.lock.Dates))
	for _, d := range e.lock.Dates {
		if !covered[d] {
			free = append(free, d)
		}
	}
	return free
}

func (m *LockManager) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked()
}

func (m *LockManager) activeCountLocked() int {
	n := 0
	for _, e := range m.locks {
		if e.lock.State == domain.LockActive {
			n++
		}
	}
	return n
}
