package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stayhold/internal/domain"
)

// minWindowDays keeps every snapshot wide enough for the 90-day
// next-available scan.
const minWindowDays = 90

// Calendar is the availability authority. Each property's calendar is owned
// by a single goroutine; every read and every transition goes through that
// goroutine's op channel, so mutations against one property are strictly
// ordered and atomic over the dates they touch. No caller ever observes a
// partially applied transition.
type Calendar struct {
	repo    domain.CalendarRepository
	cache   domain.Cache
	clock   domain.Clock
	horizon int
	snapTTL time.Duration

	mu     sync.Mutex
	actors map[int64]*propertyActor

	winMu   sync.Mutex
	windows map[int64]map[int]struct{}
}

func NewCalendar(repo domain.CalendarRepository, cache domain.Cache, clock domain.Clock, horizonDays int, snapTTL time.Duration) *Calendar {
	if horizonDays < minWindowDays {
		horizonDays = minWindowDays
	}
	return &Calendar{
		repo:    repo,
		cache:   cache,
		clock:   clock,
		horizon: horizonDays,
		snapTTL: snapTTL,
		actors:  make(map[int64]*propertyActor),
		windows: make(map[int64]map[int]struct{}),
	}
}

type propState struct {
	days map[domain.Date]domain.AvailabilityRecord
}

type propertyActor struct {
	id  int64
	ops chan func(*propState)
}

// actor returns the serializing owner for propertyID, starting it (and
// loading its calendar) on first touch.
func (c *Calendar) actor(ctx context.Context, propertyID int64) (*propertyActor, error) {
	c.mu.Lock()
	if a, ok := c.actors[propertyID]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	// Load outside the map lock; slack past the horizon covers stays that
	// straddle the scan bound.
	from := domain.DateOf(c.clock.Now())
	recs, err := c.repo.LoadCalendar(ctx, propertyID, from, c.horizon+30)
	if err != nil {
		return nil, fmt.Errorf("load calendar for property %d: %w", propertyID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[propertyID]; ok { // lost the race, use the winner
		return a, nil
	}
	st := &propState{days: make(map[domain.Date]domain.AvailabilityRecord, len(recs))}
	for _, r := range recs {
		st.days[r.Date] = r
	}
	a := &propertyActor{id: propertyID, ops: make(chan func(*propState))}
	go a.run(st)
	c.actors[propertyID] = a
	return a, nil
}

func (a *propertyActor) run(st *propState) {
	for op := range a.ops {
		op(st)
	}
}

// do runs fn inside the actor. Enqueueing honors ctx; once enqueued the op
// always completes, so state and store never diverge on cancellation.
func (a *propertyActor) do(ctx context.Context, fn func(*propState) error) error {
	done := make(chan error, 1)
	select {
	case a.ops <- func(st *propState) { done <- fn(st) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-done
}

// Snapshot returns the chronological calendar view from today over
// windowDays (clamped to [90, horizon]). Days the host never opened are
// absent from the result; absence means not bookable.
func (c *Calendar) Snapshot(ctx context.Context, propertyID int64, windowDays int) (domain.Snapshot, error) {
	if windowDays < minWindowDays {
		windowDays = minWindowDays
	}
	if windowDays > c.horizon {
		windowDays = c.horizon
	}
	from := domain.DateOf(c.clock.Now())

	key := snapshotKey(propertyID, from, windowDays)
	var snap domain.Snapshot
	if ok, _ := c.cache.Get(ctx, key, &snap); ok {
		return snap, nil
	}

	a, err := c.actor(ctx, propertyID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	err = a.do(ctx, func(st *propState) error {
		snap = domain.Snapshot{PropertyID: propertyID, From: from, WindowDays: windowDays}
		for i := 0; i < windowDays; i++ {
			d := from.AddDays(i)
			if rec, ok := st.days[d]; ok {
				snap.Records = append(snap.Records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	_ = c.cache.Set(ctx, key, snap, c.snapTTL)
	c.rememberWindow(propertyID, windowDays)
	return snap, nil
}

// Transition performs an all-or-nothing status change across dates. It fails
// entirely, with per-date detail, if any date's current status does not match
// from. Two special cases:
//   - from=available also matches partially_available (both are bookable);
//   - to=blocked on a date already blocked by the same holder is an
//     idempotent success.
//
// When from=blocked the caller must be the holder of every date.
func (c *Calendar) Transition(ctx context.Context, propertyID int64, dates []domain.Date, from, to domain.DateStatus, holderID string) error {
	if len(dates) == 0 {
		return fmt.Errorf("transition on property %d: empty date set", propertyID)
	}
	a, err := c.actor(ctx, propertyID)
	if err != nil {
		return err
	}
	return a.do(ctx, func(st *propState) error {
		conflicts := map[string]domain.DateStatus{}
		for _, d := range dates {
			rec, ok := st.days[d]
			switch {
			case !ok:
				conflicts[d.String()] = domain.StatusNone
			case rec.Status == from || (from == domain.StatusAvailable && rec.Status == domain.StatusPartiallyAvailable):
				if from == domain.StatusBlocked && rec.HolderID != holderID {
					conflicts[d.String()] = rec.Status
				}
			case to == domain.StatusBlocked && rec.Status == domain.StatusBlocked && rec.HolderID == holderID:
				// already ours
			default:
				conflicts[d.String()] = rec.Status
			}
		}
		if len(conflicts) > 0 {
			return &domain.ConflictError{PropertyID: propertyID, Dates: conflicts}
		}

		holder := ""
		if to == domain.StatusBlocked {
			holder = holderID
		}
		// Persist before mutating memory; a failed write leaves no effect.
		if err := c.repo.UpdateStatuses(ctx, propertyID, dates, to, holder); err != nil {
			return fmt.Errorf("persist transition for property %d: %w", propertyID, err)
		}
		for _, d := range dates {
			rec := st.days[d]
			rec.Status = to
			rec.HolderID = holder
			st.days[d] = rec
		}
		c.invalidateSnapshots(ctx, propertyID)
		return nil
	})
}

// IsHeldBy reports whether date is currently blocked by holderID. Lets a
// holder keep operating on their own blocked dates without seeing them as
// unavailable.
func (c *Calendar) IsHeldBy(ctx context.Context, propertyID int64, date domain.Date, holderID string) (bool, error) {
	a, err := c.actor(ctx, propertyID)
	if err != nil {
		return false, err
	}
	var held bool
	err = a.do(ctx, func(st *propState) error {
		rec, ok := st.days[date]
		held = ok && rec.Status == domain.StatusBlocked && rec.HolderID == holderID
		return nil
	})
	return held, err
}

// Refresh reloads a property's calendar from the store, picking up days the
// host opened since the actor started.
func (c *Calendar) Refresh(ctx context.Context, propertyID int64) error {
	a, err := c.actor(ctx, propertyID)
	if err != nil {
		return err
	}
	from := domain.DateOf(c.clock.Now())
	recs, err := c.repo.LoadCalendar(ctx, propertyID, from, c.horizon+30)
	if err != nil {
		return fmt.Errorf("reload calendar for property %d: %w", propertyID, err)
	}
	return a.do(ctx, func(st *propState) error {
		st.days = make(map[domain.Date]domain.AvailabilityRecord, len(recs))
		for _, r := range recs {
			st.days[r.Date] = r
		}
		c.invalidateSnapshots(ctx, propertyID)
		return nil
	})
}

func snapshotKey(propertyID int64, from domain.Date, window int) string {
	return fmt.Sprintf("cal:%d:%s:%d", propertyID, from, window)
}

// rememberWindow records that a snapshot for this window size has been
// cached, so a later transition knows which keys to drop.
func (c *Calendar) rememberWindow(propertyID int64, windowDays int) {
	c.winMu.Lock()
	defer c.winMu.Unlock()
	set, ok := c.windows[propertyID]
	if !ok {
		set = make(map[int]struct{})
		c.windows[propertyID] = set
	}
	set[windowDays] = struct{}{}
}

// invalidateSnapshots drops every cached snapshot variant seen for the
// property. Keys from a previous day fall out via the cache TTL.
func (c *Calendar) invalidateSnapshots(ctx context.Context, propertyID int64) {
	from := domain.DateOf(c.clock.Now())
	_ = c.cache.Del(ctx, snapshotKey(propertyID, from, minWindowDays))
	c.winMu.Lock()
	defer c.winMu.Unlock()
	for w := range c.windows[propertyID] {
		if w != minWindowDays {
			_ = c.cache.Del(ctx, snapshotKey(propertyID, from, w))
		}
	}
}
