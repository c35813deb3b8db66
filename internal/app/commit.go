package app

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stayhold/internal/adapters/observability"
	"stayhold/internal/domain"
)

type CommitPhase string

const (
	PhaseValidating        CommitPhase = "validating"
	PhaseLockAcquired      CommitPhase = "lock_acquired"
	PhasePaying            CommitPhase = "paying"
	PhaseCommitting        CommitPhase = "committing"
	PhaseDone              CommitPhase = "done"
	PhaseStuckAfterPayment CommitPhase = "stuck_after_payment"
)

type CommitRequest struct {
	PropertyID      int64              `json:"propertyId"`
	HolderID        string             `json:"holderId"`
	CheckIn         domain.Date        `json:"checkIn"`
	CheckOut        domain.Date        `json:"checkOut"`
	Guests          int                `json:"guests"`
	HourlyExtension int                `json:"hourlyExtension"`
	CouponCode      string             `json:"couponCode,omitempty"`
	Contact         domain.ContactInfo `json:"contact"`
	TermsAccepted   bool               `json:"termsAccepted"`
	QuoteToken      string             `json:"quoteToken"`
	// LockID, when set, reuses the hold taken during the blocking step
	// instead of acquiring a fresh one.
	LockID string `json:"lockId,omitempty"`
}

type CommitResult struct {
	Phase     CommitPhase          `json:"phase"`
	BookingID string               `json:"bookingId,omitempty"`
	Lock      domain.ReservationLock `json:"lock"`
}

// CommitCoordinator runs the checkout saga: validate, re-check availability,
// lock, pay, persist, confirm. Each phase has its own remedy on failure, and
// the remedies are not symmetric: before capture every failure unwinds by
// releasing the lock; after capture the lock is NEVER auto-released — the
// customer has paid, so the dates stay blocked in a grace window for manual
// resolution.
type CommitCoordinator struct {
	cal      *Calendar
	locks    *LockManager
	quotes   *QuoteService
	payments domain.PaymentGateway
	bookings domain.BookingRepository
	clock    domain.Clock
}

func NewCommitCoordinator(cal *Calendar, locks *LockManager, quotes *QuoteService, payments domain.PaymentGateway, bookings domain.BookingRepository, clock domain.Clock) *CommitCoordinator {
	return &CommitCoordinator{cal: cal, locks: locks, quotes: quotes, payments: payments, bookings: bookings, clock: clock}
}

// Run executes one commit attempt end to end.
func (c *CommitCoordinator) Run(ctx context.Context, req CommitRequest) (CommitResult, error) {
	res := CommitResult{Phase: PhaseValidating}

	// -- validating: local checks only, no side effects yet.
	if err := validateCommit(req); err != nil {
		return res, err
	}
	params := domain.QuoteParams{
		PropertyID:      req.PropertyID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		HourlyExtension: req.HourlyExtension,
		CouponCode:      req.CouponCode,
	}
	nights := domain.Nights(req.CheckIn, req.CheckOut)

	// -- availability re-check against a fresh snapshot, before touching
	// anything. Own blocked dates are acceptable.
	snap, err := c.cal.Snapshot(ctx, req.PropertyID, minWindowDays)
	if err != nil {
		return res, fmt.Errorf("availability re-check: %w", err)
	}
	if conflict := recheck(snap, nights, req.HolderID); conflict != nil {
		if start, n := nextFittingStart(snap, req.CheckIn, len(nights), req.HolderID); n {
			conflict.SuggestedStart = start
		}
		observability.ObserveCommit("recheck_conflict")
		return res, conflict
	}

	// -- lock_acquired
	lock, err := c.obtainLock(ctx, req, nights)
	if err != nil {
		observability.ObserveCommit("lock_failed")
		return res, err
	}
	res.Phase = PhaseLockAcquired
	res.Lock = lock

	// -- paying: extend for gateway headroom, then capture. Every failure
	// up to a successful capture releases the lock.
	res.Phase = PhasePaying
	if lock, err = c.locks.Extend(ctx, lock.ID, domain.PaymentLockTTL); err != nil {
		return res, fmt.Errorf("extend lock for payment: %w", err)
	}
	res.Lock = lock

	quote, err := c.quotes.Lookup(ctx, req.QuoteToken)
	if err != nil {
		c.unwind(ctx, lock.ID)
		return res, err
	}
	if quote.Params != params {
		c.unwind(ctx, lock.ID)
		observability.ObserveCommit("quote_mismatch")
		return res, domain.ErrQuoteMismatch
	}

	proof, err := c.payments.Capture(ctx, domain.CaptureRequest{
		QuoteToken:  req.QuoteToken,
		AmountCents: quote.Breakdown.Total,
		Currency:    quote.Breakdown.Currency,
		HolderID:    req.HolderID,
		Reference:   lock.ID,
	})
	if err != nil {
		c.unwind(ctx, lock.ID)
		observability.ObserveCommit("payment_failed")
		return res, fmt.Errorf("payment capture: %w", err)
	}
	// Guard first, before anything else can run: from here on the expiry
	// sweep must not touch this lock.
	if err := c.locks.SetCommitGuard(lock.ID); err != nil {
		return c.stuck(lock.ID, proof, res, fmt.Errorf("set commit guard: %w", err))
	}

	// -- committing: token redemption, booking persistence, confirmation.
	// Failures here never release the lock.
	res.Phase = PhaseCommitting
	if _, err := c.quotes.Redeem(ctx, req.QuoteToken, params); err != nil {
		return c.stuck(lock.ID, proof, res, err)
	}
	booking := domain.Booking{
		ID:         uuid.New().String(),
		PropertyID: req.PropertyID,
		HolderID:   req.HolderID,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		Guests:     req.Guests,
		Contact:    req.Contact,
		PaymentRef: proof.PaymentID,
		TotalCents: quote.Breakdown.Total,
		Currency:   quote.Breakdown.Currency,
		CreatedAt:  c.clock.Now(),
	}
	if err := c.bookings.CreateBooking(ctx, booking); err != nil {
		return c.stuck(lock.ID, proof, res, fmt.Errorf("persist booking: %w", err))
	}
	if err := c.locks.Confirm(ctx, lock.ID); err != nil {
		return c.stuck(lock.ID, proof, res, fmt.Errorf("confirm lock: %w", err))
	}

	// -- done
	res.Phase = PhaseDone
	res.BookingID = booking.ID
	res.Lock, _ = c.locks.Get(lock.ID)
	observability.ObserveCommit("done")
	log.Info().
		Str("booking", booking.ID).
		Int64("property", booking.PropertyID).
		Str("holder", booking.HolderID).
		Msg("booking committed")
	return res, nil
}

func (c *CommitCoordinator) obtainLock(ctx context.Context, req CommitRequest, nights []domain.Date) (domain.ReservationLock, error) {
	if req.LockID == "" {
		return c.locks.Acquire(ctx, req.PropertyID, nights, req.HolderID)
	}
	lock, err := c.locks.Get(req.LockID)
	if err != nil {
		return domain.ReservationLock{}, err
	}
	if lock.HolderID != req.HolderID {
		return domain.ReservationLock{}, domain.ErrNotLockHolder
	}
	if lock.State != domain.LockActive {
		return domain.ReservationLock{}, domain.ErrLockNotActive
	}
	if !sameDates(lock.Dates, nights) {
		// The selection drifted since the block; take a fresh hold. The
		// acquire is idempotent over the overlap.
		if rerr := c.locks.Release(ctx, req.LockID); rerr != nil {
			return domain.ReservationLock{}, rerr
		}
		return c.locks.Acquire(ctx, req.PropertyID, nights, req.HolderID)
	}
	return lock, nil
}

// unwind is the pre-capture remedy: give the dates back.
func (c *CommitCoordinator) unwind(ctx context.Context, lockID string) {
	if err := c.locks.Release(ctx, lockID); err != nil {
		log.Warn().Str("lock", lockID).Err(err).Msg("pre-capture unwind release failed")
	}
}

// stuck is the post-capture remedy: keep the dates blocked, extend into the
// grace window, and surface a non-retryable error for manual resolution.
func (c *CommitCoordinator) stuck(lockID string, proof domain.PaymentProof, res CommitResult, cause error) (CommitResult, error) {
	lock, merr := c.locks.MarkStuck(lockID)
	if merr != nil {
		log.Error().Str("lock", lockID).Err(merr).Msg("failed to mark lock stuck")
	}
	res.Phase = PhaseStuckAfterPayment
	res.Lock = lock
	observability.ObserveCommit("stuck_after_payment")
	log.Error().
		Str("lock", lockID).
		Str("payment", proof.PaymentID).
		Err(cause).
		Msg("commit failed after payment capture; lock held for manual resolution")
	return res, &domain.CommitFailedAfterPayment{LockID: lockID, PaymentRef: proof.PaymentID, Err: cause}
}

func validateCommit(req CommitRequest) error {
	ve := domain.NewValidationError()
	if req.PropertyID <= 0 {
		ve.Add("propertyId", "required")
	}
	if req.HolderID == "" {
		ve.Add("holderId", "required")
	}
	if req.Contact.Name == "" {
		ve.Add("contact.name", "required")
	}
	if _, err := mail.ParseAddress(req.Contact.Email); err != nil {
		ve.Add("contact.email", "provide a valid email")
	}
	if !req.TermsAccepted {
		ve.Add("termsAccepted", "terms must be accepted")
	}
	if req.QuoteToken == "" {
		ve.Add("quoteToken", "required")
	}
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() || !req.CheckIn.Before(req.CheckOut) {
		ve.Add("dates", "checkOut must be after checkIn")
	}
	if ve.Empty() {
		return nil
	}
	return ve
}

// recheck verifies every night is still acceptable, returning per-date
// conflict detail otherwise.
func recheck(snap domain.Snapshot, nights []domain.Date, holderID string) *domain.ConflictError {
	conflicts := map[string]domain.DateStatus{}
	for _, d := range nights {
		if DateBookable(snap, d, holderID) {
			continue
		}
		if rec, ok := snap.Lookup(d); ok {
			conflicts[d.String()] = rec.Status
		} else {
			conflicts[d.String()] = domain.StatusNone
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	return &domain.ConflictError{PropertyID: snap.PropertyID, Dates: conflicts}
}

// nextFittingStart finds the first start after from where a stay of n nights
// fits entirely, within the resolver horizon.
func nextFittingStart(snap domain.Snapshot, from domain.Date, n int, holderID string) (domain.Date, bool) {
	for i := 1; i < ResolverHorizonDays; i++ {
		start := from.AddDays(i)
		fits := true
		for j := 0; j < n; j++ {
			if !DateBookable(snap, start.AddDays(j), holderID) {
				fits = false
				break
			}
		}
		if fits {
			return start, true
		}
	}
	return domain.Date{}, false
}

func sameDates(a, b []domain.Date) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
