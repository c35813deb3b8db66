package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stayhold/internal/app"
	"stayhold/internal/domain"
	"stayhold/internal/storage/memory"
)

const testProperty int64 = 101

// ---- fakes ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakePricing struct {
	clock    domain.Clock
	quoteTTL time.Duration

	mu    sync.Mutex
	calls int

	// echo rewrites the params the authority answers with, to simulate a
	// response that no longer matches the request.
	echo func(domain.QuoteParams) domain.QuoteParams
	// beforeReply runs between request and response, to simulate a slow
	// call that something else overtakes.
	beforeReply func()
	couponErr   error
}

func (f *fakePricing) QuotePricing(_ context.Context, params domain.QuoteParams) (domain.PricingQuote, error) {
	if f.beforeReply != nil {
		f.beforeReply()
	}
	answered := params
	if f.echo != nil {
		answered = f.echo(params)
	}
	f.mu.Lock()
	f.calls++
	tok := fmt.Sprintf("tok-%d", f.calls)
	f.mu.Unlock()

	n := len(domain.Nights(params.CheckIn, params.CheckOut))
	now := f.clock.Now()
	return domain.PricingQuote{
		Params: answered,
		Breakdown: domain.PriceBreakdown{
			Currency:     "USD",
			NightlyCents: 10000,
			Nights:       n,
			Subtotal:     int64(n) * 10000,
			Total:        int64(n) * 10000,
		},
		Token:     tok,
		IssuedAt:  now,
		ExpiresAt: now.Add(f.quoteTTL),
	}, nil
}

func (f *fakePricing) ValidateCoupon(_ context.Context, code string, _ domain.QuoteParams) (domain.CouponDiscount, error) {
	if f.couponErr != nil {
		return domain.CouponDiscount{}, f.couponErr
	}
	return domain.CouponDiscount{Code: code, Percent: 10}, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	captures []domain.CaptureRequest
	err      error
}

func (g *fakeGateway) Capture(_ context.Context, req domain.CaptureRequest) (domain.PaymentProof, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.PaymentProof{}, g.err
	}
	g.captures = append(g.captures, req)
	return domain.PaymentProof{PaymentID: fmt.Sprintf("pay-%d", len(g.captures))}, nil
}

func (g *fakeGateway) captureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.captures)
}

// ---- wiring ----

type stack struct {
	clock   *fakeClock
	repo    *memory.Repo
	cache   *memory.Cache
	cal     *app.Calendar
	locks   *app.LockManager
	quotes  *app.QuoteService
	pricing *fakePricing
	gateway *fakeGateway
	commit  *app.CommitCoordinator

	today domain.Date
}

// newStack builds the full service graph on in-memory backends, with 120
// days of open calendar for testProperty starting today.
func newStack(t *testing.T) *stack {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	repo := memory.NewRepo()
	cache := memory.NewCache()

	today := domain.DateOf(clock.Now())
	if err := repo.UpsertRecords(context.Background(), testProperty, domain.Nights(today, today.AddDays(120)), domain.StatusAvailable); err != nil {
		t.Fatalf("seed calendar: %v", err)
	}

	cal := app.NewCalendar(repo, cache, clock, 365, time.Minute)
	locks := app.NewLockManager(cal, clock, domain.DefaultLockTTL)
	pricing := &fakePricing{clock: clock, quoteTTL: 10 * time.Minute}
	quotes := app.NewQuoteService(pricing, cache, clock, 16)
	gateway := &fakeGateway{}
	commit := app.NewCommitCoordinator(cal, locks, quotes, gateway, repo, clock)

	return &stack{
		clock: clock, repo: repo, cache: cache,
		cal: cal, locks: locks, quotes: quotes,
		pricing: pricing, gateway: gateway, commit: commit,
		today: today,
	}
}

func (s *stack) mustStatus(t *testing.T, d domain.Date) domain.AvailabilityRecord {
	t.Helper()
	rec, ok := s.repo.Status(testProperty, d)
	if !ok {
		t.Fatalf("no record for %s", d)
	}
	return rec
}

func (s *stack) params(nights int) domain.QuoteParams {
	return domain.QuoteParams{
		PropertyID: testProperty,
		CheckIn:    s.today,
		CheckOut:   s.today.AddDays(nights),
		Guests:     2,
	}
}
