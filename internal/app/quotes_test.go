package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stayhold/internal/domain"
)

func TestQuote_IssueLookupRedeem(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	params := s.params(3)

	q, err := s.quotes.Quote(ctx, "guest-1", params)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Token == "" || q.Params != params {
		t.Fatalf("bad quote: %+v", q)
	}
	if q.Breakdown.Nights != 3 || q.Breakdown.Total != 30000 {
		t.Fatalf("breakdown: %+v", q.Breakdown)
	}

	got, err := s.quotes.Lookup(ctx, q.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Params != params {
		t.Fatalf("lookup params drifted: %+v", got.Params)
	}

	if _, err := s.quotes.Redeem(ctx, q.Token, params); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// Single use.
	if _, err := s.quotes.Redeem(ctx, q.Token, params); !errors.Is(err, domain.ErrQuoteExpired) {
		t.Fatalf("second redeem: %v", err)
	}
}

func TestRedeem_ParamsMustMatchExactly(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	params := s.params(3)

	q, err := s.quotes.Quote(ctx, "guest-1", params)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	drifted := params
	drifted.Guests = 4
	if _, err := s.quotes.Redeem(ctx, q.Token, drifted); !errors.Is(err, domain.ErrQuoteMismatch) {
		t.Fatalf("want ErrQuoteMismatch, got %v", err)
	}
	// The failed attempt did not consume the token.
	if _, err := s.quotes.Redeem(ctx, q.Token, params); err != nil {
		t.Fatalf("redeem with matching params: %v", err)
	}
}

func TestQuote_NewParamsSupersedeOldToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	q1, err := s.quotes.Quote(ctx, "guest-1", s.params(2))
	if err != nil {
		t.Fatalf("first quote: %v", err)
	}
	if _, err := s.quotes.Quote(ctx, "guest-1", s.params(5)); err != nil {
		t.Fatalf("second quote: %v", err)
	}

	// Changing the dates killed the first token.
	if _, err := s.quotes.Lookup(ctx, q1.Token); !errors.Is(err, domain.ErrQuoteExpired) {
		t.Fatalf("stale token should be dead, got %v", err)
	}
}

func TestQuote_SlowResponseOvertakenIsDiscarded(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	// While the first pricing call is in flight, the guest edits the
	// request. The late response must never be stored.
	overtook := false
	s.pricing.beforeReply = func() {
		if !overtook {
			overtook = true
			s.quotes.Invalidate(ctx, "guest-1")
		}
	}

	_, err := s.quotes.Quote(ctx, "guest-1", s.params(2))
	if !errors.Is(err, domain.ErrQuoteSuperseded) {
		t.Fatalf("want ErrQuoteSuperseded, got %v", err)
	}
}

func TestQuote_AuthorityEchoMismatchRejected(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	s.pricing.echo = func(p domain.QuoteParams) domain.QuoteParams {
		p.Guests++
		return p
	}
	if _, err := s.quotes.Quote(ctx, "guest-1", s.params(2)); !errors.Is(err, domain.ErrQuoteMismatch) {
		t.Fatalf("want ErrQuoteMismatch, got %v", err)
	}
}

func TestQuote_ExpiresWithClock(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	q, err := s.quotes.Quote(ctx, "guest-1", s.params(2))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	s.clock.Advance(11 * time.Minute) // past the 10-minute quote TTL
	if _, err := s.quotes.Lookup(ctx, q.Token); !errors.Is(err, domain.ErrQuoteExpired) {
		t.Fatalf("want ErrQuoteExpired, got %v", err)
	}
}

func TestQuote_RejectsBadCoupon(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	s.pricing.couponErr = errors.New("rejected")
	params := s.params(2)
	params.CouponCode = "NOPE"
	if _, err := s.quotes.Quote(ctx, "guest-1", params); domain.AsValidationError(err) == nil {
		t.Fatalf("want ValidationError for coupon, got %v", err)
	}
}

func TestQuote_ValidatesParams(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		edit  func(*domain.QuoteParams)
		field string
	}{
		{"no property", func(p *domain.QuoteParams) { p.PropertyID = 0 }, "propertyId"},
		{"reversed dates", func(p *domain.QuoteParams) { p.CheckIn, p.CheckOut = p.CheckOut, p.CheckIn }, "checkOut"},
		{"zero guests", func(p *domain.QuoteParams) { p.Guests = 0 }, "guests"},
		{"too many guests", func(p *domain.QuoteParams) { p.Guests = 99 }, "guests"},
		{"extension out of range", func(p *domain.QuoteParams) { p.HourlyExtension = 13 }, "hourlyExtension"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := s.params(2)
			tc.edit(&params)
			_, err := s.quotes.Quote(ctx, "guest-1", params)
			ve := domain.AsValidationError(err)
			if ve == nil {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if _, ok := ve.Fields[tc.field]; !ok {
				t.Fatalf("missing %q complaint: %v", tc.field, ve.Fields)
			}
		})
	}
}
