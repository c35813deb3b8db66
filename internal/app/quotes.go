package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"stayhold/internal/adapters/observability"
	"stayhold/internal/domain"
)

// QuoteService computes price quotes and polices the token binding: a token
// answers exactly one five-tuple of parameters and dies the instant any of
// them changes. Responses are applied only when they still answer the live
// parameter snapshot for the holder; anything out of order is discarded.
type QuoteService struct {
	pricing   domain.PricingAuthority
	cache     domain.Cache
	clock     domain.Clock
	maxGuests int

	mu  sync.Mutex
	seq map[string]uint64 // holder -> live parameter-snapshot sequence
}

func NewQuoteService(pricing domain.PricingAuthority, cache domain.Cache, clock domain.Clock, maxGuests int) *QuoteService {
	if maxGuests <= 0 {
		maxGuests = 16
	}
	return &QuoteService{pricing: pricing, cache: cache, clock: clock, maxGuests: maxGuests, seq: make(map[string]uint64)}
}

type storedQuote struct {
	HolderID string              `json:"holderId"`
	Quote    domain.PricingQuote `json:"quote"`
}

// Quote validates params, asks the pricing authority, and binds the returned
// token to the exact params. Each call supersedes the holder's previous
// parameter snapshot; a response arriving after a newer snapshot was taken is
// discarded with ErrQuoteSuperseded.
func (s *QuoteService) Quote(ctx context.Context, holderID string, params domain.QuoteParams) (domain.PricingQuote, error) {
	if err := s.validate(params); err != nil {
		return domain.PricingQuote{}, err
	}
	if params.CouponCode != "" {
		if _, err := s.pricing.ValidateCoupon(ctx, params.CouponCode, params); err != nil {
			ve := domain.NewValidationError()
			ve.Add("couponCode", "coupon not valid for this request")
			return domain.PricingQuote{}, fmt.Errorf("%w: %s", ve, err)
		}
	}

	// New params supersede whatever quote was previously live.
	mySeq := s.bump(holderID)
	s.dropStored(ctx, holderID)

	q, err := s.pricing.QuotePricing(ctx, params)
	if err != nil {
		return domain.PricingQuote{}, fmt.Errorf("pricing authority: %w", err)
	}
	if q.Params != params {
		// Authority echoed different params; never bind a price to inputs
		// the user did not ask for.
		return domain.PricingQuote{}, domain.ErrQuoteMismatch
	}

	if s.current(holderID) != mySeq {
		observability.ObserveQuote("superseded")
		return domain.PricingQuote{}, domain.ErrQuoteSuperseded
	}

	ttl := q.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return domain.PricingQuote{}, domain.ErrQuoteExpired
	}
	rec := storedQuote{HolderID: holderID, Quote: q}
	if err := s.cache.Set(ctx, tokenKey(q.Token), rec, ttl); err != nil {
		return domain.PricingQuote{}, fmt.Errorf("store quote: %w", err)
	}
	_ = s.cache.Set(ctx, holderKey(holderID), tokenKey(q.Token), ttl)
	observability.ObserveQuote("issued")
	return q, nil
}

// Invalidate kills the holder's live quote immediately, before any
// replacement arrives. Called the instant any of the five inputs changes.
func (s *QuoteService) Invalidate(ctx context.Context, holderID string) {
	s.bump(holderID)
	s.dropStored(ctx, holderID)
	observability.ObserveQuote("invalidated")
}

// Lookup returns the unexpired quote bound to token without consuming it.
func (s *QuoteService) Lookup(ctx context.Context, token string) (domain.PricingQuote, error) {
	var rec storedQuote
	ok, err := s.cache.Get(ctx, tokenKey(token), &rec)
	if err != nil {
		return domain.PricingQuote{}, fmt.Errorf("quote lookup: %w", err)
	}
	if !ok || s.clock.Now().After(rec.Quote.ExpiresAt) {
		return domain.PricingQuote{}, domain.ErrQuoteExpired
	}
	return rec.Quote, nil
}

// Redeem consumes the token for exactly one commit attempt. The token must
// exist, be unexpired, and be bound to precisely params; otherwise
// ErrQuoteExpired / ErrQuoteMismatch.
func (s *QuoteService) Redeem(ctx context.Context, token string, params domain.QuoteParams) (domain.PricingQuote, error) {
	var rec storedQuote
	ok, err := s.cache.Get(ctx, tokenKey(token), &rec)
	if err != nil {
		return domain.PricingQuote{}, fmt.Errorf("quote redeem: %w", err)
	}
	if !ok || s.clock.Now().After(rec.Quote.ExpiresAt) {
		observability.ObserveQuote("expired")
		return domain.PricingQuote{}, domain.ErrQuoteExpired
	}
	if rec.Quote.Params != params {
		observability.ObserveQuote("mismatch")
		return domain.PricingQuote{}, domain.ErrQuoteMismatch
	}
	_ = s.cache.Del(ctx, tokenKey(token))
	_ = s.cache.Del(ctx, holderKey(rec.HolderID))
	observability.ObserveQuote("redeemed")
	return rec.Quote, nil
}

func (s *QuoteService) validate(p domain.QuoteParams) error {
	ve := domain.NewValidationError()
	if p.PropertyID <= 0 {
		ve.Add("propertyId", "required")
	}
	if p.CheckIn.IsZero() || p.CheckOut.IsZero() {
		ve.Add("dates", "checkIn and checkOut are required")
	} else if !p.CheckIn.Before(p.CheckOut) {
		ve.Add("checkOut", "must be after checkIn")
	}
	if p.Guests < 1 || p.Guests > s.maxGuests {
		ve.Add("guests", fmt.Sprintf("must be between 1 and %d", s.maxGuests))
	}
	if p.HourlyExtension < 0 || p.HourlyExtension > 12 {
		ve.Add("hourlyExtension", "must be between 0 and 12 hours")
	}
	if ve.Empty() {
		return nil
	}
	return ve
}

func (s *QuoteService) bump(holderID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[holderID]++
	return s.seq[holderID]
}

func (s *QuoteService) current(holderID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[holderID]
}

func (s *QuoteService) dropStored(ctx context.Context, holderID string) {
	var tk string
	if ok, _ := s.cache.Get(ctx, holderKey(holderID), &tk); ok {
		_ = s.cache.Del(ctx, tk)
		_ = s.cache.Del(ctx, holderKey(holderID))
	}
}

func tokenKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return "quote:t:" + hex.EncodeToString(sum[:])
}

func holderKey(holderID string) string { return "quote:h:" + holderID }

// IsQuoteError reports whether err belongs to the quote taxonomy.
func IsQuoteError(err error) bool {
	return errors.Is(err, domain.ErrQuoteExpired) ||
		errors.Is(err, domain.ErrQuoteMismatch) ||
		errors.Is(err, domain.ErrQuoteSuperseded)
}
