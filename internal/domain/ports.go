package domain

import (
	"context"
	"time"
)

type CalendarRepository interface {
	// Write paths
	UpsertRecords(ctx context.Context, propertyID int64, dates []Date, status DateStatus) error
	UpdateStatuses(ctx context.Context, propertyID int64, dates []Date, status DateStatus, holderID string) error

	// Read paths
	LoadCalendar(ctx context.Context, propertyID int64, from Date, days int) ([]AvailabilityRecord, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, b Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
}

// PricingAuthority is the external service that computes prices and mints
// quote tokens. Opaque to this subsystem beyond these two calls.
type PricingAuthority interface {
	QuotePricing(ctx context.Context, params QuoteParams) (PricingQuote, error)
	ValidateCoupon(ctx context.Context, code string, params QuoteParams) (CouponDiscount, error)
}

// PaymentGateway is the opaque capture step. Capture is never retried by
// callers; Reference carries the idempotency key.
type PaymentGateway interface {
	Capture(ctx context.Context, req CaptureRequest) (PaymentProof, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Clock abstracts wall time so expiry logic is testable without real sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
