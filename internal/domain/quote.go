package domain

import "time"

// QuoteParams is the five-tuple a price is bound to. Any change to any field
// kills the previously issued token. The struct is comparable so binding
// checks are a plain ==.
type QuoteParams struct {
	PropertyID      int64  `json:"propertyId"`
	CheckIn         Date   `json:"checkIn"`
	CheckOut        Date   `json:"checkOut"`
	Guests          int    `json:"guests"`
	HourlyExtension int    `json:"hourlyExtension"` // extra hours past checkout, 0..12
	CouponCode      string `json:"couponCode,omitempty"`
}

// PriceBreakdown is the itemized price in minor currency units.
type PriceBreakdown struct {
	Currency     string `json:"currency"`
	NightlyCents int64  `json:"nightlyCents"`
	Nights       int    `json:"nights"`
	Subtotal     int64  `json:"subtotalCents"`
	CleaningFee  int64  `json:"cleaningFeeCents"`
	ServiceFee   int64  `json:"serviceFeeCents"`
	ExtensionFee int64  `json:"extensionFeeCents"`
	Discount     int64  `json:"discountCents"`
	Total        int64  `json:"totalCents"`
}

// PricingQuote binds a computed breakdown to the exact params it answers.
// Token is an opaque credential minted by the pricing authority; it is
// single-use and dies the instant any param drifts.
type PricingQuote struct {
	Params    QuoteParams    `json:"params"`
	Breakdown PriceBreakdown `json:"breakdown"`
	Token     string         `json:"token"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// CouponDiscount is the pricing authority's answer to a coupon check.
type CouponDiscount struct {
	Code        string  `json:"code"`
	AmountCents int64   `json:"amountCents,omitempty"`
	Percent     float64 `json:"percent,omitempty"`
}
