package domain

import "time"

type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Booking is the persisted record of a confirmed stay. Created exactly once,
// by the commit coordinator, after payment capture and lock confirmation.
type Booking struct {
	ID         string      `json:"id"`
	PropertyID int64       `json:"propertyId"`
	HolderID   string      `json:"holderId"`
	CheckIn    Date        `json:"checkIn"`
	CheckOut   Date        `json:"checkOut"`
	Guests     int         `json:"guests"`
	Contact    ContactInfo `json:"contact"`
	PaymentRef string      `json:"paymentRef"`
	TotalCents int64       `json:"totalCents"`
	Currency   string      `json:"currency"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// PaymentProof is the gateway's evidence of a successful capture.
type PaymentProof struct {
	PaymentID  string    `json:"paymentId"`
	CapturedAt time.Time `json:"capturedAt"`
}

// CaptureRequest is the opaque capture step's input. Reference doubles as the
// idempotency key at the gateway.
type CaptureRequest struct {
	QuoteToken  string `json:"quoteToken"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	HolderID    string `json:"holderId"`
	Reference   string `json:"reference"`
}
