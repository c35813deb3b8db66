package domain

import "time"

type LockState string

const (
	LockActive    LockState = "active"
	LockConfirmed LockState = "confirmed" // terminal: dates are booked
	LockReleased  LockState = "released"
	LockExpired   LockState = "expired"
)

// TTL checkpoints. Extension never shortens an existing expiry.
const (
	DefaultLockTTL = 15 * time.Minute // from acquisition
	PaymentLockTTL = 20 * time.Minute // payment UI open: headroom for the gateway
	GraceLockTTL   = 30 * time.Minute // paid but unpersisted: manual-resolution window
)

// ReservationLock is a time-boxed exclusive hold over a contiguous run of
// dates. Expiry is authoritative on the manager holding the lock; clients
// only mirror ExpiresAt.
type ReservationLock struct {
	ID         string    `json:"id"`
	PropertyID int64     `json:"propertyId"`
	Dates      []Date    `json:"dates"` // contiguous, chronological
	HolderID   string    `json:"holderId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	State      LockState `json:"state"`
}

// Terminal reports whether the lock can no longer change state.
func (l ReservationLock) Terminal() bool {
	return l.State == LockConfirmed || l.State == LockReleased || l.State == LockExpired
}
