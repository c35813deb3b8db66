package domain

// DateStatus is the single status held by a (property, date) pair. Exactly
// one status holds at any instant; that mutual exclusion is the core
// invariant of the calendar.
type DateStatus string

const (
	StatusAvailable          DateStatus = "available"
	StatusPartiallyAvailable DateStatus = "partially_available"
	StatusBlocked            DateStatus = "blocked"
	StatusBooked             DateStatus = "booked"
	StatusMaintenance        DateStatus = "maintenance"
	StatusUnavailable        DateStatus = "unavailable"

	// StatusNone reports a day the host never opened. It is never stored;
	// it only appears in conflict details. A day without a record is not
	// bookable.
	StatusNone DateStatus = "none"
)

// AvailabilityRecord is one calendar day of one property. HolderID is set
// only while Status is blocked and names the user owning the hold.
type AvailabilityRecord struct {
	PropertyID int64      `json:"propertyId"`
	Date       Date       `json:"date"`
	Status     DateStatus `json:"status"`
	HolderID   string     `json:"holderId,omitempty"`
}

// Snapshot is a chronological view of one property's calendar over a rolling
// horizon. Days the host never opened are absent.
type Snapshot struct {
	PropertyID int64                `json:"propertyId"`
	From       Date                 `json:"from"`
	WindowDays int                  `json:"windowDays"`
	Records    []AvailabilityRecord `json:"records"`
}

// Lookup returns the record for d, if the host opened that day.
func (s Snapshot) Lookup(d Date) (AvailabilityRecord, bool) {
	for _, r := range s.Records {
		if r.Date == d {
			return r, true
		}
	}
	return AvailabilityRecord{}, false
}
