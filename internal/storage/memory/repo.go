package memory

import (
	"context"
	"sort"
	"sync"

	"stayhold/internal/domain"
)

// Repo is an in-memory CalendarRepository + BookingRepository used by tests
// and local runs.
type Repo struct {
	mu       sync.Mutex
	days     map[int64]map[domain.Date]domain.AvailabilityRecord
	bookings map[string]domain.Booking

	// FailUpdates makes the next UpdateStatuses calls return err, for
	// exercising persistence-failure paths.
	FailUpdates error
	// FailCreate makes CreateBooking fail, for exercising the post-payment
	// stuck path.
	FailCreate error
}

func NewRepo() *Repo {
	return &Repo{
		days:     make(map[int64]map[domain.Date]domain.AvailabilityRecord),
		bookings: make(map[string]domain.Booking),
	}
}

func (r *Repo) UpsertRecords(_ context.Context, propertyID int64, dates []domain.Date, status domain.DateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cal := r.days[propertyID]
	if cal == nil {
		cal = make(map[domain.Date]domain.AvailabilityRecord)
		r.days[propertyID] = cal
	}
	for _, d := range dates {
		if cur, ok := cal[d]; ok && (cur.Status == domain.StatusBlocked || cur.Status == domain.StatusBooked) {
			continue // never clobber a hold or a booking
		}
		cal[d] = domain.AvailabilityRecord{PropertyID: propertyID, Date: d, Status: status}
	}
	return nil
}

func (r *Repo) UpdateStatuses(_ context.Context, propertyID int64, dates []domain.Date, status domain.DateStatus, holderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdates != nil {
		return r.FailUpdates
	}
	cal := r.days[propertyID]
	for _, d := range dates {
		if _, ok := cal[d]; !ok {
			return domain.ErrNotFound
		}
	}
	for _, d := range dates {
		rec := cal[d]
		rec.Status = status
		rec.HolderID = holderID
		cal[d] = rec
	}
	return nil
}

func (r *Repo) LoadCalendar(_ context.Context, propertyID int64, from domain.Date, days int) ([]domain.AvailabilityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AvailabilityRecord
	end := from.AddDays(days)
	for d, rec := range r.days[propertyID] {
		if !d.Before(from) && d.Before(end) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *Repo) CreateBooking(_ context.Context, b domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	r.bookings[b.ID] = b
	return nil
}

func (r *Repo) GetBooking(_ context.Context, id string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

// Status returns the current record for one day, for assertions.
func (r *Repo) Status(propertyID int64, d domain.Date) (domain.AvailabilityRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.days[propertyID][d]
	return rec, ok
}
