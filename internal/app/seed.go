package app

import (
	"context"
	"fmt"

	"stayhold/internal/domain"
)

// SeedService is the host-side calendar management entry point: it opens
// date ranges for booking and marks maintenance windows. Records it creates
// are the only days guests can ever book; everything else defaults to not
// bookable.
type SeedService struct {
	repo  domain.CalendarRepository
	cache domain.Cache
	clock domain.Clock
}

func NewSeedService(repo domain.CalendarRepository, cache domain.Cache, clock domain.Clock) *SeedService {
	return &SeedService{repo: repo, cache: cache, clock: clock}
}

// OpenRange creates available records for [from, to] inclusive.
func (s *SeedService) OpenRange(ctx context.Context, propertyID int64, from, to domain.Date) (int, error) {
	return s.upsertRange(ctx, propertyID, from, to, domain.StatusAvailable)
}

// MarkMaintenance takes [from, to] inclusive out of service.
func (s *SeedService) MarkMaintenance(ctx context.Context, propertyID int64, from, to domain.Date) (int, error) {
	return s.upsertRange(ctx, propertyID, from, to, domain.StatusMaintenance)
}

func (s *SeedService) upsertRange(ctx context.Context, propertyID int64, from, to domain.Date, status domain.DateStatus) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("property %d: range end %s before start %s", propertyID, to, from)
	}
	dates := domain.Nights(from, to.AddDays(1)) // inclusive end
	if err := s.repo.UpsertRecords(ctx, propertyID, dates, status); err != nil {
		return 0, fmt.Errorf("upsert %s range for property %d: %w", status, propertyID, err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, snapshotKey(propertyID, domain.DateOf(s.clock.Now()), minWindowDays))
	}
	return len(dates), nil
}
