package app_test

import (
	"context"
	"testing"

	"stayhold/internal/app"
	"stayhold/internal/domain"
)

func TestOpenRange_InclusiveBounds(t *testing.T) {
	s := newStack(t)
	seed := app.NewSeedService(s.repo, s.cache, s.clock)

	from := s.today.AddDays(200)
	to := from.AddDays(6)
	n, err := seed.OpenRange(context.Background(), testProperty, from, to)
	if err != nil {
		t.Fatalf("open range: %v", err)
	}
	if n != 7 {
		t.Fatalf("opened %d days, want 7", n)
	}
	for _, d := range []domain.Date{from, to} {
		if rec := s.mustStatus(t, d); rec.Status != domain.StatusAvailable {
			t.Fatalf("day %s: %s", d, rec.Status)
		}
	}

	if _, err := seed.OpenRange(context.Background(), testProperty, to, from); err == nil {
		t.Fatal("reversed range must fail")
	}
}

func TestOpenRange_NeverClobbersHolds(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seed := app.NewSeedService(s.repo, s.cache, s.clock)

	if _, err := s.locks.Acquire(ctx, testProperty, domain.Nights(s.today, s.today.AddDays(2)), "g"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A host re-seeding their calendar must not wipe an active hold.
	if _, err := seed.OpenRange(ctx, testProperty, s.today, s.today.AddDays(9)); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if rec := s.mustStatus(t, s.today); rec.Status != domain.StatusBlocked {
		t.Fatalf("hold was clobbered: %s", rec.Status)
	}
}

func TestMarkMaintenance_TakesDaysOutOfService(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seed := app.NewSeedService(s.repo, s.cache, s.clock)

	from := s.today.AddDays(10)
	if _, err := seed.MarkMaintenance(ctx, testProperty, from, from.AddDays(1)); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if err := s.cal.Refresh(ctx, testProperty); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap, err := s.cal.Snapshot(ctx, testProperty, 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !app.DateBookable(snap, from.AddDays(2), "g") {
		t.Fatal("day after the window should stay bookable")
	}
	if app.DateBookable(snap, from, "g") {
		t.Fatal("maintenance day must not be bookable")
	}
}
