//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"stayhold/internal/domain"
	mysqlrepo "stayhold/internal/storage/mysql"
)

// ---------- small helpers ----------

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func day(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ---------- the test ----------

func TestRepo_MySQL_CalendarAndBookings(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=stayhold",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "stayhold")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// Arrange — open five days
	const property = int64(9001)
	open := []domain.Date{
		day("2026-01-01"), day("2026-01-02"), day("2026-01-03"),
		day("2026-01-04"), day("2026-01-05"),
	}
	if err := repo.UpsertRecords(ctx, property, open, domain.StatusAvailable); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}

	recs, err := repo.LoadCalendar(ctx, property, day("2026-01-01"), 10)
	if err != nil {
		t.Fatalf("LoadCalendar: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recs))
	}
	if recs[0].Date != day("2026-01-01") || recs[0].Status != domain.StatusAvailable {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}

	// Block two days atomically.
	blocked := open[:2]
	if err := repo.UpdateStatuses(ctx, property, blocked, domain.StatusBlocked, "guest-7"); err != nil {
		t.Fatalf("UpdateStatuses: %v", err)
	}
	recs, _ = repo.LoadCalendar(ctx, property, day("2026-01-01"), 2)
	for _, r := range recs {
		if r.Status != domain.StatusBlocked || r.HolderID != "guest-7" {
			t.Fatalf("expected blocked by guest-7, got %+v", r)
		}
	}

	// A set containing an unopened day must fail entirely.
	err = repo.UpdateStatuses(ctx, property, []domain.Date{day("2026-01-05"), day("2026-01-09")}, domain.StatusBlocked, "guest-8")
	if err == nil || !strings.Contains(err.Error(), "missing from calendar") {
		t.Fatalf("expected missing-day failure, got %v", err)
	}
	recs, _ = repo.LoadCalendar(ctx, property, day("2026-01-05"), 1)
	if len(recs) != 1 || recs[0].Status != domain.StatusAvailable {
		t.Fatalf("partial effect leaked: %+v", recs)
	}

	// Re-seeding must not clobber the hold.
	if err := repo.UpsertRecords(ctx, property, open, domain.StatusAvailable); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	recs, _ = repo.LoadCalendar(ctx, property, day("2026-01-01"), 1)
	if recs[0].Status != domain.StatusBlocked {
		t.Fatalf("re-seed clobbered a hold: %+v", recs[0])
	}

	// Bookings round-trip.
	b := domain.Booking{
		ID:         "00000000-0000-0000-0000-000000000001",
		PropertyID: property,
		HolderID:   "guest-7",
		CheckIn:    day("2026-01-01"),
		CheckOut:   day("2026-01-03"),
		Guests:     2,
		Contact:    domain.ContactInfo{Name: "Ana", Email: "ana@example.com"},
		PaymentRef: "pay_abc",
		TotalCents: 42000,
		Currency:   "EUR",
		CreatedAt:  time.Now(),
	}
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	got, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.CheckIn != b.CheckIn || got.TotalCents != b.TotalCents || got.Contact.Email != b.Contact.Email {
		t.Fatalf("booking round trip: %+v", got)
	}
	if _, err := repo.GetBooking(ctx, "nope"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
