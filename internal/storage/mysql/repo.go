package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stayhold/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func dayArgs(propertyID int64, dates []domain.Date) []any {
	args := make([]any, 0, len(dates)+1)
	args = append(args, propertyID)
	for _, d := range dates {
		args = append(args, d.String())
	}
	return args
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertRecords(ctx context.Context, propertyID int64, dates []domain.Date, status domain.DateStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, d := range dates {
		if _, err := tx.ExecContext(ctx, upsertRecordSQL, propertyID, d.String(), string(status)); err != nil {
			return fmt.Errorf("upsert %d/%s: %w", propertyID, d, err)
		}
	}
	return tx.Commit()
}

// UpdateStatuses applies one status to the whole date set, all or nothing.
// Rows are locked and counted first so a day the host never opened fails the
// entire transition instead of silently narrowing it.
func (r *Repo) UpdateStatuses(ctx context.Context, propertyID int64, dates []domain.Date, status domain.DateStatus, holderID string) error {
	if len(dates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := dayArgs(propertyID, dates)
	var n int
	q := fmt.Sprintf(lockRowsSQL, placeholders(len(dates)))
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return fmt.Errorf("lock rows: %w", err)
	}
	if n != len(dates) {
		return fmt.Errorf("property %d: %d of %d days missing from calendar", propertyID, len(dates)-n, len(dates))
	}

	q = fmt.Sprintf(updateStatusSQL, placeholders(len(dates)))
	upArgs := append([]any{string(status), valStr(holderID)}, args...)
	if _, err := tx.ExecContext(ctx, q, upArgs...); err != nil {
		return fmt.Errorf("update statuses: %w", err)
	}
	return tx.Commit()
}

func (r *Repo) LoadCalendar(ctx context.Context, propertyID int64, from domain.Date, days int) ([]domain.AvailabilityRecord, error) {
	end := from.AddDays(days)
	rows, err := r.db.QueryContext(ctx, loadCalendarSQL, propertyID, from.String(), end.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AvailabilityRecord
	for rows.Next() {
		var (
			day    time.Time
			status string
			holder sql.NullString
		)
		if err := rows.Scan(&day, &status, &holder); err != nil {
			return nil, err
		}
		out = append(out, domain.AvailabilityRecord{
			PropertyID: propertyID,
			Date:       domain.DateOf(day), // wall components only; no zone math
			Status:     domain.DateStatus(status),
			HolderID:   holder.String,
		})
	}
	return out, rows.Err()
}

func (r *Repo) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.db.ExecContext(ctx, insertBookingSQL,
		b.ID, b.PropertyID, b.HolderID,
		b.CheckIn.String(), b.CheckOut.String(), b.Guests,
		b.Contact.Name, b.Contact.Email, valStr(b.Contact.Phone),
		b.PaymentRef, b.TotalCents, b.Currency, b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	return nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	var b domain.Booking
	var in, out, created time.Time
	var phone sql.NullString
	err := r.db.QueryRowContext(ctx, getBookingSQL, id).Scan(
		&b.ID, &b.PropertyID, &b.HolderID, &in, &out, &b.Guests,
		&b.Contact.Name, &b.Contact.Email, &phone,
		&b.PaymentRef, &b.TotalCents, &b.Currency, &created,
	)
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	b.CheckIn = domain.DateOf(in)
	b.CheckOut = domain.DateOf(out)
	b.Contact.Phone = phone.String
	b.CreatedAt = created
	return b, nil
}
