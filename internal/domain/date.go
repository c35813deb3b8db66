package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date: a year/month/day triple with no time-of-day and no
// zone. Every boundary of this service exchanges dates in this form. A Date is
// always taken from a wall clock in the caller's own location, never from a
// UTC-midnight conversion, which lands on the previous day for callers east
// of UTC.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t on t's own wall clock.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses the 2006-01-02 form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// AddDays returns d shifted by n calendar days. Arithmetic runs at noon UTC
// so it can never straddle a day boundary.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n))
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// DaysUntil returns the number of calendar days from d to o (negative if o is
// earlier).
func (d Date) DaysUntil(o Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	b := time.Date(o.Year, o.Month, o.Day, 12, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Nights expands a [checkIn, checkOut) stay into its night list: every day
// the guest occupies the property, check-out day excluded. Returns nil when
// the range is empty or inverted.
func Nights(checkIn, checkOut Date) []Date {
	n := checkIn.DaysUntil(checkOut)
	if n <= 0 {
		return nil
	}
	out := make([]Date, n)
	for i := 0; i < n; i++ {
		out[i] = checkIn.AddDays(i)
	}
	return out
}

// Contiguous reports whether dates is a strictly chronological run of
// consecutive days.
func Contiguous(dates []Date) bool {
	for i := 1; i < len(dates); i++ {
		if dates[i-1].DaysUntil(dates[i]) != 1 {
			return false
		}
	}
	return true
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
