package core

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used in storage and JSON.
const DateLayout = "2006-01-02"

// Date is a calendar date at midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day. Out of range values are
// normalised by time.Date; use DueDate when the day must stay inside the month.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s)}
	}
	return Date{Time: t}, nil
}

// Day returns the day of the month
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year
func (d Date) Year() int { return d.Time.Year() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// InMonth reports whether d falls inside (year, month).
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && d.Month() == month
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LastDayOfMonth returns the number of days in the month.
func LastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDueDay returns min(max(1, day), LastDayOfMonth(year, month)).
func ClampDueDay(year, month, day int) int {
	if day < 1 {
		day = 1
	}
	if last := LastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}

// DueDate builds the due date of a template day in the given month.
func DueDate(year, month, day int) Date {
	return NewDate(year, month, ClampDueDay(year, month, day))
}

// AddMonthsToDate moves d forward by n months keeping the day of month,
// clamped to the last day of the target month (Jan 31 + 1 -> Feb 28).
func AddMonthsToDate(d Date, n int) Date {
	total := d.Year()*12 + (d.Month() - 1) + n
	year, month := total/12, total%12+1
	return DueDate(year, month, d.Day())
}

// MonthsBetween counts calendar months from a's month to b's month.
func MonthsBetween(a, b Date) int {
	return (b.Year()-a.Year())*12 + (b.Month() - a.Month())
}

// ValidateYearMonth checks the month coordinates used by every month scoped operation.
func ValidateYearMonth(year, month int) error {
	if year < 1970 || year > 9999 {
		return &ValidationError{Field: "year", Message: fmt.Sprintf("invalid year %d", year)}
	}
	if month < 1 || month > 12 {
		return &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %d: must be between 1 and 12", month)}
	}
	return nil
}

// CompareYearMonth orders (y1, m1) against (y2, m2): -1, 0 or 1.
func CompareYearMonth(y1, m1, y2, m2 int) int {
	a, b := y1*12+m1, y2*12+m2
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var errZeroDate = errors.New("date cannot be zero")

// Validate rejects the zero date.
func (d Date) Validate() error {
	if d.IsZero() {
		return errZeroDate
	}
	return nil
}
