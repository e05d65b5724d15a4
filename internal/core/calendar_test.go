package core

import (
	"encoding/json"
	"testing"
)

func TestClampDueDayRange(t *testing.T) {
	for _, year := range []int{2023, 2024, 2100} {
		for month := 1; month <= 12; month++ {
			last := LastDayOfMonth(year, month)
			for day := 1; day <= 31; day++ {
				got := ClampDueDay(year, month, day)
				if got < 1 || got > last {
					t.Fatalf("ClampDueDay(%d, %d, %d) = %d, outside [1, %d]", year, month, day, got, last)
				}
				if day <= last && got != day {
					t.Fatalf("ClampDueDay(%d, %d, %d) = %d, want unchanged day", year, month, day, got)
				}
			}
		}
	}
}

func TestClampDueDayBounds(t *testing.T) {
	cases := []struct {
		year, month, day int
		want             int
	}{
		{2025, 2, 31, 28},
		{2024, 2, 31, 29},
		{2025, 4, 31, 30},
		{2025, 1, 0, 1},
		{2025, 1, -4, 1},
		{2025, 12, 31, 31},
	}
	for _, tc := range cases {
		if got := ClampDueDay(tc.year, tc.month, tc.day); got != tc.want {
			t.Errorf("ClampDueDay(%d, %d, %d) = %d, want %d", tc.year, tc.month, tc.day, got, tc.want)
		}
	}
}

func TestAddMonthsToDate(t *testing.T) {
	cases := []struct {
		from string
		n    int
		want string
	}{
		{"2025-01-31", 1, "2025-02-28"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2025-11-15", 3, "2026-02-15"},
		{"2025-05-31", 12, "2026-05-31"},
		{"2025-08-31", 1, "2025-09-30"},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.from)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.from, err)
		}
		if got := AddMonthsToDate(d, tc.n).String(); got != tc.want {
			t.Errorf("AddMonthsToDate(%s, %d) = %s, want %s", tc.from, tc.n, got, tc.want)
		}
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "2025-13-01", "2025-02-30", "15/02/2025"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) expected error", in)
		} else if !IsValidation(err) {
			t.Errorf("ParseDate(%q) error %v is not a validation error", in, err)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Due  Date `json:"due"`
		Zero Date `json:"zero"`
	}
	if err := json.Unmarshal([]byte(`{"due":"2025-02-28","zero":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Due.String() != "2025-02-28" || !payload.Zero.IsZero() {
		t.Fatalf("unexpected dates: %+v", payload)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"due":"2025-02-28","zero":null}` {
		t.Fatalf("marshal = %s", out)
	}
}

func TestValidateYearMonth(t *testing.T) {
	if err := ValidateYearMonth(2025, 2); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, tc := range [][2]int{{2025, 0}, {2025, 13}, {12, 1}} {
		if err := ValidateYearMonth(tc[0], tc[1]); err == nil {
			t.Errorf("ValidateYearMonth(%d, %d) expected error", tc[0], tc[1])
		}
	}
}
