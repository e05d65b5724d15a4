package core

import "github.com/shopspring/decimal"

// Planning figures smooth every month to the same length.
var (
	planningDaysPerMonth  = decimal.RequireFromString("30.4")
	planningWeeksPerMonth = decimal.RequireFromString("4.33")
)

// SummaryOptions selects the month and the filter of a summary.
type SummaryOptions struct {
	Year           int
	Month          int
	EssentialsOnly bool
	Today          Date
}

// MonthSummary aggregates the instances of one month.
type MonthSummary struct {
	Year           int  `json:"year"`
	Month          int  `json:"month"`
	EssentialsOnly bool `json:"essentials_only"`
	DaysInMonth    int  `json:"days_in_month"`

	Required  Money `json:"required"`
	Paid      Money `json:"paid"`
	Remaining Money `json:"remaining"`

	NeedDailyExact     Money `json:"need_daily_exact"`
	NeedWeeklyExact    Money `json:"need_weekly_exact"`
	NeedDailyPlanning  Money `json:"need_daily_planning"`
	NeedWeeklyPlanning Money `json:"need_weekly_planning"`

	ItemCount    int  `json:"item_count"`
	PaidCount    int  `json:"paid_count"`
	PartialCount int  `json:"partial_count"`
	PendingCount int  `json:"pending_count"`
	SkippedCount int  `json:"skipped_count"`
	OverdueCount int  `json:"overdue_count"`
	FreeForMonth bool `json:"free_for_month"`
}

// ComputeSummary aggregates instances whose derived fields are already set.
//
// Paid is the sum of min(amount, amount_paid): an overpaid bill counts as
// covered but never inflates the total beyond what was due. Skipped items are
// excluded from every figure except SkippedCount.
func ComputeSummary(instances []Instance, opts SummaryOptions) MonthSummary {
	s := MonthSummary{
		Year:           opts.Year,
		Month:          opts.Month,
		EssentialsOnly: opts.EssentialsOnly,
		DaysInMonth:    LastDayOfMonth(opts.Year, opts.Month),
	}
	currentMonth := !opts.Today.IsZero() && opts.Today.InMonth(opts.Year, opts.Month)

	for _, inst := range instances {
		if opts.EssentialsOnly && !inst.Essential {
			continue
		}
		if inst.StatusDerived == StatusSkipped {
			s.SkippedCount++
			continue
		}
		s.ItemCount++
		s.Required = s.Required.Add(inst.Amount)
		s.Paid = s.Paid.Add(inst.Amount.Min(inst.AmountPaid))
		s.Remaining = s.Remaining.Add(inst.AmountRemaining)

		switch inst.StatusDerived {
		case StatusPaid:
			s.PaidCount++
		case StatusPartial:
			s.PartialCount++
		default:
			s.PendingCount++
		}
		if currentMonth && inst.IsOverdue(opts.Today) {
			s.OverdueCount++
		}
	}

	required := s.Required.Decimal()
	daily := required.Div(decimal.NewFromInt(int64(s.DaysInMonth)))
	s.NeedDailyExact = MoneyFromDecimal(daily)
	s.NeedWeeklyExact = MoneyFromDecimal(daily.Mul(decimal.NewFromInt(7)))
	s.NeedDailyPlanning = MoneyFromDecimal(required.Div(planningDaysPerMonth))
	s.NeedWeeklyPlanning = MoneyFromDecimal(required.Div(planningWeeksPerMonth))

	s.FreeForMonth = s.Required.Cents > 0 && s.Remaining.Cents == 0 && s.OverdueCount == 0
	return s
}
