package core

import "github.com/shopspring/decimal"

const (
	FundDue     = "due"
	FundReady   = "ready"
	FundBehind  = "behind"
	FundOnTrack = "on_track"
)

// behindTolerance absorbs cent rounding in the expected-saved comparison.
var behindTolerance = Money{Cents: 1}

// SinkingFundView is a fund with its balance and amortization figures.
type SinkingFundView struct {
	SinkingFund
	Balance         Money  `json:"balance"`
	Shortfall       Money  `json:"shortfall"`
	MonthsRemaining int    `json:"months_remaining"`
	MonthlyContrib  Money  `json:"monthly_contrib"`
	PeriodMonths    int    `json:"period_months"`
	ExpectedSaved   Money  `json:"expected_saved"`
	Status          string `json:"status"`
	ReferenceDate   Date   `json:"reference_date"`
}

// MonthsRemaining counts the months left to save before due, the reference
// month included. It is 0 once the due date has passed and at least 1 before.
func MonthsRemaining(due, reference Date) int {
	if due.Before(reference) {
		return 0
	}
	months := MonthsBetween(reference, due)
	if due.Day() < reference.Day() {
		months--
	}
	if months < 1 {
		months = 1
	}
	return months
}

// ComputeSinkingFundView derives the amortization schedule of a fund whose
// cadence lasts periodMonths. Nothing here is stored; it is recomputed every
// time a fund is viewed.
func ComputeSinkingFundView(fund SinkingFund, balance Money, reference Date, periodMonths int) SinkingFundView {
	if periodMonths < 1 {
		periodMonths = 1
	}
	v := SinkingFundView{
		SinkingFund:   fund,
		Balance:       balance,
		PeriodMonths:  periodMonths,
		ReferenceDate: reference,
	}
	shortfall := fund.Target.Sub(balance)
	if shortfall.Cents < 0 {
		shortfall = Money{}
	}
	v.Shortfall = shortfall
	v.MonthsRemaining = MonthsRemaining(fund.DueDate, reference)

	if v.MonthsRemaining == 0 {
		v.MonthlyContrib = shortfall
	} else {
		v.MonthlyContrib = MoneyFromDecimal(shortfall.Decimal().Div(decimal.NewFromInt(int64(v.MonthsRemaining))))
	}

	elapsed := v.PeriodMonths - v.MonthsRemaining
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > v.PeriodMonths {
		elapsed = v.PeriodMonths
	}
	expected := fund.Target.Decimal().
		Mul(decimal.NewFromInt(int64(elapsed))).
		Div(decimal.NewFromInt(int64(v.PeriodMonths)))
	v.ExpectedSaved = MoneyFromDecimal(expected)

	switch {
	case fund.DueDate.Before(reference):
		v.Status = FundDue
	case balance.Cents >= fund.Target.Cents:
		v.Status = FundReady
	case balance.Cents < v.ExpectedSaved.Sub(behindTolerance).Cents:
		v.Status = FundBehind
	default:
		v.Status = FundOnTrack
	}
	return v
}
