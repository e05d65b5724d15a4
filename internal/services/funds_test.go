package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bills/internal/core"
	"bills/internal/storage"
)

func (f fixture) fund(t *testing.T, fund core.SinkingFund) core.SinkingFundView {
	t.Helper()
	var v core.SinkingFundView
	f.tx(t, func(q *storage.Queries) error {
		var err error
		v, err = f.funds.CreateFundTx(context.Background(), q, fund)
		return err
	})
	return v
}

func TestAutoContributeSixMonthFund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedClock(2026, 10, 15))
	created := f.fund(t, core.SinkingFund{
		Name: "Car insurance", Target: money(120000), DueDate: date(t, "2027-04-15"),
		Cadence: core.Custom, CadenceMonths: 6, AutoContribute: true,
	})
	assert.Equal(t, int64(20000), created.MonthlyContrib.Cents)

	res, err := f.funds.AutoContributeForMonth(ctx, 2026, 10)
	require.NoError(t, err)
	require.Len(t, res.Contributions, 1)
	assert.Equal(t, int64(20000), res.Contributions[0].Amount.Cents)
	assert.Equal(t, "2026-10-15", res.Contributions[0].EventDate.String())

	again, err := f.funds.AutoContributeForMonth(ctx, 2026, 10)
	require.NoError(t, err)
	assert.Empty(t, again.Contributions, "one contribution per month")

	// A month later the fund is where it should be.
	views, err := f.funds.FundViews(ctx, false, date(t, "2026-11-15"))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(20000), views[0].Balance.Cents)
	assert.Equal(t, int64(20000), views[0].ExpectedSaved.Cents)
	assert.Equal(t, core.FundOnTrack, views[0].Status)
}

func TestAutoContributeSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedClock(2026, 10, 15))
	f.fund(t, core.SinkingFund{Name: "Manual", Target: money(10000), DueDate: date(t, "2027-01-01"), Cadence: core.Yearly})
	f.fund(t, core.SinkingFund{Name: "Overdue", Target: money(10000), DueDate: date(t, "2026-10-01"), Cadence: core.Yearly, AutoContribute: true})
	funded := f.fund(t, core.SinkingFund{Name: "Funded", Target: money(10000), DueDate: date(t, "2027-01-01"), Cadence: core.Yearly, AutoContribute: true})
	f.tx(t, func(q *storage.Queries) error {
		_, err := f.funds.AddEventTx(ctx, q, funded.ID, core.Adjustment, money(10000), date(t, "2026-09-01"), "opening balance")
		return err
	})

	res, err := f.funds.AutoContributeForMonth(ctx, 2026, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Contributions)
	assert.Equal(t, 2, res.Skipped)
}

func TestAutoContributeStampsFirstOfOtherMonths(t *testing.T) {
	f := newFixture(t, fixedClock(2026, 10, 15))
	f.fund(t, core.SinkingFund{Name: "Gifts", Target: money(60000), DueDate: date(t, "2027-01-20"), Cadence: core.Yearly, AutoContribute: true})

	res, err := f.funds.AutoContributeForMonth(context.Background(), 2026, 11)
	require.NoError(t, err)
	require.Len(t, res.Contributions, 1)
	assert.Equal(t, "2026-11-01", res.Contributions[0].EventDate.String())
	// From Nov 1 to Jan 20 two months remain: 600 / 2.
	assert.Equal(t, int64(30000), res.Contributions[0].Amount.Cents)
}

func TestMarkFundPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedClock(2026, 1, 31))
	fund := f.fund(t, core.SinkingFund{Name: "Car tax", Target: money(24000), DueDate: date(t, "2026-01-31"), Cadence: core.Monthly})
	f.tx(t, func(q *storage.Queries) error {
		_, err := f.funds.AddEventTx(ctx, q, fund.ID, core.Contribution, money(24000), core.Date{}, "")
		return err
	})

	var res FundPaidResult
	f.tx(t, func(q *storage.Queries) error {
		var err error
		res, err = f.funds.MarkFundPaidTx(ctx, q, fund.ID, nil, core.Date{})
		return err
	})
	assert.Equal(t, int64(-24000), res.Withdrawal.Amount.Cents)
	assert.Equal(t, core.Withdrawal, res.Withdrawal.Kind)
	assert.Equal(t, "2026-01-31", res.PreviousDue.String())
	assert.Equal(t, "2026-02-28", res.Fund.DueDate.String())
	assert.Zero(t, res.Fund.Balance.Cents)

	partial := money(10000)
	f.tx(t, func(q *storage.Queries) error {
		var err error
		res, err = f.funds.MarkFundPaidTx(ctx, q, fund.ID, &partial, date(t, "2026-02-27"))
		return err
	})
	assert.Equal(t, int64(-10000), res.Fund.Balance.Cents, "balances may go negative")
	assert.Equal(t, "2026-03-28", res.Fund.DueDate.String())
}

func TestAddEventValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedClock(2026, 1, 1))
	fund := f.fund(t, core.SinkingFund{Name: "Vet", Target: money(50000), DueDate: date(t, "2026-06-01"), Cadence: core.Yearly})

	cases := []struct {
		kind   core.SinkingEventKind
		amount int64
	}{
		{core.Contribution, 0},
		{core.Withdrawal, -100},
		{core.Adjustment, 0},
		{"BONUS", 100},
	}
	for _, c := range cases {
		err := f.repo.InTx(ctx, func(q *storage.Queries) error {
			_, err := f.funds.AddEventTx(ctx, q, fund.ID, c.kind, money(c.amount), core.Date{}, "")
			return err
		})
		assert.True(t, core.IsValidation(err), "%s %d: %v", c.kind, c.amount, err)
	}

	err := f.repo.InTx(ctx, func(q *storage.Queries) error {
		_, err := f.funds.AddEventTx(ctx, q, 999, core.Contribution, money(100), core.Date{}, "")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateAndArchiveFund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedClock(2026, 1, 1))
	fund := f.fund(t, core.SinkingFund{Name: "Holiday", Target: money(100000), DueDate: date(t, "2026-07-01"), Cadence: core.Yearly})

	custom := core.Custom
	months := 6
	f.tx(t, func(q *storage.Queries) error {
		v, err := f.funds.UpdateFundTx(ctx, q, fund.ID, FundPatch{Cadence: &custom, CadenceMonths: &months})
		if err != nil {
			return err
		}
		assert.Equal(t, 6, v.PeriodMonths)
		return nil
	})

	bad := 0
	err := f.repo.InTx(ctx, func(q *storage.Queries) error {
		_, err := f.funds.UpdateFundTx(ctx, q, fund.ID, FundPatch{CadenceMonths: &bad})
		return err
	})
	assert.True(t, core.IsValidation(err))

	f.tx(t, func(q *storage.Queries) error {
		_, err := f.funds.SetFundArchivedTx(ctx, q, fund.ID, true)
		return err
	})
	active, err := f.funds.FundViews(ctx, false, core.Date{})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.funds.FundViews(ctx, true, core.Date{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
