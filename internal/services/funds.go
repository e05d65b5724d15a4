package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bills/internal/core"
	"bills/internal/storage"
)

// Funds manages sinking funds and their signed event log.
type Funds struct {
	repo  *storage.SQLiteRepository
	clock Clock
}

func NewFunds(repo *storage.SQLiteRepository, clock Clock) *Funds {
	return &Funds{repo: repo, clock: clock}
}

// FundPatch lists the editable fields of a fund; nil means unchanged.
type FundPatch struct {
	Name           *string
	Category       *string
	Target         *core.Money
	DueDate        *core.Date
	Cadence        *core.Cadence
	CadenceMonths  *int
	AutoContribute *bool
	Note           *string
}

// FundPaidResult is the outcome of MarkFundPaidTx.
type FundPaidResult struct {
	Withdrawal  core.SinkingEvent    `json:"withdrawal"`
	PreviousDue core.Date            `json:"previous_due_date"`
	Fund        core.SinkingFundView `json:"fund"`
}

// ContributionResult is the outcome of AutoContributeForMonthTx.
type ContributionResult struct {
	Year          int                 `json:"year"`
	Month         int                 `json:"month"`
	Contributions []core.SinkingEvent `json:"contributions"`
	Skipped       int                 `json:"skipped"`
}

// View computes the amortization view of a fund through the cadence registry.
func View(fund core.SinkingFund, balance core.Money, reference core.Date) (core.SinkingFundView, error) {
	strategy, err := GetCadenceStrategy(fund.Cadence)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	return core.ComputeSinkingFundView(fund, balance, reference, strategy.PeriodMonths(fund)), nil
}

func normaliseFund(f core.SinkingFund) core.SinkingFund {
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	if f.Cadence != core.Custom {
		f.CadenceMonths = 0
	}
	return f
}

// FundViews lists funds with their balances and derived views as of reference.
func (s *Funds) FundViews(ctx context.Context, includeArchived bool, reference core.Date) ([]core.SinkingFundView, error) {
	if reference.IsZero() {
		reference = s.clock.Today()
	}
	q := s.repo.Queries()
	funds, err := q.ListFunds(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	balances, err := q.FundBalances(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]core.SinkingFundView, 0, len(funds))
	for _, f := range funds {
		v, err := View(f, balances[f.ID], reference)
		if err != nil {
			return nil, fmt.Errorf("fund %d: %w", f.ID, err)
		}
		views = append(views, v)
	}
	return views, nil
}

// FundViewTx returns the current view of one fund.
func (s *Funds) FundViewTx(ctx context.Context, q *storage.Queries, id int64) (core.SinkingFundView, error) {
	f, err := q.GetFund(ctx, id)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	balance, err := q.FundBalance(ctx, id)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	return View(f, balance, s.clock.Today())
}

// Events returns the event log of a fund.
func (s *Funds) Events(ctx context.Context, id int64) ([]core.SinkingEvent, error) {
	q := s.repo.Queries()
	if _, err := q.GetFund(ctx, id); err != nil {
		return nil, err
	}
	events, err := q.ListSinkingEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []core.SinkingEvent{}
	}
	return events, nil
}

func (s *Funds) CreateFundTx(ctx context.Context, q *storage.Queries, f core.SinkingFund) (core.SinkingFundView, error) {
	f = normaliseFund(f)
	f.Active = true
	if err := f.Validate(); err != nil {
		return core.SinkingFundView{}, err
	}
	created, err := q.CreateFund(ctx, f)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	slog.InfoContext(ctx, "Sinking fund created",
		"fund_id", created.ID,
		"name", created.Name,
		"target_cents", created.Target.Cents,
		"due_date", created.DueDate.String())
	return View(created, core.Money{}, s.clock.Today())
}

func (s *Funds) UpdateFundTx(ctx context.Context, q *storage.Queries, id int64, patch FundPatch) (core.SinkingFundView, error) {
	f, err := q.GetFund(ctx, id)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Category != nil {
		f.Category = *patch.Category
	}
	if patch.Target != nil {
		f.Target = *patch.Target
	}
	if patch.DueDate != nil {
		f.DueDate = *patch.DueDate
	}
	if patch.Cadence != nil {
		f.Cadence = *patch.Cadence
	}
	if patch.CadenceMonths != nil {
		f.CadenceMonths = *patch.CadenceMonths
	}
	if patch.AutoContribute != nil {
		f.AutoContribute = *patch.AutoContribute
	}
	if patch.Note != nil {
		f.Note = *patch.Note
	}
	f = normaliseFund(f)
	if err := f.Validate(); err != nil {
		return core.SinkingFundView{}, err
	}
	if err := q.UpdateFund(ctx, f); err != nil {
		return core.SinkingFundView{}, err
	}
	return s.FundViewTx(ctx, q, id)
}

// SetFundArchivedTx archives (or restores) a fund; its events are kept.
func (s *Funds) SetFundArchivedTx(ctx context.Context, q *storage.Queries, id int64, archived bool) (core.SinkingFundView, error) {
	f, err := q.GetFund(ctx, id)
	if err != nil {
		return core.SinkingFundView{}, err
	}
	if f.Active == archived {
		f.Active = !archived
		if err := q.UpdateFund(ctx, f); err != nil {
			return core.SinkingFundView{}, err
		}
	}
	return s.FundViewTx(ctx, q, id)
}

// AddEventTx appends a fund event. Contributions and withdrawals take a
// positive amount and get their sign from the kind; adjustments keep the
// caller's sign and must not be zero.
func (s *Funds) AddEventTx(ctx context.Context, q *storage.Queries, fundID int64, kind core.SinkingEventKind, amount core.Money, date core.Date, note string) (core.SinkingEvent, error) {
	if !kind.Valid() {
		return core.SinkingEvent{}, core.Invalid("kind", "unknown sinking event kind %q", kind)
	}
	switch {
	case kind == core.Adjustment && amount.Cents == 0:
		return core.SinkingEvent{}, core.Invalid("amount", "adjustment must not be zero")
	case kind != core.Adjustment && amount.Cents <= 0:
		return core.SinkingEvent{}, core.Invalid("amount", "must be greater than zero")
	}
	if _, err := q.GetFund(ctx, fundID); err != nil {
		return core.SinkingEvent{}, err
	}
	if date.IsZero() {
		date = s.clock.Today()
	}
	return q.AddSinkingEvent(ctx, core.SinkingEvent{
		FundID:    fundID,
		Kind:      kind,
		Amount:    kind.SignedAmount(amount),
		EventDate: date,
		Note:      note,
	})
}

// MarkFundPaidTx records the bill the fund was saving for: a withdrawal of
// amount (the target when nil) and the due date rolled one cadence forward.
func (s *Funds) MarkFundPaidTx(ctx context.Context, q *storage.Queries, fundID int64, amount *core.Money, date core.Date) (FundPaidResult, error) {
	f, err := q.GetFund(ctx, fundID)
	if err != nil {
		return FundPaidResult{}, err
	}
	paid := f.Target
	if amount != nil {
		if err := amount.Validate(); err != nil {
			return FundPaidResult{}, core.Invalid("amount", "must be greater than zero")
		}
		paid = *amount
	}

	withdrawal, err := s.AddEventTx(ctx, q, fundID, core.Withdrawal, paid, date, "paid")
	if err != nil {
		return FundPaidResult{}, err
	}

	previous := f.DueDate
	next, err := NextDueDate(f)
	if err != nil {
		return FundPaidResult{}, err
	}
	f.DueDate = next
	if err := q.UpdateFund(ctx, f); err != nil {
		return FundPaidResult{}, err
	}
	view, err := s.FundViewTx(ctx, q, fundID)
	if err != nil {
		return FundPaidResult{}, err
	}

	slog.InfoContext(ctx, "Sinking fund paid",
		"fund_id", fundID,
		"amount_cents", paid.Cents,
		"previous_due", previous.String(),
		"next_due", next.String())
	return FundPaidResult{Withdrawal: withdrawal, PreviousDue: previous, Fund: view}, nil
}

// AutoContributeForMonth runs AutoContributeForMonthTx in its own transaction.
func (s *Funds) AutoContributeForMonth(ctx context.Context, year, month int) (ContributionResult, error) {
	var res ContributionResult
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		res, err = s.AutoContributeForMonthTx(ctx, q, year, month)
		return err
	})
	return res, err
}

// AutoContributeForMonthTx gives every active auto-contributing fund without a
// contribution in (year, month) one contribution sized at its monthly
// requirement. Funds that are due or already funded are skipped.
func (s *Funds) AutoContributeForMonthTx(ctx context.Context, q *storage.Queries, year, month int) (ContributionResult, error) {
	res := ContributionResult{Year: year, Month: month, Contributions: []core.SinkingEvent{}}
	if err := core.ValidateYearMonth(year, month); err != nil {
		return res, err
	}

	stamp := core.NewDate(year, month, 1)
	if today := s.clock.Today(); today.InMonth(year, month) {
		stamp = today
	}

	funds, err := q.ListFunds(ctx, false)
	if err != nil {
		return res, err
	}
	for _, f := range funds {
		if !f.AutoContribute {
			continue
		}
		done, err := q.HasContributionInMonth(ctx, f.ID, year, month)
		if err != nil {
			return res, err
		}
		if done {
			continue
		}
		balance, err := q.FundBalance(ctx, f.ID)
		if err != nil {
			return res, err
		}
		view, err := View(f, balance, stamp)
		if err != nil {
			return res, fmt.Errorf("fund %d: %w", f.ID, err)
		}
		if view.Status == core.FundDue || view.MonthlyContrib.Cents <= 0 {
			res.Skipped++
			continue
		}
		ev, err := q.AddSinkingEvent(ctx, core.SinkingEvent{
			FundID:    f.ID,
			Kind:      core.Contribution,
			Amount:    view.MonthlyContrib,
			EventDate: stamp,
			Note:      "auto",
		})
		if err != nil {
			return res, err
		}
		res.Contributions = append(res.Contributions, ev)
	}

	if len(res.Contributions) > 0 {
		slog.InfoContext(ctx, "Auto contributions recorded",
			"year", year,
			"month", month,
			"contributions", len(res.Contributions),
			"skipped", res.Skipped)
	}
	return res, nil
}
