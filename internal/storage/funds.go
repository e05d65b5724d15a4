package storage

import (
	"context"
	"fmt"

	"bills/internal/core"
)

const fundColumns = `id, name, category, target_cents, due_date, cadence, cadence_months, auto_contribute, active, note, created_at, updated_at`

func scanFund(row rowScanner) (core.SinkingFund, error) {
	var (
		f       core.SinkingFund
		dueDate string
	)
	err := row.Scan(&f.ID, &f.Name, &f.Category, &f.Target.Cents, &dueDate, &f.Cadence, &f.CadenceMonths,
		&f.AutoContribute, &f.Active, &f.Note, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return core.SinkingFund{}, err
	}
	if f.DueDate, err = core.ParseDate(dueDate); err != nil {
		return core.SinkingFund{}, fmt.Errorf("fund %d due_date: %w", f.ID, err)
	}
	return f, nil
}

func (q *Queries) CreateFund(ctx context.Context, f core.SinkingFund) (core.SinkingFund, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO sinking_funds (name, category, target_cents, due_date, cadence, cadence_months, auto_contribute, active, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		f.Name, f.Category, f.Target.Cents, f.DueDate.String(), string(f.Cadence), f.CadenceMonths,
		f.AutoContribute, f.Active, f.Note,
	).Scan(&id)
	if err != nil {
		return core.SinkingFund{}, fmt.Errorf("insert fund: %w", err)
	}
	return q.GetFund(ctx, id)
}

func (q *Queries) GetFund(ctx context.Context, id int64) (core.SinkingFund, error) {
	f, err := scanFund(q.db.QueryRowContext(ctx, `SELECT `+fundColumns+` FROM sinking_funds WHERE id = ?`, id))
	if err != nil {
		return core.SinkingFund{}, notFound("fund", id, err)
	}
	return f, nil
}

func (q *Queries) ListFunds(ctx context.Context, includeArchived bool) ([]core.SinkingFund, error) {
	query := `SELECT ` + fundColumns + ` FROM sinking_funds`
	if !includeArchived {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY due_date, name, id`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var out []core.SinkingFund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateFund(ctx context.Context, f core.SinkingFund) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sinking_funds
		SET name = ?, category = ?, target_cents = ?, due_date = ?, cadence = ?, cadence_months = ?,
		    auto_contribute = ?, active = ?, note = ?, updated_at = `+sqlNow+`
		WHERE id = ?`,
		f.Name, f.Category, f.Target.Cents, f.DueDate.String(), string(f.Cadence), f.CadenceMonths,
		f.AutoContribute, f.Active, f.Note, f.ID)
	if err != nil {
		return fmt.Errorf("update fund %d: %w", f.ID, err)
	}
	return expectOne(res, "fund", f.ID)
}

const sinkingEventColumns = `id, fund_id, kind, amount_cents, event_date, note, created_at`

func scanSinkingEvent(row rowScanner) (core.SinkingEvent, error) {
	var (
		e         core.SinkingEvent
		eventDate string
	)
	if err := row.Scan(&e.ID, &e.FundID, &e.Kind, &e.Amount.Cents, &eventDate, &e.Note, &e.CreatedAt); err != nil {
		return core.SinkingEvent{}, err
	}
	d, err := core.ParseDate(eventDate)
	if err != nil {
		return core.SinkingEvent{}, fmt.Errorf("sinking event %d event_date: %w", e.ID, err)
	}
	e.EventDate = d
	return e, nil
}

// AddSinkingEvent stores e as given; the amount must already carry its sign.
func (q *Queries) AddSinkingEvent(ctx context.Context, e core.SinkingEvent) (core.SinkingEvent, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO sinking_events (fund_id, kind, amount_cents, event_date, note)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		e.FundID, string(e.Kind), e.Amount.Cents, e.EventDate.String(), e.Note,
	).Scan(&id)
	if err != nil {
		return core.SinkingEvent{}, fmt.Errorf("insert sinking event for fund %d: %w", e.FundID, err)
	}
	ev, err := scanSinkingEvent(q.db.QueryRowContext(ctx,
		`SELECT `+sinkingEventColumns+` FROM sinking_events WHERE id = ?`, id))
	if err != nil {
		return core.SinkingEvent{}, notFound("sinking event", id, err)
	}
	return ev, nil
}

func (q *Queries) ListSinkingEvents(ctx context.Context, fundID int64) ([]core.SinkingEvent, error) {
	return q.listSinkingEvents(ctx,
		`SELECT `+sinkingEventColumns+` FROM sinking_events WHERE fund_id = ? ORDER BY event_date, id`, fundID)
}

func (q *Queries) ListAllSinkingEvents(ctx context.Context) ([]core.SinkingEvent, error) {
	return q.listSinkingEvents(ctx, `SELECT `+sinkingEventColumns+` FROM sinking_events ORDER BY id`)
}

func (q *Queries) listSinkingEvents(ctx context.Context, query string, args ...any) ([]core.SinkingEvent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sinking events: %w", err)
	}
	defer rows.Close()

	var out []core.SinkingEvent
	for rows.Next() {
		e, err := scanSinkingEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sinking event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FundBalances sums the signed event log of every fund.
func (q *Queries) FundBalances(ctx context.Context) (map[int64]core.Money, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT fund_id, SUM(amount_cents) FROM sinking_events GROUP BY fund_id`)
	if err != nil {
		return nil, fmt.Errorf("sum fund balances: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]core.Money)
	for rows.Next() {
		var id, total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan fund balance: %w", err)
		}
		out[id] = core.Money{Cents: total}
	}
	return out, rows.Err()
}

func (q *Queries) FundBalance(ctx context.Context, fundID int64) (core.Money, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM sinking_events WHERE fund_id = ?`, fundID).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum balance of fund %d: %w", fundID, err)
	}
	return core.Money{Cents: total}, nil
}

// HasContributionInMonth reports whether the fund already got a CONTRIBUTION dated in (year, month).
func (q *Queries) HasContributionInMonth(ctx context.Context, fundID int64, year, month int) (bool, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sinking_events
		WHERE fund_id = ? AND kind = ? AND substr(event_date, 1, 8) = ?`,
		fundID, string(core.Contribution), prefix).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check contribution of fund %d: %w", fundID, err)
	}
	return n > 0, nil
}
