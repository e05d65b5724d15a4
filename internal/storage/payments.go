package storage

import (
	"context"
	"fmt"

	"bills/internal/core"
)

const paymentColumns = `id, instance_id, amount_cents, paid_date, note, created_at`

func scanPayment(row rowScanner) (core.PaymentEvent, error) {
	var (
		p        core.PaymentEvent
		paidDate string
	)
	if err := row.Scan(&p.ID, &p.InstanceID, &p.Amount.Cents, &paidDate, &p.Note, &p.CreatedAt); err != nil {
		return core.PaymentEvent{}, err
	}
	d, err := core.ParseDate(paidDate)
	if err != nil {
		return core.PaymentEvent{}, fmt.Errorf("payment %d paid_date: %w", p.ID, err)
	}
	p.PaidDate = d
	return p, nil
}

func (q *Queries) AddPayment(ctx context.Context, p core.PaymentEvent) (core.PaymentEvent, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO payment_events (instance_id, amount_cents, paid_date, note)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		p.InstanceID, p.Amount.Cents, p.PaidDate.String(), p.Note,
	).Scan(&id)
	if err != nil {
		return core.PaymentEvent{}, fmt.Errorf("insert payment for instance %d: %w", p.InstanceID, err)
	}
	return q.GetPayment(ctx, id)
}

func (q *Queries) GetPayment(ctx context.Context, id int64) (core.PaymentEvent, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_events WHERE id = ?`, id))
	if err != nil {
		return core.PaymentEvent{}, notFound("payment", id, err)
	}
	return p, nil
}

// LatestPayment returns the most recently recorded payment of an instance.
func (q *Queries) LatestPayment(ctx context.Context, instanceID int64) (core.PaymentEvent, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_events WHERE instance_id = ? ORDER BY id DESC LIMIT 1`, instanceID))
	if err != nil {
		return core.PaymentEvent{}, notFound("payment of instance", instanceID, err)
	}
	return p, nil
}

func (q *Queries) ListPayments(ctx context.Context, instanceID int64) ([]core.PaymentEvent, error) {
	return q.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payment_events WHERE instance_id = ? ORDER BY paid_date, id`, instanceID)
}

func (q *Queries) ListAllPayments(ctx context.Context) ([]core.PaymentEvent, error) {
	return q.listPayments(ctx, `SELECT `+paymentColumns+` FROM payment_events ORDER BY id`)
}

func (q *Queries) listPayments(ctx context.Context, query string, args ...any) ([]core.PaymentEvent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentEvent
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePayment(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payment_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment %d: %w", id, err)
	}
	return expectOne(res, "payment", id)
}

// DeletePayments removes every payment of an instance and returns how many
// rows went and their total.
func (q *Queries) DeletePayments(ctx context.Context, instanceID int64) (int64, core.Money, error) {
	var count, total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount_cents), 0) FROM payment_events WHERE instance_id = ?`, instanceID,
	).Scan(&count, &total)
	if err != nil {
		return 0, core.Money{}, fmt.Errorf("sum payments of instance %d: %w", instanceID, err)
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM payment_events WHERE instance_id = ?`, instanceID); err != nil {
		return 0, core.Money{}, fmt.Errorf("delete payments of instance %d: %w", instanceID, err)
	}
	return count, core.Money{Cents: total}, nil
}

// SumPayments totals payments per instance in one grouped query.
// Instances without payments are absent from the map.
func (q *Queries) SumPayments(ctx context.Context, instanceIDs []int64) (map[int64]core.Money, error) {
	out := make(map[int64]core.Money, len(instanceIDs))
	if len(instanceIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(instanceIDs))
	for i, id := range instanceIDs {
		args[i] = id
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT instance_id, SUM(amount_cents)
		FROM payment_events
		WHERE instance_id IN (`+placeholders(len(args))+`)
		GROUP BY instance_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			total int64
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan payment sum: %w", err)
		}
		out[id] = core.Money{Cents: total}
	}
	return out, rows.Err()
}
