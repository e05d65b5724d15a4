package services

import (
	"context"
	"fmt"
	"strings"

	"bills/internal/core"
	"bills/internal/storage"
)

// MarkPaidResult reports the payment written by MarkPaidTx, if any.
type MarkPaidResult struct {
	Instance    core.Instance      `json:"instance"`
	Payment     *core.PaymentEvent `json:"payment,omitempty"`
	AlreadyPaid bool               `json:"already_paid"`
}

// PaymentResult is returned by payment additions and removals.
type PaymentResult struct {
	Instance core.Instance     `json:"instance"`
	Payment  core.PaymentEvent `json:"payment"`
}

// InstancePatch lists the editable fields of an instance; nil means unchanged.
type InstancePatch struct {
	Name      *string
	Category  *string
	Amount    *core.Money
	DueDate   *core.Date
	Essential *bool
	Autopay   *bool
	Note      *string
}

func (l *Ledger) paymentDate(d core.Date) core.Date {
	if d.IsZero() {
		return l.clock.Today()
	}
	return d
}

// MarkPaidTx pays the remaining balance of an instance in one payment. An
// instance that is already covered gets no new payment.
func (l *Ledger) MarkPaidTx(ctx context.Context, q *storage.Queries, id int64, paidDate core.Date, note string) (MarkPaidResult, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return MarkPaidResult{}, err
	}
	if inst.Status == core.StatusSkipped {
		return MarkPaidResult{}, fmt.Errorf("instance %d is skipped: %w", id, core.ErrConflict)
	}
	if inst.StatusDerived == core.StatusPaid {
		if inst.Status != core.StatusPaid {
			if err := q.SetInstanceStatus(ctx, id, core.StatusPaid); err != nil {
				return MarkPaidResult{}, err
			}
			inst.Status = core.StatusPaid
		}
		return MarkPaidResult{Instance: inst, AlreadyPaid: true}, nil
	}
	if inst.AmountRemaining.Cents <= 0 {
		return MarkPaidResult{}, fmt.Errorf("instance %d has nothing to pay: %w", id, core.ErrConflict)
	}

	payment, err := q.AddPayment(ctx, core.PaymentEvent{
		InstanceID: id,
		Amount:     inst.AmountRemaining,
		PaidDate:   l.paymentDate(paidDate),
		Note:       note,
	})
	if err != nil {
		return MarkPaidResult{}, err
	}
	if err := q.SetInstanceStatus(ctx, id, core.StatusPaid); err != nil {
		return MarkPaidResult{}, err
	}
	detail := map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"paid_date":  payment.PaidDate,
		"status":     core.FieldChange{From: inst.StatusDerived, To: core.StatusPaid},
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventMarkedDone, detail); err != nil {
		return MarkPaidResult{}, err
	}

	inst, err = l.GetInstance(ctx, q, id)
	if err != nil {
		return MarkPaidResult{}, err
	}
	return MarkPaidResult{Instance: inst, Payment: &payment}, nil
}

// MarkPendingTx reopens an instance: its payments are removed and the
// status goes back to pending.
func (l *Ledger) MarkPendingTx(ctx context.Context, q *storage.Queries, id int64) (core.Instance, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return core.Instance{}, err
	}
	count, total, err := q.DeletePayments(ctx, id)
	if err != nil {
		return core.Instance{}, err
	}
	if err := q.SetInstanceStatus(ctx, id, core.StatusPending); err != nil {
		return core.Instance{}, err
	}
	detail := map[string]any{
		"payments_removed": count,
		"amount_removed":   total,
		"status":           core.FieldChange{From: inst.StatusDerived, To: core.StatusPending},
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventReopened, detail); err != nil {
		return core.Instance{}, err
	}
	return l.GetInstance(ctx, q, id)
}

// AddPaymentTx logs a (possibly partial) payment against an instance.
func (l *Ledger) AddPaymentTx(ctx context.Context, q *storage.Queries, id int64, amount core.Money, paidDate core.Date, note string) (PaymentResult, error) {
	if err := amount.Validate(); err != nil {
		return PaymentResult{}, &core.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return PaymentResult{}, err
	}
	if inst.Status == core.StatusSkipped {
		return PaymentResult{}, fmt.Errorf("instance %d is skipped: %w", id, core.ErrConflict)
	}

	payment, err := q.AddPayment(ctx, core.PaymentEvent{
		InstanceID: id,
		Amount:     amount,
		PaidDate:   l.paymentDate(paidDate),
		Note:       note,
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if err := l.syncStoredStatus(ctx, q, inst); err != nil {
		return PaymentResult{}, err
	}
	after, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return PaymentResult{}, err
	}
	detail := map[string]any{
		"payment_id":  payment.ID,
		"amount":      payment.Amount,
		"paid_date":   payment.PaidDate,
		"amount_paid": core.FieldChange{From: inst.AmountPaid, To: after.AmountPaid},
	}
	if inst.StatusDerived != after.StatusDerived {
		detail["status"] = core.FieldChange{From: inst.StatusDerived, To: after.StatusDerived}
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventLogUpdate, detail); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Instance: after, Payment: payment}, nil
}

// UndoPaymentTx removes paymentID, or the latest payment when nil.
func (l *Ledger) UndoPaymentTx(ctx context.Context, q *storage.Queries, id int64, paymentID *int64) (PaymentResult, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return PaymentResult{}, err
	}

	var payment core.PaymentEvent
	if paymentID != nil {
		payment, err = q.GetPayment(ctx, *paymentID)
		if err == nil && payment.InstanceID != id {
			err = fmt.Errorf("payment %d of instance %d: %w", *paymentID, id, storage.ErrNotFound)
		}
	} else {
		payment, err = q.LatestPayment(ctx, id)
	}
	if err != nil {
		return PaymentResult{}, err
	}

	if err := q.DeletePayment(ctx, payment.ID); err != nil {
		return PaymentResult{}, err
	}
	if err := l.syncStoredStatus(ctx, q, inst); err != nil {
		return PaymentResult{}, err
	}
	after, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return PaymentResult{}, err
	}
	detail := map[string]any{
		"payment_id":  payment.ID,
		"amount":      payment.Amount,
		"paid_date":   payment.PaidDate,
		"amount_paid": core.FieldChange{From: inst.AmountPaid, To: after.AmountPaid},
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventPaymentRemoved, detail); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Instance: after, Payment: payment}, nil
}

// SkipTx marks an instance as skipped for the month. Skipping twice is a no-op.
func (l *Ledger) SkipTx(ctx context.Context, q *storage.Queries, id int64, note string) (core.Instance, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return core.Instance{}, err
	}
	if inst.Status == core.StatusSkipped {
		return inst, nil
	}
	if err := q.SetInstanceStatus(ctx, id, core.StatusSkipped); err != nil {
		return core.Instance{}, err
	}
	detail := map[string]any{"status": core.FieldChange{From: inst.StatusDerived, To: core.StatusSkipped}}
	if note != "" {
		detail["note"] = note
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventSkipped, detail); err != nil {
		return core.Instance{}, err
	}
	return l.GetInstance(ctx, q, id)
}

// UnskipTx brings a skipped instance back; its status follows its payments.
func (l *Ledger) UnskipTx(ctx context.Context, q *storage.Queries, id int64) (core.Instance, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return core.Instance{}, err
	}
	if inst.Status != core.StatusSkipped {
		return inst, nil
	}
	inst.Status = core.StatusPending
	if err := q.SetInstanceStatus(ctx, id, core.StatusPending); err != nil {
		return core.Instance{}, err
	}
	if err := l.syncStoredStatus(ctx, q, inst); err != nil {
		return core.Instance{}, err
	}
	after, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return core.Instance{}, err
	}
	detail := map[string]any{"status": core.FieldChange{From: core.StatusSkipped, To: after.StatusDerived}}
	if err := q.AddInstanceEvent(ctx, id, core.EventUnskipped, detail); err != nil {
		return core.Instance{}, err
	}
	return after, nil
}

// UpdateInstanceTx edits one instance. The due date must stay inside the
// instance's month.
func (l *Ledger) UpdateInstanceTx(ctx context.Context, q *storage.Queries, id int64, patch InstancePatch) (core.Instance, error) {
	inst, err := l.GetInstance(ctx, q, id)
	if err != nil {
		return core.Instance{}, err
	}

	next := inst
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return core.Instance{}, &core.ValidationError{Field: "name", Message: core.ErrEmptyName.Error()}
		}
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		next.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Amount != nil {
		if patch.Amount.Cents < 0 {
			return core.Instance{}, core.Invalid("amount", "must not be negative")
		}
		next.Amount = *patch.Amount
	}
	if patch.DueDate != nil {
		if !patch.DueDate.InMonth(inst.Year, inst.Month) {
			return core.Instance{}, core.Invalid("due_date", "%s is outside %04d-%02d", patch.DueDate, inst.Year, inst.Month)
		}
		next.DueDate = *patch.DueDate
	}
	if patch.Essential != nil {
		next.Essential = *patch.Essential
	}
	if patch.Autopay != nil {
		next.Autopay = *patch.Autopay
	}
	if patch.Note != nil {
		next.Note = *patch.Note
	}

	diff := core.Diff{}
	diff.Set("name", inst.Name, next.Name)
	diff.Set("category", inst.Category, next.Category)
	diff.Set("amount", inst.Amount, next.Amount)
	diff.Set("due_date", inst.DueDate.String(), next.DueDate.String())
	diff.Set("essential", inst.Essential, next.Essential)
	diff.Set("autopay", inst.Autopay, next.Autopay)
	diff.Set("note", inst.Note, next.Note)
	if diff.Empty() {
		return inst, nil
	}

	if err := q.UpdateInstance(ctx, next); err != nil {
		return core.Instance{}, err
	}
	if err := l.syncStoredStatus(ctx, q, next); err != nil {
		return core.Instance{}, err
	}
	if err := q.AddInstanceEvent(ctx, id, core.EventEdited, diff); err != nil {
		return core.Instance{}, err
	}
	return l.GetInstance(ctx, q, id)
}
