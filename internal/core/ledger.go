package core

// PaymentState is the derived view of an instance given its payments.
type PaymentState struct {
	AmountPaid      Money
	AmountRemaining Money
	Status          InstanceStatus
}

// DerivePayment applies the status partition rule:
// skipped overrides everything, otherwise pending when nothing was paid,
// partial while 0 < paid < amount and paid once paid >= amount.
func DerivePayment(amount, paid Money, skipped bool) PaymentState {
	remaining := amount.Sub(paid)
	if remaining.Cents < 0 {
		remaining = Money{}
	}
	st := PaymentState{AmountPaid: paid, AmountRemaining: remaining}
	switch {
	case skipped:
		st.Status = StatusSkipped
	case paid.Cents <= 0:
		st.Status = StatusPending
	case paid.Cents < amount.Cents:
		st.Status = StatusPartial
	default:
		st.Status = StatusPaid
	}
	return st
}

// ApplyPayments fills the derived fields of the instance from the sum of its payments.
func (i *Instance) ApplyPayments(paid Money) {
	st := DerivePayment(i.Amount, paid, i.Status == StatusSkipped)
	i.AmountPaid = st.AmountPaid
	i.AmountRemaining = st.AmountRemaining
	i.StatusDerived = st.Status
}

// IsOverdue reports an unpaid, non skipped instance whose due date is before today.
func (i Instance) IsOverdue(today Date) bool {
	if i.StatusDerived == StatusSkipped || i.AmountRemaining.Cents <= 0 {
		return false
	}
	return i.DueDate.Before(today)
}
