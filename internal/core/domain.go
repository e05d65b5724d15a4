package core

import (
	"encoding/json"
	"reflect"
	"strings"
)

const (
	StatusPending InstanceStatus = "pending"
	StatusPartial InstanceStatus = "partial"
	StatusPaid    InstanceStatus = "paid"
	StatusSkipped InstanceStatus = "skipped"
)

const (
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Yearly    Cadence = "yearly"
	Custom    Cadence = "custom"
)

const (
	Contribution SinkingEventKind = "CONTRIBUTION"
	Withdrawal   SinkingEventKind = "WITHDRAWAL"
	Adjustment   SinkingEventKind = "ADJUSTMENT"
)

// Audit event types written to the instance history.
const (
	EventCreated         = "created"
	EventMarkedDone      = "marked_done"
	EventReopened        = "reopened"
	EventLogUpdate       = "log_update"
	EventPaymentRemoved  = "payment_removed"
	EventEdited          = "edited"
	EventSkipped         = "skipped"
	EventUnskipped       = "unskipped"
	EventTemplateApplied = "template_applied"
)

type (
	// InstanceStatus is either a stored status (pending, paid, skipped) or
	// the derived one, which adds partial.
	InstanceStatus string

	Cadence string

	SinkingEventKind string

	// Template is the reusable definition of a recurring bill.
	Template struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		Category      string `json:"category"`
		AmountDefault Money  `json:"amount_default"`
		DueDay        int    `json:"due_day"`
		Essential     bool   `json:"essential"`
		Autopay       bool   `json:"autopay"`
		Active        bool   `json:"active"`
		PayeeHint     string `json:"payee_hint,omitempty"`
		CreatedAt     string `json:"created_at,omitempty"`
		UpdatedAt     string `json:"updated_at,omitempty"`
	}

	// Instance is one month's occurrence of a template. The Amount* and
	// StatusDerived fields are computed from payments on every read.
	Instance struct {
		ID         int64          `json:"id"`
		TemplateID *int64         `json:"template_id"`
		Year       int            `json:"year"`
		Month      int            `json:"month"`
		Name       string         `json:"name"`
		Category   string         `json:"category"`
		Amount     Money          `json:"amount"`
		DueDate    Date           `json:"due_date"`
		Essential  bool           `json:"essential"`
		Autopay    bool           `json:"autopay"`
		Status     InstanceStatus `json:"status"`
		Note       string         `json:"note,omitempty"`
		CreatedAt  string         `json:"created_at,omitempty"`
		UpdatedAt  string         `json:"updated_at,omitempty"`

		AmountPaid      Money          `json:"amount_paid"`
		AmountRemaining Money          `json:"amount_remaining"`
		StatusDerived   InstanceStatus `json:"status_derived"`
	}

	PaymentEvent struct {
		ID         int64  `json:"id"`
		InstanceID int64  `json:"instance_id"`
		Amount     Money  `json:"amount"`
		PaidDate   Date   `json:"paid_date"`
		Note       string `json:"note,omitempty"`
		CreatedAt  string `json:"created_at,omitempty"`
	}

	InstanceEvent struct {
		ID         int64           `json:"id"`
		InstanceID int64           `json:"instance_id"`
		EventType  string          `json:"event_type"`
		Detail     json.RawMessage `json:"detail,omitempty"`
		CreatedAt  string          `json:"created_at,omitempty"`
	}

	SinkingFund struct {
		ID             int64   `json:"id"`
		Name           string  `json:"name"`
		Category       string  `json:"category"`
		Target         Money   `json:"target"`
		DueDate        Date    `json:"due_date"`
		Cadence        Cadence `json:"cadence"`
		CadenceMonths  int     `json:"cadence_months,omitempty"`
		AutoContribute bool    `json:"auto_contribute"`
		Active         bool    `json:"active"`
		Note           string  `json:"note,omitempty"`
		CreatedAt      string  `json:"created_at,omitempty"`
		UpdatedAt      string  `json:"updated_at,omitempty"`
	}

	// SinkingEvent amounts are signed: contributions positive, withdrawals negative.
	SinkingEvent struct {
		ID        int64            `json:"id"`
		FundID    int64            `json:"fund_id"`
		Kind      SinkingEventKind `json:"kind"`
		Amount    Money            `json:"amount"`
		EventDate Date             `json:"event_date"`
		Note      string           `json:"note,omitempty"`
		CreatedAt string           `json:"created_at,omitempty"`
	}

	MonthSettings struct {
		Year           int    `json:"year"`
		Month          int    `json:"month"`
		EssentialsOnly bool   `json:"essentials_only"`
		Note           string `json:"note,omitempty"`
	}

	// FieldChange is one entry of an audit diff.
	FieldChange struct {
		From any `json:"from"`
		To   any `json:"to"`
	}

	// Diff maps field names to their before/after values.
	Diff map[string]FieldChange
)

// Set records a change only when the values differ.
func (d Diff) Set(field string, from, to any) {
	if reflect.DeepEqual(from, to) {
		return
	}
	d[field] = FieldChange{From: from, To: to}
}

func (d Diff) Empty() bool { return len(d) == 0 }

func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "name", Message: ErrEmptyName.Error()}
	}
	if len(t.Name) > 200 {
		return Invalid("name", "too long (max 200 characters)")
	}
	if t.AmountDefault.Cents < 0 {
		return Invalid("amount_default", "must not be negative")
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return Invalid("due_day", "%d out of range 1-31", t.DueDay)
	}
	return nil
}

// Snapshot builds the pending instance of t for (year, month).
func (t Template) Snapshot(year, month int) Instance {
	id := t.ID
	return Instance{
		TemplateID: &id,
		Year:       year,
		Month:      month,
		Name:       t.Name,
		Category:   t.Category,
		Amount:     t.AmountDefault,
		DueDate:    DueDate(year, month, t.DueDay),
		Essential:  t.Essential,
		Autopay:    t.Autopay,
		Status:     StatusPending,
	}
}

func (c Cadence) Valid() bool {
	switch c {
	case Monthly, Quarterly, Yearly, Custom:
		return true
	}
	return false
}

func (f SinkingFund) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Message: ErrEmptyName.Error()}
	}
	if f.Target.Cents <= 0 {
		return Invalid("target", "must be greater than zero")
	}
	if f.DueDate.IsZero() {
		return Invalid("due_date", "is required")
	}
	if !f.Cadence.Valid() {
		return Invalid("cadence", "unknown cadence %q", f.Cadence)
	}
	if f.Cadence == Custom && (f.CadenceMonths < 1 || f.CadenceMonths > 120) {
		return Invalid("cadence_months", "%d out of range 1-120", f.CadenceMonths)
	}
	return nil
}

func (k SinkingEventKind) Valid() bool {
	switch k {
	case Contribution, Withdrawal, Adjustment:
		return true
	}
	return false
}

// SignedAmount applies the sign convention of the event log to a positive amount.
// Adjustments keep the caller's sign.
func (k SinkingEventKind) SignedAmount(m Money) Money {
	if k == Withdrawal && m.Cents > 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}
