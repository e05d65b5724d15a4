package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bills/internal/core"
	"bills/internal/storage"
)

// Ledger materialises monthly instances from templates and derives their
// payment state. Methods ending in Tx run on the caller's transaction; the
// others open their own.
type Ledger struct {
	repo  *storage.SQLiteRepository
	clock Clock
}

func NewLedger(repo *storage.SQLiteRepository, clock Clock) *Ledger {
	return &Ledger{repo: repo, clock: clock}
}

// Today returns the current date in the ledger's timezone.
func (l *Ledger) Today() core.Date { return l.clock.Today() }

// MonthView is everything a client needs to render one month.
type MonthView struct {
	Year      int                `json:"year"`
	Month     int                `json:"month"`
	Settings  core.MonthSettings `json:"settings"`
	Instances []core.Instance    `json:"instances"`
	Summary   core.MonthSummary  `json:"summary"`
}

// ApplyResult counts what ApplyTemplatesToMonth touched.
type ApplyResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// EnsureMonth creates the missing instances of (year, month). Safe to call on every read.
func (l *Ledger) EnsureMonth(ctx context.Context, year, month int) (int, error) {
	var created int
	err := l.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = l.EnsureMonthTx(ctx, q, year, month)
		return err
	})
	return created, err
}

// EnsureMonthTx inserts a pending snapshot for every active template lacking
// an instance in (year, month) and returns how many were created.
func (l *Ledger) EnsureMonthTx(ctx context.Context, q *storage.Queries, year, month int) (int, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return 0, err
	}
	templates, err := q.ListTemplates(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("ensure month: %w", err)
	}
	existing, err := q.TemplateIDsInMonth(ctx, year, month)
	if err != nil {
		return 0, fmt.Errorf("ensure month: %w", err)
	}

	created := 0
	for _, tpl := range templates {
		if existing[tpl.ID] {
			continue
		}
		inst := tpl.Snapshot(year, month)
		id, ok, err := q.InsertInstance(ctx, inst)
		if err != nil {
			return created, fmt.Errorf("ensure month: template %d: %w", tpl.ID, err)
		}
		if !ok {
			continue
		}
		detail := map[string]any{
			"template_id": tpl.ID,
			"amount":      inst.Amount,
			"due_date":    inst.DueDate,
		}
		if err := q.AddInstanceEvent(ctx, id, core.EventCreated, detail); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		slog.InfoContext(ctx, "Month instances created",
			"year", year,
			"month", month,
			"created", created)
	}
	return created, nil
}

// ApplyTemplateToMonthTx overwrites the snapshot fields of the template's
// instance in (year, month). Status and payments are untouched. It reports
// whether anything changed; a missing instance is not an error.
func (l *Ledger) ApplyTemplateToMonthTx(ctx context.Context, q *storage.Queries, tpl core.Template, year, month int) (bool, error) {
	inst, err := q.GetInstanceForTemplate(ctx, tpl.ID, year, month)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	snap := tpl.Snapshot(year, month)
	diff := core.Diff{}
	diff.Set("name", inst.Name, snap.Name)
	diff.Set("category", inst.Category, snap.Category)
	diff.Set("amount", inst.Amount, snap.Amount)
	diff.Set("due_date", inst.DueDate.String(), snap.DueDate.String())
	diff.Set("essential", inst.Essential, snap.Essential)
	diff.Set("autopay", inst.Autopay, snap.Autopay)
	if diff.Empty() {
		return false, nil
	}

	inst.Name, inst.Category, inst.Amount = snap.Name, snap.Category, snap.Amount
	inst.DueDate, inst.Essential, inst.Autopay = snap.DueDate, snap.Essential, snap.Autopay
	if err := q.UpdateInstance(ctx, inst); err != nil {
		return false, err
	}
	if err := l.syncStoredStatus(ctx, q, inst); err != nil {
		return false, err
	}
	if err := q.AddInstanceEvent(ctx, inst.ID, core.EventTemplateApplied, diff); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyTemplatesToMonthTx ensures the month, then applies every active
// template (or only templateID) to it.
func (l *Ledger) ApplyTemplatesToMonthTx(ctx context.Context, q *storage.Queries, year, month int, templateID *int64) (ApplyResult, error) {
	var res ApplyResult
	created, err := l.EnsureMonthTx(ctx, q, year, month)
	if err != nil {
		return res, err
	}
	res.Created = created

	var templates []core.Template
	if templateID != nil {
		tpl, err := q.GetTemplate(ctx, *templateID)
		if err != nil {
			return res, err
		}
		templates = []core.Template{tpl}
	} else if templates, err = q.ListTemplates(ctx, false); err != nil {
		return res, err
	}

	for _, tpl := range templates {
		changed, err := l.ApplyTemplateToMonthTx(ctx, q, tpl, year, month)
		if err != nil {
			return res, fmt.Errorf("apply template %d: %w", tpl.ID, err)
		}
		if changed {
			res.Updated++
		}
	}
	return res, nil
}

// DeleteTemplateFromMonthTx deletes the template and its instances dated
// (year, month) or later. Earlier instances stay, detached from the template.
func (l *Ledger) DeleteTemplateFromMonthTx(ctx context.Context, q *storage.Queries, id int64, year, month int) (int64, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return 0, err
	}
	if _, err := q.GetTemplate(ctx, id); err != nil {
		return 0, err
	}
	removed, err := q.DeleteInstancesFrom(ctx, id, year, month)
	if err != nil {
		return 0, err
	}
	if err := q.DeleteTemplate(ctx, id); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Template deleted",
		"template_id", id,
		"from_year", year,
		"from_month", month,
		"instances_removed", removed)
	return removed, nil
}

// AttachPayments derives amount_paid, amount_remaining and status_derived
// for a batch of instances with one grouped query.
func (l *Ledger) AttachPayments(ctx context.Context, q *storage.Queries, instances []core.Instance) error {
	ids := make([]int64, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	sums, err := q.SumPayments(ctx, ids)
	if err != nil {
		return err
	}
	for i := range instances {
		instances[i].ApplyPayments(sums[instances[i].ID])
	}
	return nil
}

// GetInstance loads one instance with its derived fields.
func (l *Ledger) GetInstance(ctx context.Context, q *storage.Queries, id int64) (core.Instance, error) {
	inst, err := q.GetInstance(ctx, id)
	if err != nil {
		return core.Instance{}, err
	}
	one := []core.Instance{inst}
	if err := l.AttachPayments(ctx, q, one); err != nil {
		return core.Instance{}, err
	}
	return one[0], nil
}

// MonthView ensures the month and returns its instances and summary.
// essentialsOnly overrides the month's saved filter when set.
func (l *Ledger) MonthView(ctx context.Context, year, month int, essentialsOnly *bool) (MonthView, error) {
	if _, err := l.EnsureMonth(ctx, year, month); err != nil {
		return MonthView{}, err
	}
	return l.ReadMonth(ctx, year, month, essentialsOnly)
}

// ReadMonth is MonthView without EnsureMonth: it never writes, so a month
// that was not materialised yet reads as empty.
func (l *Ledger) ReadMonth(ctx context.Context, year, month int, essentialsOnly *bool) (MonthView, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return MonthView{}, err
	}

	q := l.repo.Queries()
	instances, err := q.ListInstances(ctx, year, month)
	if err != nil {
		return MonthView{}, err
	}
	if err := l.AttachPayments(ctx, q, instances); err != nil {
		return MonthView{}, err
	}
	settings, err := q.GetMonthSettings(ctx, year, month)
	if err != nil {
		return MonthView{}, err
	}

	filter := settings.EssentialsOnly
	if essentialsOnly != nil {
		filter = *essentialsOnly
	}
	if instances == nil {
		instances = []core.Instance{}
	}
	return MonthView{
		Year:      year,
		Month:     month,
		Settings:  settings,
		Instances: instances,
		Summary: core.ComputeSummary(instances, core.SummaryOptions{
			Year:           year,
			Month:          month,
			EssentialsOnly: filter,
			Today:          l.clock.Today(),
		}),
	}, nil
}

// syncStoredStatus keeps the stored pending/paid status in line with the
// payments of a non skipped instance.
func (l *Ledger) syncStoredStatus(ctx context.Context, q *storage.Queries, inst core.Instance) error {
	if inst.Status == core.StatusSkipped {
		return nil
	}
	sums, err := q.SumPayments(ctx, []int64{inst.ID})
	if err != nil {
		return err
	}
	want := core.StatusPending
	if st := core.DerivePayment(inst.Amount, sums[inst.ID], false); st.Status == core.StatusPaid {
		want = core.StatusPaid
	}
	if want == inst.Status {
		return nil
	}
	return q.SetInstanceStatus(ctx, inst.ID, want)
}
