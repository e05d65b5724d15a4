package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bills/internal/core"
)

// Backup is the full-database export document.
type Backup struct {
	SchemaVersion  uint                 `json:"schema_version"`
	ExportedAt     string               `json:"exported_at"`
	Templates      []core.Template      `json:"templates"`
	Instances      []core.Instance      `json:"instances"`
	PaymentEvents  []core.PaymentEvent  `json:"payment_events"`
	InstanceEvents []core.InstanceEvent `json:"instance_events"`
	MonthSettings  []core.MonthSettings `json:"month_settings"`
	SinkingFunds   []core.SinkingFund   `json:"sinking_funds"`
	SinkingEvents  []core.SinkingEvent  `json:"sinking_events"`
	Settings       []Setting            `json:"settings"`
}

// ImportReport counts, per table, the rows inserted and the ones already
// present. Updated only counts settings, which take the backup's value.
type ImportReport struct {
	Inserted map[string]int `json:"inserted"`
	Updated  map[string]int `json:"updated"`
	Skipped  map[string]int `json:"skipped"`
}

func (r ImportReport) count(table string, inserted bool) {
	if inserted {
		r.Inserted[table]++
	} else {
		r.Skipped[table]++
	}
}

// Export snapshots every table inside one transaction.
func (r *SQLiteRepository) Export(ctx context.Context) (Backup, error) {
	b := Backup{
		SchemaVersion: r.schemaVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	err := r.InTx(ctx, func(q *Queries) error {
		var err error
		if b.Templates, err = q.ListTemplates(ctx, true); err != nil {
			return err
		}
		if b.Instances, err = q.ListAllInstances(ctx); err != nil {
			return err
		}
		ids := make([]int64, len(b.Instances))
		for i, inst := range b.Instances {
			ids[i] = inst.ID
		}
		sums, err := q.SumPayments(ctx, ids)
		if err != nil {
			return err
		}
		for i := range b.Instances {
			b.Instances[i].ApplyPayments(sums[b.Instances[i].ID])
		}
		if b.PaymentEvents, err = q.ListAllPayments(ctx); err != nil {
			return err
		}
		if b.InstanceEvents, err = q.ListAllInstanceEvents(ctx); err != nil {
			return err
		}
		if b.MonthSettings, err = q.ListMonthSettings(ctx); err != nil {
			return err
		}
		if b.SinkingFunds, err = q.ListFunds(ctx, true); err != nil {
			return err
		}
		if b.SinkingEvents, err = q.ListAllSinkingEvents(ctx); err != nil {
			return err
		}
		b.Settings, err = q.ListSettings(ctx)
		return err
	})
	if err != nil {
		return Backup{}, fmt.Errorf("export backup: %w", err)
	}
	return b, nil
}

// Import merges b by primary key inside one transaction. Rows whose id (or
// unique key) already exists are skipped, never overwritten; settings are
// the exception and are restored from the backup. A row breaking a schema
// constraint rejects the whole import as a validation error.
func (r *SQLiteRepository) Import(ctx context.Context, b Backup) (ImportReport, error) {
	if b.SchemaVersion == 0 || b.SchemaVersion > r.schemaVersion {
		return ImportReport{}, core.Invalid("schema_version", "unsupported schema version %d (current %d)", b.SchemaVersion, r.schemaVersion)
	}

	report := ImportReport{Inserted: map[string]int{}, Updated: map[string]int{}, Skipped: map[string]int{}}
	err := r.InTx(ctx, func(q *Queries) error {
		for _, t := range b.Templates {
			ok, err := q.importRow(ctx, `
				INSERT INTO templates (id, name, category, amount_default_cents, due_day, essential, autopay, active, payee_hint, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, `+orNow+`, `+orNow+`) ON CONFLICT DO NOTHING`,
				t.ID, t.Name, t.Category, t.AmountDefault.Cents, t.DueDay, t.Essential, t.Autopay, t.Active, t.PayeeHint, t.CreatedAt, t.UpdatedAt)
			if err != nil {
				return fmt.Errorf("template %d: %w", t.ID, err)
			}
			report.count("templates", ok)
		}
		for _, i := range b.Instances {
			status := i.Status
			if status == "" {
				status = core.StatusPending
			}
			ok, err := q.importRow(ctx, `
				INSERT INTO instances (id, template_id, year, month, name, category, amount_cents, due_date, essential, autopay, status, note, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, `+orNow+`, `+orNow+`) ON CONFLICT DO NOTHING`,
				i.ID, nullableID(i.TemplateID), i.Year, i.Month, i.Name, i.Category, i.Amount.Cents, i.DueDate.String(),
				i.Essential, i.Autopay, string(status), i.Note, i.CreatedAt, i.UpdatedAt)
			if err != nil {
				return fmt.Errorf("instance %d: %w", i.ID, err)
			}
			report.count("instances", ok)
		}
		for _, p := range b.PaymentEvents {
			ok, err := q.importRow(ctx, `
				INSERT INTO payment_events (id, instance_id, amount_cents, paid_date, note, created_at)
				VALUES (?, ?, ?, ?, ?, `+orNow+`) ON CONFLICT DO NOTHING`,
				p.ID, p.InstanceID, p.Amount.Cents, p.PaidDate.String(), p.Note, p.CreatedAt)
			if err != nil {
				return fmt.Errorf("payment %d: %w", p.ID, err)
			}
			report.count("payment_events", ok)
		}
		for _, e := range b.InstanceEvents {
			detail := string(e.Detail)
			if detail == "" {
				detail = "{}"
			}
			ok, err := q.importRow(ctx, `
				INSERT INTO instance_events (id, instance_id, event_type, detail, created_at)
				VALUES (?, ?, ?, ?, `+orNow+`) ON CONFLICT DO NOTHING`,
				e.ID, e.InstanceID, e.EventType, detail, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("instance event %d: %w", e.ID, err)
			}
			report.count("instance_events", ok)
		}
		for _, ms := range b.MonthSettings {
			ok, err := q.importRow(ctx,
				`INSERT INTO month_settings (year, month, essentials_only, note) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
				ms.Year, ms.Month, ms.EssentialsOnly, ms.Note)
			if err != nil {
				return fmt.Errorf("month settings %04d-%02d: %w", ms.Year, ms.Month, err)
			}
			report.count("month_settings", ok)
		}
		for _, f := range b.SinkingFunds {
			ok, err := q.importRow(ctx, `
				INSERT INTO sinking_funds (id, name, category, target_cents, due_date, cadence, cadence_months, auto_contribute, active, note, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, `+orNow+`, `+orNow+`) ON CONFLICT DO NOTHING`,
				f.ID, f.Name, f.Category, f.Target.Cents, f.DueDate.String(), string(f.Cadence), f.CadenceMonths,
				f.AutoContribute, f.Active, f.Note, f.CreatedAt, f.UpdatedAt)
			if err != nil {
				return fmt.Errorf("fund %d: %w", f.ID, err)
			}
			report.count("sinking_funds", ok)
		}
		for _, e := range b.SinkingEvents {
			ok, err := q.importRow(ctx, `
				INSERT INTO sinking_events (id, fund_id, kind, amount_cents, event_date, note, created_at)
				VALUES (?, ?, ?, ?, ?, ?, `+orNow+`) ON CONFLICT DO NOTHING`,
				e.ID, e.FundID, string(e.Kind), e.Amount.Cents, e.EventDate.String(), e.Note, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("sinking event %d: %w", e.ID, err)
			}
			report.count("sinking_events", ok)
		}
		for _, s := range b.Settings {
			outcome, err := q.importSetting(ctx, s)
			if err != nil {
				return fmt.Errorf("setting %q: %w", s.Key, err)
			}
			switch outcome {
			case settingInserted:
				report.Inserted["settings"]++
			case settingUpdated:
				report.Updated["settings"]++
			default:
				report.Skipped["settings"]++
			}
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, fmt.Errorf("import backup: %w", err)
	}
	return report, nil
}

// orNow keeps an exported timestamp and falls back to now when it is missing.
const orNow = `COALESCE(NULLIF(?, ''), ` + sqlNow + `)`

func (q *Queries) importRow(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isConstraint(err) {
			return false, core.Invalid("backup", "invalid row: %v", err)
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type settingOutcome int

const (
	settingSkipped settingOutcome = iota
	settingInserted
	settingUpdated
)

// importSetting writes the backup's value for s.Key, reporting whether the
// key was new, changed or already held that value.
func (q *Queries) importSetting(ctx context.Context, s Setting) (settingOutcome, error) {
	var current string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, s.Key).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := q.importRow(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, s.Key, s.Value); err != nil {
			return settingSkipped, err
		}
		return settingInserted, nil
	case err != nil:
		return settingSkipped, err
	case current == s.Value:
		return settingSkipped, nil
	}
	if _, err := q.importRow(ctx, `UPDATE settings SET value = ? WHERE key = ?`, s.Value, s.Key); err != nil {
		return settingSkipped, err
	}
	return settingUpdated, nil
}

// isConstraint reports CHECK, NOT NULL, UNIQUE and foreign key violations.
func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
