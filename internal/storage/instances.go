package storage

import (
	"context"
	"database/sql"
	"fmt"

	"bills/internal/core"
)

const instanceColumns = `id, template_id, year, month, name, category, amount_cents, due_date, essential, autopay, status, note, created_at, updated_at`

func scanInstance(row rowScanner) (core.Instance, error) {
	var (
		inst       core.Instance
		templateID sql.NullInt64
		dueDate    string
	)
	err := row.Scan(&inst.ID, &templateID, &inst.Year, &inst.Month, &inst.Name, &inst.Category,
		&inst.Amount.Cents, &dueDate, &inst.Essential, &inst.Autopay, &inst.Status, &inst.Note,
		&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return core.Instance{}, err
	}
	if templateID.Valid {
		id := templateID.Int64
		inst.TemplateID = &id
	}
	if inst.DueDate, err = core.ParseDate(dueDate); err != nil {
		return core.Instance{}, fmt.Errorf("instance %d due_date: %w", inst.ID, err)
	}
	return inst, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// InsertInstance inserts inst unless its (template, year, month) slot is taken.
// created is false when the row already existed.
func (q *Queries) InsertInstance(ctx context.Context, inst core.Instance) (id int64, created bool, err error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO instances (template_id, year, month, name, category, amount_cents, due_date, essential, autopay, status, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (template_id, year, month) DO NOTHING`,
		nullableID(inst.TemplateID), inst.Year, inst.Month, inst.Name, inst.Category, inst.Amount.Cents,
		inst.DueDate.String(), inst.Essential, inst.Autopay, string(inst.Status), inst.Note)
	if err != nil {
		return 0, false, fmt.Errorf("insert instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

// TemplateIDsInMonth returns the templates that already have an instance in (year, month).
func (q *Queries) TemplateIDsInMonth(ctx context.Context, year, month int) (map[int64]bool, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT template_id FROM instances WHERE year = ? AND month = ? AND template_id IS NOT NULL`, year, month)
	if err != nil {
		return nil, fmt.Errorf("list month template ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan template id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (q *Queries) GetInstance(ctx context.Context, id int64) (core.Instance, error) {
	inst, err := scanInstance(q.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id))
	if err != nil {
		return core.Instance{}, notFound("instance", id, err)
	}
	return inst, nil
}

// GetInstanceForTemplate returns the instance of templateID in (year, month).
func (q *Queries) GetInstanceForTemplate(ctx context.Context, templateID int64, year, month int) (core.Instance, error) {
	inst, err := scanInstance(q.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE template_id = ? AND year = ? AND month = ?`,
		templateID, year, month))
	if err != nil {
		return core.Instance{}, notFound("instance for template", fmt.Sprintf("%d %04d-%02d", templateID, year, month), err)
	}
	return inst, nil
}

// ListInstances returns the instances of a month ordered by due date.
func (q *Queries) ListInstances(ctx context.Context, year, month int) ([]core.Instance, error) {
	return q.listInstances(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE year = ? AND month = ? ORDER BY due_date, name, id`,
		year, month)
}

// ListAllInstances is used by the backup export.
func (q *Queries) ListAllInstances(ctx context.Context) ([]core.Instance, error) {
	return q.listInstances(ctx, `SELECT `+instanceColumns+` FROM instances ORDER BY id`)
}

func (q *Queries) listInstances(ctx context.Context, query string, args ...any) ([]core.Instance, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []core.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateInstance rewrites the snapshot fields and note. Status is left alone.
func (q *Queries) UpdateInstance(ctx context.Context, inst core.Instance) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE instances
		SET name = ?, category = ?, amount_cents = ?, due_date = ?, essential = ?, autopay = ?,
		    note = ?, updated_at = `+sqlNow+`
		WHERE id = ?`,
		inst.Name, inst.Category, inst.Amount.Cents, inst.DueDate.String(), inst.Essential, inst.Autopay,
		inst.Note, inst.ID)
	if err != nil {
		return fmt.Errorf("update instance %d: %w", inst.ID, err)
	}
	return expectOne(res, "instance", inst.ID)
}

func (q *Queries) SetInstanceStatus(ctx context.Context, id int64, status core.InstanceStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE instances SET status = ?, updated_at = `+sqlNow+` WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set instance %d status: %w", id, err)
	}
	return expectOne(res, "instance", id)
}

// DeleteInstancesFrom removes the instances of templateID dated (year, month) or later.
// Their payments and audit events go with them through ON DELETE CASCADE.
func (q *Queries) DeleteInstancesFrom(ctx context.Context, templateID int64, year, month int) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM instances WHERE template_id = ? AND (year * 12 + month) >= ?`,
		templateID, year*12+month)
	if err != nil {
		return 0, fmt.Errorf("delete instances of template %d: %w", templateID, err)
	}
	return res.RowsAffected()
}
