package storage

import (
	"context"
	"fmt"

	"bills/internal/core"
)

const templateColumns = `id, name, category, amount_default_cents, due_day, essential, autopay, active, payee_hint, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (core.Template, error) {
	var t core.Template
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.AmountDefault.Cents, &t.DueDay,
		&t.Essential, &t.Autopay, &t.Active, &t.PayeeHint, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) CreateTemplate(ctx context.Context, t core.Template) (core.Template, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO templates (name, category, amount_default_cents, due_day, essential, autopay, active, payee_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		t.Name, t.Category, t.AmountDefault.Cents, t.DueDay, t.Essential, t.Autopay, t.Active, t.PayeeHint,
	).Scan(&id)
	if err != nil {
		return core.Template{}, fmt.Errorf("insert template: %w", err)
	}
	return q.GetTemplate(ctx, id)
}

func (q *Queries) GetTemplate(ctx context.Context, id int64) (core.Template, error) {
	t, err := scanTemplate(q.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if err != nil {
		return core.Template{}, notFound("template", id, err)
	}
	return t, nil
}

// ListTemplates returns templates ordered by due day, active ones only unless includeArchived.
func (q *Queries) ListTemplates(ctx context.Context, includeArchived bool) ([]core.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	if !includeArchived {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY due_day, name, id`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateTemplate(ctx context.Context, t core.Template) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, category = ?, amount_default_cents = ?, due_day = ?, essential = ?,
		    autopay = ?, active = ?, payee_hint = ?, updated_at = `+sqlNow+`
		WHERE id = ?`,
		t.Name, t.Category, t.AmountDefault.Cents, t.DueDay, t.Essential, t.Autopay, t.Active, t.PayeeHint, t.ID)
	if err != nil {
		return fmt.Errorf("update template %d: %w", t.ID, err)
	}
	return expectOne(res, "template", t.ID)
}

func (q *Queries) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	return expectOne(res, "template", id)
}
