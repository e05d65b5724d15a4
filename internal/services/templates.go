package services

import (
	"context"
	"log/slog"
	"strings"

	"bills/internal/core"
	"bills/internal/storage"
)

// TemplatePatch lists the editable fields of a template; nil means unchanged.
type TemplatePatch struct {
	Name          *string
	Category      *string
	AmountDefault *core.Money
	DueDay        *int
	Essential     *bool
	Autopay       *bool
	PayeeHint     *string
}

// TemplateUpdate is the outcome of UpdateTemplateTx.
type TemplateUpdate struct {
	Template core.Template `json:"template"`
	Changes  core.Diff     `json:"changes"`
}

func normaliseTemplate(t core.Template) core.Template {
	t.Name = strings.TrimSpace(t.Name)
	t.Category = strings.TrimSpace(t.Category)
	t.PayeeHint = strings.TrimSpace(t.PayeeHint)
	return t
}

// CreateTemplateTx stores a new active template.
func (l *Ledger) CreateTemplateTx(ctx context.Context, q *storage.Queries, t core.Template) (core.Template, error) {
	t = normaliseTemplate(t)
	t.Active = true
	if err := t.Validate(); err != nil {
		return core.Template{}, err
	}
	created, err := q.CreateTemplate(ctx, t)
	if err != nil {
		return core.Template{}, err
	}
	slog.InfoContext(ctx, "Template created",
		"template_id", created.ID,
		"name", created.Name,
		"amount_cents", created.AmountDefault.Cents,
		"due_day", created.DueDay)
	return created, nil
}

// UpdateTemplateTx edits a template. Existing instances keep their snapshot
// until templates are explicitly applied to their month.
func (l *Ledger) UpdateTemplateTx(ctx context.Context, q *storage.Queries, id int64, patch TemplatePatch) (TemplateUpdate, error) {
	current, err := q.GetTemplate(ctx, id)
	if err != nil {
		return TemplateUpdate{}, err
	}

	next := current
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	if patch.AmountDefault != nil {
		next.AmountDefault = *patch.AmountDefault
	}
	if patch.DueDay != nil {
		next.DueDay = *patch.DueDay
	}
	if patch.Essential != nil {
		next.Essential = *patch.Essential
	}
	if patch.Autopay != nil {
		next.Autopay = *patch.Autopay
	}
	if patch.PayeeHint != nil {
		next.PayeeHint = *patch.PayeeHint
	}
	next = normaliseTemplate(next)
	if err := next.Validate(); err != nil {
		return TemplateUpdate{}, err
	}

	diff := core.Diff{}
	diff.Set("name", current.Name, next.Name)
	diff.Set("category", current.Category, next.Category)
	diff.Set("amount_default", current.AmountDefault, next.AmountDefault)
	diff.Set("due_day", current.DueDay, next.DueDay)
	diff.Set("essential", current.Essential, next.Essential)
	diff.Set("autopay", current.Autopay, next.Autopay)
	diff.Set("payee_hint", current.PayeeHint, next.PayeeHint)
	if diff.Empty() {
		return TemplateUpdate{Template: current, Changes: diff}, nil
	}

	if err := q.UpdateTemplate(ctx, next); err != nil {
		return TemplateUpdate{}, err
	}
	updated, err := q.GetTemplate(ctx, id)
	if err != nil {
		return TemplateUpdate{}, err
	}
	return TemplateUpdate{Template: updated, Changes: diff}, nil
}

// SetTemplateArchivedTx archives (or restores) a template. Archived templates
// get no new instances; existing ones are kept.
func (l *Ledger) SetTemplateArchivedTx(ctx context.Context, q *storage.Queries, id int64, archived bool) (core.Template, error) {
	t, err := q.GetTemplate(ctx, id)
	if err != nil {
		return core.Template{}, err
	}
	if t.Active == !archived {
		return t, nil
	}
	t.Active = !archived
	if err := q.UpdateTemplate(ctx, t); err != nil {
		return core.Template{}, err
	}
	return q.GetTemplate(ctx, id)
}

// Templates lists templates, archived ones included on request.
func (l *Ledger) Templates(ctx context.Context, includeArchived bool) ([]core.Template, error) {
	templates, err := l.repo.Queries().ListTemplates(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []core.Template{}
	}
	return templates, nil
}
