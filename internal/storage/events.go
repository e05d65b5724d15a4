package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"bills/internal/core"
)

// ActivityEntry is an audit event joined with the instance it belongs to.
type ActivityEntry struct {
	core.InstanceEvent
	InstanceName string `json:"instance_name"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
}

// AddInstanceEvent appends an audit event. detail is marshalled to JSON; nil stores {}.
func (q *Queries) AddInstanceEvent(ctx context.Context, instanceID int64, eventType string, detail any) error {
	raw := []byte("{}")
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal %s event detail: %w", eventType, err)
		}
		raw = b
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO instance_events (instance_id, event_type, detail) VALUES (?, ?, ?)`,
		instanceID, eventType, string(raw))
	if err != nil {
		return fmt.Errorf("insert %s event for instance %d: %w", eventType, instanceID, err)
	}
	return nil
}

func scanInstanceEvent(row rowScanner, extra ...any) (core.InstanceEvent, error) {
	var (
		e      core.InstanceEvent
		detail string
	)
	dest := append([]any{&e.ID, &e.InstanceID, &e.EventType, &detail, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.InstanceEvent{}, err
	}
	e.Detail = json.RawMessage(detail)
	return e, nil
}

// ListInstanceEvents returns the history of one instance, oldest first.
func (q *Queries) ListInstanceEvents(ctx context.Context, instanceID int64) ([]core.InstanceEvent, error) {
	return q.listInstanceEvents(ctx, `
		SELECT id, instance_id, event_type, detail, created_at
		FROM instance_events WHERE instance_id = ? ORDER BY id`, instanceID)
}

func (q *Queries) ListAllInstanceEvents(ctx context.Context) ([]core.InstanceEvent, error) {
	return q.listInstanceEvents(ctx,
		`SELECT id, instance_id, event_type, detail, created_at FROM instance_events ORDER BY id`)
}

func (q *Queries) listInstanceEvents(ctx context.Context, query string, args ...any) ([]core.InstanceEvent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instance events: %w", err)
	}
	defer rows.Close()

	var out []core.InstanceEvent
	for rows.Next() {
		e, err := scanInstanceEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListActivity returns the most recent audit events across all instances.
func (q *Queries) ListActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT e.id, e.instance_id, e.event_type, e.detail, e.created_at, i.name, i.year, i.month
		FROM instance_events e
		JOIN instances i ON i.id = e.instance_id
		ORDER BY e.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var a ActivityEntry
		e, err := scanInstanceEvent(rows, &a.InstanceName, &a.Year, &a.Month)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.InstanceEvent = e
		out = append(out, a)
	}
	return out, rows.Err()
}
