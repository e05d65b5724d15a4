package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	ActionOK    = "ok"
	ActionError = "error"
)

// ActionRecord is the stored outcome of an idempotent action.
type ActionRecord struct {
	ActionID  string          `json:"action_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Result    json.RawMessage `json:"result"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func (q *Queries) GetAction(ctx context.Context, actionID string) (ActionRecord, error) {
	var (
		rec             ActionRecord
		payload, result string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT action_id, type, payload, result, status, error, created_at
		FROM actions WHERE action_id = ?`, actionID,
	).Scan(&rec.ActionID, &rec.Type, &payload, &result, &rec.Status, &rec.Error, &rec.CreatedAt)
	if err != nil {
		return ActionRecord{}, notFound("action", actionID, err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.Result = json.RawMessage(result)
	return rec, nil
}

// InsertAction stores rec unless the id is already recorded; inserted reports which.
func (q *Queries) InsertAction(ctx context.Context, rec ActionRecord) (inserted bool, err error) {
	payload, result := string(rec.Payload), string(rec.Result)
	if payload == "" {
		payload = "{}"
	}
	if result == "" {
		result = "{}"
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO actions (action_id, type, payload, result, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (action_id) DO NOTHING`,
		rec.ActionID, rec.Type, payload, result, rec.Status, rec.Error)
	if err != nil {
		return false, fmt.Errorf("insert action %s: %w", rec.ActionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
