package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bills/internal/core"
)

// Setting is one free-form key/value preference.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetMonthSettings returns the settings of (year, month), or the defaults when none were saved.
func (q *Queries) GetMonthSettings(ctx context.Context, year, month int) (core.MonthSettings, error) {
	ms := core.MonthSettings{Year: year, Month: month}
	err := q.db.QueryRowContext(ctx,
		`SELECT essentials_only, note FROM month_settings WHERE year = ? AND month = ?`, year, month,
	).Scan(&ms.EssentialsOnly, &ms.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return ms, nil
	}
	if err != nil {
		return core.MonthSettings{}, fmt.Errorf("get month settings %04d-%02d: %w", year, month, err)
	}
	return ms, nil
}

func (q *Queries) UpsertMonthSettings(ctx context.Context, ms core.MonthSettings) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO month_settings (year, month, essentials_only, note)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month) DO UPDATE SET
		    essentials_only = excluded.essentials_only,
		    note = excluded.note`,
		ms.Year, ms.Month, ms.EssentialsOnly, ms.Note)
	if err != nil {
		return fmt.Errorf("upsert month settings %04d-%02d: %w", ms.Year, ms.Month, err)
	}
	return nil
}

func (q *Queries) ListMonthSettings(ctx context.Context) ([]core.MonthSettings, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT year, month, essentials_only, note FROM month_settings ORDER BY year, month`)
	if err != nil {
		return nil, fmt.Errorf("list month settings: %w", err)
	}
	defer rows.Close()

	var out []core.MonthSettings
	for rows.Next() {
		var ms core.MonthSettings
		if err := rows.Scan(&ms.Year, &ms.Month, &ms.EssentialsOnly, &ms.Note); err != nil {
			return nil, fmt.Errorf("scan month settings: %w", err)
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func (q *Queries) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetSetting stores value under key and returns the previous value ("" when new).
func (q *Queries) SetSetting(ctx context.Context, key, value string) (string, error) {
	var previous string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return "", fmt.Errorf("set setting %q: %w", key, err)
	}
	return previous, nil
}
