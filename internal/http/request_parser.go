// This file holds the helpers that read query strings, path values and
// JSON bodies.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bills/internal/core"
)

// maxBodyBytes bounds action and advisor bodies; backups get more room.
const (
	maxBodyBytes   = 1 << 20
	maxBackupBytes = 32 << 20
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from the query, defaulting to the
// month of today. Present but malformed values are rejected.
func ParseMonthParams(query url.Values, today core.Date) (MonthParams, error) {
	params := MonthParams{Year: today.Year(), Month: today.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, core.Invalid("year", "must be a number")
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, core.Invalid("month", "must be a number")
		}
		params.Month = m
	}
	if err := core.ValidateYearMonth(params.Year, params.Month); err != nil {
		return MonthParams{}, err
	}
	return params, nil
}

// ParseOptionalBool returns nil when key is absent.
func ParseOptionalBool(query url.Values, key string) (*bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, core.Invalid(key, "must be true or false")
	}
	return &b, nil
}

// ParseLimit reads a positive limit, capped at ceiling.
func ParseLimit(query url.Values, def, ceiling int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, core.Invalid("limit", "must be a positive number")
	}
	return min(n, ceiling), nil
}

// PathID reads a positive integer path value.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, core.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// ReadBody reads at most limit bytes of the request body.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.Invalid("", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// DecodeJSON reads a bounded JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body, err := ReadBody(w, r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return core.Invalid("", "malformed JSON body: %v", err)
	}
	return nil
}
