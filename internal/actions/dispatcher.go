package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"bills/internal/core"
	"bills/internal/metrics"
	"bills/internal/services"
	"bills/internal/storage"
)

// errReplay aborts the transaction when another execution already recorded the id.
var errReplay = errors.New("action already recorded")

// Result is the response of one action, fresh or replayed.
type Result struct {
	OK       bool            `json:"ok"`
	ActionID string          `json:"action_id"`
	Type     string          `json:"type"`
	Replayed bool            `json:"replayed"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AppliedEvent describes an action committed to the ledger.
type AppliedEvent struct {
	ActionID  string          `json:"action_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Notifier is told about every committed action. Replays are not notified.
type Notifier interface {
	ActionApplied(ctx context.Context, event AppliedEvent) error
}

// Dispatcher is the single mutation entrypoint of the ledger. Every action
// is keyed by a client-supplied id and runs at most once.
type Dispatcher struct {
	repo     *storage.SQLiteRepository
	ledger   *services.Ledger
	funds    *services.Funds
	notifier Notifier
}

func NewDispatcher(repo *storage.SQLiteRepository, ledger *services.Ledger, funds *services.Funds) *Dispatcher {
	return &Dispatcher{repo: repo, ledger: ledger, funds: funds}
}

// WithNotifier sets the notifier called after each committed action.
func (d *Dispatcher) WithNotifier(n Notifier) *Dispatcher {
	d.notifier = n
	return d
}

// Types lists the known action types in order.
func Types() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Known reports whether t is a registered action type.
func Known(t string) bool {
	_, ok := registry[t]
	return ok
}

// IsClientError reports failures caused by the request rather than the system.
func IsClientError(err error) bool {
	return core.IsValidation(err) || errors.Is(err, storage.ErrNotFound) || errors.Is(err, core.ErrConflict)
}

// Lookup returns the stored record of an action.
func (d *Dispatcher) Lookup(ctx context.Context, actionID string) (storage.ActionRecord, error) {
	return d.repo.Queries().GetAction(ctx, actionID)
}

// Execute runs one action envelope.
//
// A known action id returns the stored outcome without running anything.
// Client failures are recorded and returned as a Result with OK false; the
// returned error is reserved for malformed envelopes and internal faults,
// which are not recorded so that a retry can succeed.
func (d *Dispatcher) Execute(ctx context.Context, raw []byte) (Result, error) {
	start := time.Now()

	var env envelope
	if err := decode(raw, &env); err != nil {
		metrics.ActionsTotal.WithLabelValues("unknown", metrics.OutcomeRejected).Inc()
		return Result{}, err
	}
	label := env.Type
	if !Known(label) {
		label = "unknown"
	}
	defer func() {
		metrics.ActionDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	rec, err := d.repo.Queries().GetAction(ctx, env.ActionID)
	switch {
	case err == nil:
		return d.replay(ctx, label, rec), nil
	case !errors.Is(err, storage.ErrNotFound):
		metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeInternal).Inc()
		return Result{}, fmt.Errorf("look up action %s: %w", env.ActionID, err)
	}

	var data json.RawMessage
	err = d.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetAction(ctx, env.ActionID); err == nil {
			return errReplay
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		newRequest, ok := registry[env.Type]
		if !ok {
			return core.Invalid("type", "unknown action type %q", env.Type)
		}
		req := newRequest()
		if err := decode(raw, req); err != nil {
			return err
		}
		out, err := req.run(ctx, d, q)
		if err != nil {
			return err
		}
		if data, err = json.Marshal(out); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}

		inserted, err := q.InsertAction(ctx, storage.ActionRecord{
			ActionID: env.ActionID,
			Type:     env.Type,
			Payload:  raw,
			Result:   data,
			Status:   storage.ActionOK,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errReplay
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeOK).Inc()
		slog.InfoContext(ctx, "Action applied",
			"action_id", env.ActionID,
			"action_type", env.Type,
			"duration_ms", time.Since(start).Milliseconds())
		res := Result{OK: true, ActionID: env.ActionID, Type: env.Type, Data: data}
		d.notify(ctx, res)
		return res, nil

	case errors.Is(err, errReplay):
		return d.replayStored(ctx, label, env.ActionID)

	case IsClientError(err):
		return d.recordFailure(ctx, label, env, raw, err)

	default:
		metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeInternal).Inc()
		slog.ErrorContext(ctx, "Action failed",
			"action_id", env.ActionID,
			"action_type", env.Type,
			"error", err)
		return Result{}, fmt.Errorf("execute %s %s: %w", env.Type, env.ActionID, err)
	}
}

// recordFailure stores a client failure after the rollback so that the same
// id keeps failing the same way.
func (d *Dispatcher) recordFailure(ctx context.Context, label string, env envelope, raw []byte, cause error) (Result, error) {
	inserted, err := d.repo.Queries().InsertAction(ctx, storage.ActionRecord{
		ActionID: env.ActionID,
		Type:     env.Type,
		Payload:  raw,
		Status:   storage.ActionError,
		Error:    cause.Error(),
	})
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeInternal).Inc()
		return Result{}, fmt.Errorf("record failed action %s: %w", env.ActionID, err)
	}
	if !inserted {
		return d.replayStored(ctx, label, env.ActionID)
	}

	metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeRejected).Inc()
	slog.WarnContext(ctx, "Action rejected",
		"action_id", env.ActionID,
		"action_type", env.Type,
		"error", cause)
	return Result{ActionID: env.ActionID, Type: env.Type, Error: cause.Error()}, nil
}

func (d *Dispatcher) replayStored(ctx context.Context, label, actionID string) (Result, error) {
	rec, err := d.repo.Queries().GetAction(ctx, actionID)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeInternal).Inc()
		return Result{}, fmt.Errorf("load recorded action %s: %w", actionID, err)
	}
	return d.replay(ctx, label, rec), nil
}

func (d *Dispatcher) replay(ctx context.Context, label string, rec storage.ActionRecord) Result {
	metrics.ActionsTotal.WithLabelValues(label, metrics.OutcomeReplayed).Inc()
	slog.InfoContext(ctx, "Action replayed",
		"action_id", rec.ActionID,
		"action_type", rec.Type,
		"status", rec.Status)
	res := Result{ActionID: rec.ActionID, Type: rec.Type, Replayed: true}
	if rec.Status == storage.ActionOK {
		res.OK = true
		res.Data = rec.Result
	} else {
		res.Error = rec.Error
	}
	return res
}

func (d *Dispatcher) notify(ctx context.Context, res Result) {
	if d.notifier == nil {
		return
	}
	err := d.notifier.ActionApplied(ctx, AppliedEvent{
		ActionID:  res.ActionID,
		Type:      res.Type,
		Data:      res.Data,
		AppliedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to publish applied action",
			"action_id", res.ActionID,
			"error", err)
	}
}
