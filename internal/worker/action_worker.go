package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bills/internal/actions"
	"bills/internal/amqp"
	"bills/internal/core"
)

// Executor runs one action envelope.
type Executor interface {
	Execute(ctx context.Context, raw []byte) (actions.Result, error)
}

// ActionWorker applies queued action requests through the dispatcher.
// Redelivered messages are harmless: the dispatcher replays known ids.
type ActionWorker struct {
	exec Executor
}

func NewActionWorker(exec Executor) *ActionWorker {
	return &ActionWorker{exec: exec}
}

// HandleActionRequest executes one request. A rejected action is recorded by
// the dispatcher and acknowledged; a malformed envelope is dropped; internal
// failures are returned so the message is requeued.
func (w *ActionWorker) HandleActionRequest(ctx context.Context, req amqp.ActionRequest) error {
	slog.InfoContext(ctx, "Processing action request",
		"action_id", req.ActionID,
		"action_type", req.Type)

	res, err := w.exec.Execute(ctx, req.Body)
	if err != nil {
		if core.IsValidation(err) {
			return fmt.Errorf("%w: %v", amqp.ErrMalformed, err)
		}
		return fmt.Errorf("execute action %s: %w", req.ActionID, err)
	}

	switch {
	case !res.OK:
		slog.WarnContext(ctx, "Queued action rejected",
			"action_id", res.ActionID,
			"action_type", res.Type,
			"replayed", res.Replayed,
			"error", res.Error)
	case res.Replayed:
		slog.InfoContext(ctx, "Queued action already applied",
			"action_id", res.ActionID,
			"action_type", res.Type)
	default:
		slog.InfoContext(ctx, "Queued action applied",
			"action_id", res.ActionID,
			"action_type", res.Type)
	}
	return nil
}
