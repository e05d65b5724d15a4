package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// RoutingKeyApplied is the routing key of committed action events.
	RoutingKeyApplied = "action.applied"

	typeActionRequest = "action.request"
)

// ErrMalformed marks a message that can never be processed; it is dropped.
var ErrMalformed = errors.New("malformed message")

// ActionRequest is an action envelope queued for the action worker. Body is
// the complete envelope, passed to the dispatcher unchanged.
type ActionRequest struct {
	ActionID string
	Type     string
	Body     json.RawMessage
}

// ParseActionRequest reads the envelope fields without interpreting the rest.
func ParseActionRequest(body []byte) (ActionRequest, error) {
	var env struct {
		ActionID string `json:"action_id"`
		Type     string `json:"type"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ActionRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ActionID == "" || env.Type == "" {
		return ActionRequest{}, fmt.Errorf("%w: action_id and type are required", ErrMalformed)
	}
	return ActionRequest{ActionID: env.ActionID, Type: env.Type, Body: body}, nil
}
