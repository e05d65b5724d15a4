package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{40, 30 * time.Second}, // no overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial AMQP: connection refused"), true},
		{"amqp closed", fmt.Errorf("delivery channel closed: %w", amqp091.ErrClosed), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"handler error", errors.New("database is locked"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "bills", queueName: "bills.actions"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed initially")
		}
	})

	t.Run("failures open the circuit", func(t *testing.T) {
		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}
		if !client.isCircuitOpen() {
			t.Error("circuit breaker should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)
		if client.isCircuitOpen() {
			t.Error("circuit should let a publish through after the timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("state should be half-open")
		}
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 0)
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("state should be open again")
		}
	})

	t.Run("success resets", func(t *testing.T) {
		client.recordSuccess()
		if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("success should close the circuit and reset failures")
		}
	})
}

func TestClient_PublishActionRequest(t *testing.T) {
	client := &Client{exchangeName: "bills", queueName: "bills.actions"}
	body := []byte(`{"action_id":"a-1","type":"MARK_PAID","instance_id":3}`)

	t.Run("malformed envelope", func(t *testing.T) {
		err := client.PublishActionRequest(context.Background(), []byte(`{"type":"MARK_PAID"}`))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("circuit open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishActionRequest(context.Background(), body)
		if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Errorf("expected circuit breaker error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		client.recordSuccess()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishActionRequest(ctx, body); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestParseActionRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"action_id":"a-1","type":"MARK_PAID","instance_id":1}`, false},
		{"not json", `MARK_PAID`, true},
		{"missing id", `{"type":"MARK_PAID"}`, true},
		{"missing type", `{"action_id":"a-1"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseActionRequest([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.ActionID != "a-1" || req.Type != "MARK_PAID" || string(req.Body) != tt.body {
				t.Errorf("unexpected request %+v", req)
			}
		})
	}
}

type fakeAcknowledger struct {
	acked, requeued, dropped int
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked++; return nil }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.requeued++
	} else {
		a.dropped++
	}
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func TestHandleDelivery(t *testing.T) {
	valid := []byte(`{"action_id":"a-1","type":"SKIP_INSTANCE","instance_id":1}`)
	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		want       fakeAcknowledger
	}{
		{"handled", valid, nil, fakeAcknowledger{acked: 1}},
		{"malformed body", []byte(`{}`), nil, fakeAcknowledger{dropped: 1}},
		{"rejected by handler", valid, fmt.Errorf("%w: bad envelope", ErrMalformed), fakeAcknowledger{dropped: 1}},
		{"transient failure", valid, errors.New("database is locked"), fakeAcknowledger{requeued: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: tt.body},
				func(context.Context, ActionRequest) error { return tt.handlerErr })
			if *ack != tt.want {
				t.Errorf("acknowledgements = %+v, want %+v", *ack, tt.want)
			}
		})
	}
}
