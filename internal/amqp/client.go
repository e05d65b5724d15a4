package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"bills/internal/actions"
	"bills/internal/metrics"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Client publishes and consumes action messages on one durable direct
// exchange. Publishing goes through a circuit breaker so a broker outage
// fails fast instead of stalling the caller.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// the routing key of requests is the queue name
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// openChannel returns the live channel, reconnecting when it was closed.
func (c *Client) openChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

// PublishActionRequest queues an action envelope for the action worker.
func (c *Client) PublishActionRequest(ctx context.Context, body []byte) error {
	req, err := ParseActionRequest(body)
	if err != nil {
		return err
	}
	err = c.publish(ctx, c.queueName, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    req.ActionID,
		Type:         typeActionRequest,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published action request",
		"action_id", req.ActionID,
		"action_type", req.Type,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// ActionApplied publishes a committed action on the action.applied routing key.
func (c *Client) ActionApplied(ctx context.Context, event actions.AppliedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal applied event: %w", err)
	}
	return c.publish(ctx, RoutingKeyApplied, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ActionID,
		Type:         RoutingKeyApplied,
		Timestamp:    event.AppliedAt,
		Body:         body,
	})
}

func (c *Client) publish(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", routingKey)
	}

	ch, err := c.openChannel()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := ch.PublishWithContext(ctx, c.exchangeName, routingKey, false, false, msg); err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	c.recordSuccess()
	return nil
}

// Handler processes one action request. Returning an error wrapping
// ErrMalformed drops the message; any other error requeues it.
type Handler func(ctx context.Context, req ActionRequest) error

// ConsumeActionRequests delivers queued requests to handler with manual
// acknowledgement until ctx is done. A lost connection is re-established
// with exponential backoff.
func (c *Client) ConsumeActionRequests(ctx context.Context, handler Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"attempt", attempt+1,
			"wait", wait,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consume(ctx context.Context, handler Handler) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	slog.InfoContext(ctx, "Started consuming action requests", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed: %w", amqp091.ErrClosed)
			}
			handleDelivery(ctx, d, handler)
		}
	}
}

// handleDelivery acks, drops or requeues one delivery.
func handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	req, err := ParseActionRequest(d.Body)
	if err == nil {
		err = handler(ctx, req)
	}

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			slog.ErrorContext(ctx, "Failed to ack message", "error", ackErr)
		}
		metrics.QueueMessages.WithLabelValues("acked").Inc()
	case errors.Is(err, ErrMalformed):
		slog.ErrorContext(ctx, "Dropping action request",
			"message_id", d.MessageId,
			"error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", nackErr)
		}
		metrics.QueueMessages.WithLabelValues("dropped").Inc()
	default:
		slog.ErrorContext(ctx, "Action request failed, requeueing",
			"action_id", req.ActionID,
			"action_type", req.Type,
			"error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", nackErr)
		}
		metrics.QueueMessages.WithLabelValues("requeued").Inc()
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isCircuitOpen reports whether publishing is blocked. An open circuit moves
// to half-open once openTimeout has passed, letting one publish through.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
