// Package advisor is the optional LLM bridge. It reads ledger state and asks
// a provider for text or action proposals. Proposals are returned to the
// client, which confirms them through the action dispatcher like any other
// input. The advisor never writes to the ledger: it reads months as they
// are stored and does not materialise missing instances.
package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bills/internal/cache"
	"bills/internal/metrics"
	"bills/internal/services"
)

const (
	TaskNudge   = "nudge"
	TaskPropose = "propose"
	TaskAsk     = "ask"
)

var validate = validator.New()

// Query is the body of an advisor request.
type Query struct {
	Task    string          `json:"task" validate:"required,oneof=nudge propose ask"`
	Payload json.RawMessage `json:"payload"`
}

// Response is returned for every query; failures are values, not errors.
type Response struct {
	OK       bool   `json:"ok"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	AuthURL  string `json:"auth_url,omitempty"`
	Fallback any    `json:"fallback,omitempty"`
}

type monthPayload struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
}

type proposePayload struct {
	Text  string `json:"text" validate:"required,max=2000"`
	Year  *int   `json:"year"`
	Month *int   `json:"month"`
}

type askPayload struct {
	Question string `json:"question" validate:"required,max=2000"`
	Year     *int   `json:"year"`
	Month    *int   `json:"month"`
}

// Config tunes an Advisor.
type Config struct {
	Retry    RetryPolicy
	AuthURL  string
	CacheTTL time.Duration
	CacheMax int
}

// Advisor answers advisor queries against the current ledger state.
type Advisor struct {
	provider Provider
	retry    RetryPolicy
	authURL  string
	cache    *cache.LRUCache[string]
	ledger   *services.Ledger
	funds    *services.Funds
}

func New(provider Provider, ledger *services.Ledger, funds *services.Funds, cfg Config) *Advisor {
	if provider == nil {
		provider = Disabled{}
	}
	if cfg.CacheMax <= 0 {
		cfg.CacheMax = 128
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Advisor{
		provider: provider,
		retry:    cfg.Retry,
		authURL:  cfg.AuthURL,
		cache:    cache.NewLRUCache[string](cfg.CacheMax, cfg.CacheTTL),
		ledger:   ledger,
		funds:    funds,
	}
}

// Cache exposes the response cache so it can be registered with a janitor.
func (a *Advisor) Cache() *cache.LRUCache[string] { return a.cache }

// Connected reports whether a real provider is configured.
func (a *Advisor) Connected() bool {
	_, disabled := a.provider.(Disabled)
	return !disabled
}

// Query runs one advisor task.
func (a *Advisor) Query(ctx context.Context, q Query) Response {
	if err := validate.Struct(q); err != nil {
		return Response{Error: fmt.Sprintf("unknown advisor task %q", q.Task)}
	}
	if len(q.Payload) == 0 || string(q.Payload) == "null" {
		q.Payload = json.RawMessage(`{}`)
	}

	var res Response
	switch q.Task {
	case TaskNudge:
		res = a.nudge(ctx, q.Payload)
	case TaskPropose:
		res = a.propose(ctx, q.Payload)
	case TaskAsk:
		res = a.ask(ctx, q.Payload)
	}
	return res
}

func (a *Advisor) nudge(ctx context.Context, payload json.RawMessage) Response {
	var p monthPayload
	if err := decodePayload(payload, &p); err != nil {
		return Response{Error: err.Error()}
	}
	view, err := a.monthView(ctx, p.Year, p.Month)
	if err != nil {
		return Response{Error: err.Error()}
	}

	fallback := map[string]string{"text": FallbackNudge(view.Summary)}
	user := "Write one or two encouraging sentences about this month of bills. " +
		"Mention what is left to pay and anything overdue. Plain text, no lists.\n\n" + describeMonth(view)
	text, err := a.complete(ctx, TaskNudge, user)
	if err != nil {
		res := a.failure(TaskNudge, err)
		res.Fallback = fallback
		return res
	}
	return Response{OK: true, Data: map[string]string{"text": strings.TrimSpace(text), "source": a.provider.Name()}}
}

func (a *Advisor) ask(ctx context.Context, payload json.RawMessage) Response {
	var p askPayload
	if err := decodePayload(payload, &p); err != nil {
		return Response{Error: err.Error()}
	}
	view, err := a.monthView(ctx, p.Year, p.Month)
	if err != nil {
		return Response{Error: err.Error()}
	}
	funds, err := a.funds.FundViews(ctx, false, a.ledger.Today())
	if err != nil {
		return Response{Error: err.Error()}
	}

	user := "Answer the question using only the data below. Be brief.\n\n" +
		describeMonth(view) + describeFunds(funds) + "\nQuestion: " + p.Question
	text, err := a.complete(ctx, TaskAsk, user)
	if err != nil {
		return a.failure(TaskAsk, err)
	}
	return Response{OK: true, Data: map[string]string{"answer": strings.TrimSpace(text)}}
}

// complete calls the provider through the cache and the retry policy.
func (a *Advisor) complete(ctx context.Context, task, user string) (string, error) {
	key := cacheKey(task, user)
	if text, ok := a.cache.Get(key); ok {
		metrics.AdvisorCalls.WithLabelValues(task, "cached").Inc()
		return text, nil
	}

	start := time.Now()
	text, attempts, err := a.retry.Do(ctx, func(ctx context.Context) (string, error) {
		return a.provider.Complete(ctx, systemPrompt, user)
	})
	metrics.AdvisorAttempts.Observe(float64(attempts))
	if err != nil {
		slog.WarnContext(ctx, "Advisor query failed",
			"task", task,
			"provider", a.provider.Name(),
			"attempts", attempts,
			"error", err)
		return "", err
	}

	metrics.AdvisorCalls.WithLabelValues(task, "ok").Inc()
	slog.InfoContext(ctx, "Advisor query answered",
		"task", task,
		"provider", a.provider.Name(),
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds())
	a.cache.Set(key, text)
	return text, nil
}

// failure maps a provider error to a labelled unavailable response.
func (a *Advisor) failure(task string, err error) Response {
	res := Response{Error: err.Error()}
	switch {
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrAuth):
		res.AuthURL = a.authURL
		metrics.AdvisorCalls.WithLabelValues(task, "unavailable").Inc()
	default:
		metrics.AdvisorCalls.WithLabelValues(task, "error").Inc()
	}
	return res
}

func (a *Advisor) monthView(ctx context.Context, year, month *int) (services.MonthView, error) {
	today := a.ledger.Today()
	y, m := today.Year(), today.Month()
	if year != nil {
		y = *year
	}
	if month != nil {
		m = *month
	}
	return a.ledger.ReadMonth(ctx, y, m, nil)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return fmt.Errorf("invalid payload: %s failed %s", strings.ToLower(errs[0].Field()), errs[0].Tag())
		}
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func cacheKey(task, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return task + ":" + hex.EncodeToString(sum[:])
}
