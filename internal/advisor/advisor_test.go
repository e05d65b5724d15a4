package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bills/internal/core"
	"bills/internal/services"
	"bills/internal/storage"
)

type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, _, user string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	p.prompts = append(p.prompts, user)
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return p.replies[len(p.replies)-1], nil
}

func newAdvisor(t *testing.T, provider Provider) *Advisor {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	at := time.Date(2025, time.February, 20, 9, 0, 0, 0, time.UTC)
	clock := services.Clock{Location: time.UTC, Now: func() time.Time { return at }}
	ledger := services.NewLedger(repo, clock)
	require.NoError(t, repo.InTx(context.Background(), func(q *storage.Queries) error {
		_, err := ledger.CreateTemplateTx(context.Background(), q, core.Template{
			Name: "Rent", AmountDefault: core.Money{Cents: 80000}, DueDay: 5, Essential: true,
		})
		return err
	}))
	_, err = ledger.EnsureMonth(context.Background(), 2025, 2)
	require.NoError(t, err)

	return New(provider, ledger, services.NewFunds(repo, clock), Config{
		Retry:   RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, AttemptTimeout: time.Second},
		AuthURL: "https://example.test/connect",
	})
}

func TestNudgeUsesProviderAndCache(t *testing.T) {
	p := &fakeProvider{replies: []string{"  Rent is the last one left.  "}}
	a := newAdvisor(t, p)
	q := Query{Task: TaskNudge, Payload: json.RawMessage(`{"year":2025,"month":2}`)}

	res := a.Query(context.Background(), q)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, map[string]string{"text": "Rent is the last one left.", "source": "fake"}, res.Data)
	assert.Contains(t, p.prompts[0], `"Rent" due 2025-02-05`)

	res = a.Query(context.Background(), q)
	require.True(t, res.OK)
	assert.Equal(t, 1, p.calls, "second nudge served from cache")
	assert.Equal(t, 1, a.Cache().Size())
}

func TestNudgeFallsBackWhenDisabled(t *testing.T) {
	a := newAdvisor(t, nil)
	assert.False(t, a.Connected())

	res := a.Query(context.Background(), Query{Task: TaskNudge})
	assert.False(t, res.OK)
	assert.Equal(t, ErrNotConfigured.Error(), res.Error)
	assert.Equal(t, "https://example.test/connect", res.AuthURL)
	assert.Equal(t, map[string]string{
		"text": "1 of 1 bills left for 2025-02, 800.00 remaining. 1 overdue. Setting aside 26.32 a day covers the month.",
	}, res.Fallback)
}

func TestQueriesDoNotMaterialiseMonths(t *testing.T) {
	p := &fakeProvider{replies: []string{"Nothing due yet."}}
	a := newAdvisor(t, p)

	for _, q := range []Query{
		{Task: TaskNudge, Payload: json.RawMessage(`{"year":2025,"month":3}`)},
		{Task: TaskAsk, Payload: json.RawMessage(`{"question":"Anything due?","year":2025,"month":3}`)},
	} {
		res := a.Query(context.Background(), q)
		require.True(t, res.OK, res.Error)
	}

	view, err := a.ledger.ReadMonth(context.Background(), 2025, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Instances, "advisor must not create instances")
}

func TestRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{errors.New("timeout"), errors.New("502")},
		replies: []string{"", "", "Pay rent."},
	}
	a := newAdvisor(t, p)

	res := a.Query(context.Background(), Query{Task: TaskAsk, Payload: json.RawMessage(`{"question":"What next?"}`)})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, map[string]string{"answer": "Pay rent."}, res.Data)
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	p := &fakeProvider{errs: []error{ErrAuth}, replies: []string{"unused"}}
	a := newAdvisor(t, p)

	res := a.Query(context.Background(), Query{Task: TaskAsk, Payload: json.RawMessage(`{"question":"Hi"}`)})
	assert.False(t, res.OK)
	assert.Equal(t, 1, p.calls)
	assert.NotEmpty(t, res.AuthURL)
}

func TestProposeReturnsValidatedProposals(t *testing.T) {
	reply := "Sure:\n```json\n" + `{"proposals":[
		{"type":"mark_paid","summary":"Pay rent","fields":{"instance_id":1}},
		{"type":"DELETE_EVERYTHING","summary":"nope","fields":{}}
	]}` + "\n```"
	a := newAdvisor(t, &fakeProvider{replies: []string{reply}})

	res := a.Query(context.Background(), Query{Task: TaskPropose, Payload: json.RawMessage(`{"text":"I paid the rent"}`)})
	require.True(t, res.OK, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, 1, data["dropped"])
	proposals := data["proposals"].([]Proposal)
	require.Len(t, proposals, 1)
	assert.Equal(t, "MARK_PAID", proposals[0].Type)
	assert.NotEmpty(t, proposals[0].ActionID)
	assert.Equal(t, proposals[0].ActionID, proposals[0].Action["action_id"])
	assert.Equal(t, float64(1), proposals[0].Action["instance_id"])
}

func TestProposeRejectsNonJSON(t *testing.T) {
	a := newAdvisor(t, &fakeProvider{replies: []string{"I cannot help with that."}})
	res := a.Query(context.Background(), Query{Task: TaskPropose, Payload: json.RawMessage(`{"text":"hello"}`)})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "not JSON")
}

func TestQueryValidation(t *testing.T) {
	a := newAdvisor(t, &fakeProvider{replies: []string{"x"}})

	tests := []struct {
		name    string
		query   Query
		wantErr string
	}{
		{"unknown task", Query{Task: "forecast"}, `unknown advisor task "forecast"`},
		{"missing text", Query{Task: TaskPropose, Payload: json.RawMessage(`{}`)}, "text failed required"},
		{"bad month", Query{Task: TaskNudge, Payload: json.RawMessage(`{"month":14}`)}, "invalid month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Query(context.Background(), tt.query)
			assert.False(t, res.OK)
			assert.Contains(t, res.Error, tt.wantErr)
		})
	}
}

func TestFallbackNudge(t *testing.T) {
	tests := []struct {
		name    string
		summary core.MonthSummary
		want    string
	}{
		{
			name:    "empty month",
			summary: core.MonthSummary{Year: 2025, Month: 3},
			want:    "No bills scheduled for 2025-03.",
		},
		{
			name:    "all covered",
			summary: core.MonthSummary{Year: 2025, Month: 3, ItemCount: 4, PaidCount: 4, FreeForMonth: true},
			want:    "All 4 bills for 2025-03 are covered. Nothing left to pay.",
		},
		{
			name: "some left",
			summary: core.MonthSummary{
				Year: 2025, Month: 3, ItemCount: 3, PendingCount: 1, PartialCount: 1,
				Remaining: core.Money{Cents: 4550}, NeedDailyPlanning: core.Money{Cents: 150},
			},
			want: "2 of 3 bills left for 2025-03, 45.50 remaining. Setting aside 1.50 a day covers the month.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackNudge(tt.summary); got != tt.want {
				t.Errorf("FallbackNudge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryPolicyStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, attempts, err := policy.Do(ctx, func(context.Context) (string, error) {
		calls++
		return "", errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}
