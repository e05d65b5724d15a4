package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bills/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func seedTemplate(t *testing.T, q *Queries, name string, cents int64, dueDay int) core.Template {
	t.Helper()
	tpl, err := q.CreateTemplate(context.Background(), core.Template{
		Name: name, Category: "home", AmountDefault: core.Money{Cents: cents}, DueDay: dueDay, Active: true, Essential: true,
	})
	require.NoError(t, err)
	return tpl
}

func TestMigrationsAreRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Reopening an up to date database is a no-op.
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestTemplateCRUD(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	tpl := seedTemplate(t, q, "Rent", 90000, 1)
	assert.NotZero(t, tpl.ID)
	assert.NotEmpty(t, tpl.CreatedAt)
	assert.True(t, tpl.Active)

	tpl.Name = "Rent (new lease)"
	tpl.Active = false
	require.NoError(t, q.UpdateTemplate(ctx, tpl))

	active, err := q.ListTemplates(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := q.ListTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Rent (new lease)", all[0].Name)

	_, err = q.GetTemplate(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, q.DeleteTemplate(ctx, 999), ErrNotFound)
}

func TestInsertInstanceIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()
	tpl := seedTemplate(t, q, "Power", 12000, 31)

	snap := tpl.Snapshot(2025, 2)
	id, created, err := q.InsertInstance(ctx, snap)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = q.InsertInstance(ctx, snap)
	require.NoError(t, err)
	assert.False(t, created)

	insts, err := q.ListInstances(ctx, 2025, 2)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, id, insts[0].ID)
	assert.Equal(t, "2025-02-28", insts[0].DueDate.String())
	require.NotNil(t, insts[0].TemplateID)
	assert.Equal(t, tpl.ID, *insts[0].TemplateID)

	ids, err := q.TemplateIDsInMonth(ctx, 2025, 2)
	require.NoError(t, err)
	assert.True(t, ids[tpl.ID])
}

func TestSumPaymentsGroupsByInstance(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()
	a := seedTemplate(t, q, "Rent", 10000, 1)
	b := seedTemplate(t, q, "Water", 3000, 15)

	idA, _, err := q.InsertInstance(ctx, a.Snapshot(2025, 3))
	require.NoError(t, err)
	idB, _, err := q.InsertInstance(ctx, b.Snapshot(2025, 3))
	require.NoError(t, err)

	for _, cents := range []int64{4000, 7000} {
		_, err := q.AddPayment(ctx, core.PaymentEvent{InstanceID: idA, Amount: core.Money{Cents: cents}, PaidDate: mustDate(t, "2025-03-02")})
		require.NoError(t, err)
	}

	sums, err := q.SumPayments(ctx, []int64{idA, idB})
	require.NoError(t, err)
	assert.Equal(t, int64(11000), sums[idA].Cents)
	_, ok := sums[idB]
	assert.False(t, ok)

	latest, err := q.LatestPayment(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), latest.Amount.Cents)

	count, total, err := q.DeletePayments(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(11000), total.Cents)

	_, err = q.LatestPayment(ctx, idA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInstancesFromKeepsHistory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	q := repo.Queries()
	tpl := seedTemplate(t, q, "Gym", 4000, 10)

	var ids []int64
	for _, month := range []int{1, 2, 3} {
		id, _, err := q.InsertInstance(ctx, tpl.Snapshot(2025, month))
		require.NoError(t, err)
		require.NoError(t, q.AddInstanceEvent(ctx, id, core.EventCreated, nil))
		ids = append(ids, id)
	}
	_, err := q.AddPayment(ctx, core.PaymentEvent{InstanceID: ids[2], Amount: core.Money{Cents: 4000}, PaidDate: mustDate(t, "2025-03-10")})
	require.NoError(t, err)

	err = repo.InTx(ctx, func(q *Queries) error {
		n, err := q.DeleteInstancesFrom(ctx, tpl.ID, 2025, 2)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2), n)
		return q.DeleteTemplate(ctx, tpl.ID)
	})
	require.NoError(t, err)

	jan, err := q.GetInstance(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, jan.TemplateID, "older instance is detached, not deleted")

	_, err = q.GetInstance(ctx, ids[1])
	assert.ErrorIs(t, err, ErrNotFound)

	payments, err := q.ListAllPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	events, err := q.ListAllInstanceEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ids[0], events[0].InstanceID)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(q *Queries) error {
		if _, err := q.CreateTemplate(ctx, core.Template{Name: "Phone", AmountDefault: core.Money{Cents: 2000}, DueDay: 5, Active: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := repo.Queries().ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestActivityJoinsInstance(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()
	tpl := seedTemplate(t, q, "Internet", 3000, 20)
	id, _, err := q.InsertInstance(ctx, tpl.Snapshot(2025, 5))
	require.NoError(t, err)

	require.NoError(t, q.AddInstanceEvent(ctx, id, core.EventCreated, nil))
	diff := core.Diff{}
	diff.Set("amount", core.Money{Cents: 3000}, core.Money{Cents: 3500})
	require.NoError(t, q.AddInstanceEvent(ctx, id, core.EventEdited, diff))

	activity, err := q.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, core.EventEdited, activity[0].EventType)
	assert.Equal(t, "Internet", activity[0].InstanceName)
	assert.JSONEq(t, `{"amount":{"from":30.00,"to":35.00}}`, string(activity[0].Detail))
	assert.JSONEq(t, `{}`, string(activity[1].Detail))
}

func TestFundsAndBalances(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	fund, err := q.CreateFund(ctx, core.SinkingFund{
		Name: "Car insurance", Target: core.Money{Cents: 60000}, DueDate: mustDate(t, "2026-03-31"),
		Cadence: core.Yearly, AutoContribute: true, Active: true,
	})
	require.NoError(t, err)

	events := []core.SinkingEvent{
		{FundID: fund.ID, Kind: core.Contribution, Amount: core.Money{Cents: 5000}, EventDate: mustDate(t, "2025-10-01")},
		{FundID: fund.ID, Kind: core.Withdrawal, Amount: core.Money{Cents: -8000}, EventDate: mustDate(t, "2025-10-15")},
	}
	for _, e := range events {
		_, err := q.AddSinkingEvent(ctx, e)
		require.NoError(t, err)
	}

	balance, err := q.FundBalance(ctx, fund.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-3000), balance.Cents, "balances may go negative")

	balances, err := q.FundBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, balance, balances[fund.ID])

	has, err := q.HasContributionInMonth(ctx, fund.ID, 2025, 10)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = q.HasContributionInMonth(ctx, fund.ID, 2025, 11)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	ms, err := q.GetMonthSettings(ctx, 2025, 6)
	require.NoError(t, err)
	assert.False(t, ms.EssentialsOnly)

	require.NoError(t, q.UpsertMonthSettings(ctx, core.MonthSettings{Year: 2025, Month: 6, EssentialsOnly: true, Note: "tight"}))
	ms, err = q.GetMonthSettings(ctx, 2025, 6)
	require.NoError(t, err)
	assert.True(t, ms.EssentialsOnly)
	assert.Equal(t, "tight", ms.Note)

	prev, err := q.SetSetting(ctx, "currency", "USD")
	require.NoError(t, err)
	assert.Equal(t, "EUR", prev, "seeded by migration")

	settings, err := q.ListSettings(ctx)
	require.NoError(t, err)
	assert.Contains(t, settings, Setting{Key: "currency", Value: "USD"})
}

func TestInsertActionOnce(t *testing.T) {
	ctx := context.Background()
	q := newTestRepo(t).Queries()

	rec := ActionRecord{
		ActionID: "a-1", Type: "MARK_PAID", Status: ActionOK,
		Payload: json.RawMessage(`{"instance_id":1}`), Result: json.RawMessage(`{"ok":true}`),
	}
	inserted, err := q.InsertAction(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	rec.Result = json.RawMessage(`{"ok":false}`)
	inserted, err = q.InsertAction(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := q.GetAction(ctx, "a-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	assert.Equal(t, "MARK_PAID", got.Type)

	_, err = q.GetAction(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestRepo(t)
	q := src.Queries()

	rent := seedTemplate(t, q, "Rent", 10000, 31)
	power := seedTemplate(t, q, "Power", 5000, 5)
	rentID, _, err := q.InsertInstance(ctx, rent.Snapshot(2025, 2))
	require.NoError(t, err)
	_, _, err = q.InsertInstance(ctx, power.Snapshot(2025, 2))
	require.NoError(t, err)
	for _, cents := range []int64{4000, 7000} {
		_, err := q.AddPayment(ctx, core.PaymentEvent{InstanceID: rentID, Amount: core.Money{Cents: cents}, PaidDate: mustDate(t, "2025-02-03")})
		require.NoError(t, err)
	}
	require.NoError(t, q.AddInstanceEvent(ctx, rentID, core.EventLogUpdate, map[string]any{"amount": 40}))
	fund, err := q.CreateFund(ctx, core.SinkingFund{Name: "Gifts", Target: core.Money{Cents: 30000}, DueDate: mustDate(t, "2025-12-15"), Cadence: core.Yearly, Active: true})
	require.NoError(t, err)
	_, err = q.AddSinkingEvent(ctx, core.SinkingEvent{FundID: fund.ID, Kind: core.Contribution, Amount: core.Money{Cents: 2500}, EventDate: mustDate(t, "2025-02-01")})
	require.NoError(t, err)
	require.NoError(t, q.UpsertMonthSettings(ctx, core.MonthSettings{Year: 2025, Month: 2, EssentialsOnly: true}))
	_, err = q.SetSetting(ctx, "currency", "USD")
	require.NoError(t, err)

	exported, err := src.Export(ctx)
	require.NoError(t, err)
	raw, err := json.Marshal(exported)
	require.NoError(t, err)

	var doc Backup
	require.NoError(t, json.Unmarshal(raw, &doc))

	dst := newTestRepo(t)
	report, err := dst.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted["templates"])
	assert.Equal(t, 2, report.Inserted["instances"])
	assert.Equal(t, 2, report.Inserted["payment_events"])
	assert.Equal(t, 1, report.Updated["settings"], "currency overrides the seeded default")
	assert.Equal(t, 2, report.Skipped["settings"])

	settings, err := dst.Queries().ListSettings(ctx)
	require.NoError(t, err)
	assert.Contains(t, settings, Setting{Key: "currency", Value: "USD"})

	reexported, err := dst.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, reexported.Templates, len(exported.Templates))
	assert.Len(t, reexported.PaymentEvents, len(exported.PaymentEvents))
	assert.Len(t, reexported.InstanceEvents, len(exported.InstanceEvents))
	assert.Len(t, reexported.SinkingEvents, len(exported.SinkingEvents))
	assert.Equal(t, exported.MonthSettings, reexported.MonthSettings)
	require.Len(t, reexported.Instances, len(exported.Instances))
	for i := range exported.Instances {
		assert.Equal(t, exported.Instances[i].StatusDerived, reexported.Instances[i].StatusDerived)
		assert.Equal(t, exported.Instances[i].AmountPaid, reexported.Instances[i].AmountPaid)
		assert.Equal(t, exported.Instances[i].DueDate.String(), reexported.Instances[i].DueDate.String())
		assert.Equal(t, exported.Instances[i].CreatedAt, reexported.Instances[i].CreatedAt)
	}

	// A second import of the same document changes nothing.
	again, err := dst.Import(ctx, doc)
	require.NoError(t, err)
	assert.Empty(t, again.Inserted)
	assert.Empty(t, again.Updated)
	assert.Equal(t, 2, again.Skipped["templates"])
}

func TestImportRejectsInvalidRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	feb := mustDate(t, "2025-02-05")

	tests := []struct {
		name string
		doc  Backup
	}{
		{
			name: "zero payment",
			doc: Backup{
				SchemaVersion: repo.schemaVersion,
				Instances:     []core.Instance{{ID: 1, Year: 2025, Month: 2, Name: "Rent", Amount: core.Money{Cents: 100}, DueDate: feb}},
				PaymentEvents: []core.PaymentEvent{{ID: 1, InstanceID: 1, PaidDate: feb}},
			},
		},
		{
			name: "payment of a missing instance",
			doc: Backup{
				SchemaVersion: repo.schemaVersion,
				PaymentEvents: []core.PaymentEvent{{ID: 1, InstanceID: 42, Amount: core.Money{Cents: 100}, PaidDate: feb}},
			},
		},
		{
			name: "due day out of range",
			doc: Backup{
				SchemaVersion: repo.schemaVersion,
				Templates:     []core.Template{{ID: 1, Name: "Rent", DueDay: 40, Active: true}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Import(ctx, tt.doc)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), err.Error())
			assert.Contains(t, err.Error(), "invalid row")

			instances, err := repo.Queries().ListAllInstances(ctx)
			require.NoError(t, err)
			assert.Empty(t, instances, "a rejected import writes nothing")
		})
	}
}

func TestImportRejectsUnknownSchema(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Import(context.Background(), Backup{SchemaVersion: 99})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}
