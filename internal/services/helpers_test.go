package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bills/internal/core"
	"bills/internal/storage"
)

type fixture struct {
	repo   *storage.SQLiteRepository
	ledger *Ledger
	funds  *Funds
	clock  Clock
}

func fixedClock(year, month, day int) Clock {
	at := time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
	return Clock{Location: time.UTC, Now: func() time.Time { return at }}
}

func newFixture(t *testing.T, clock Clock) fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return fixture{repo: repo, ledger: NewLedger(repo, clock), funds: NewFunds(repo, clock), clock: clock}
}

// tx runs fn in a transaction and fails the test on error.
func (f fixture) tx(t *testing.T, fn func(q *storage.Queries) error) {
	t.Helper()
	require.NoError(t, f.repo.InTx(context.Background(), fn))
}

func (f fixture) template(t *testing.T, name string, cents int64, dueDay int, essential bool) core.Template {
	t.Helper()
	var tpl core.Template
	f.tx(t, func(q *storage.Queries) error {
		var err error
		tpl, err = f.ledger.CreateTemplateTx(context.Background(), q, core.Template{
			Name: name, Category: "bills", AmountDefault: core.Money{Cents: cents}, DueDay: dueDay, Essential: essential,
		})
		return err
	})
	return tpl
}

func date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }
