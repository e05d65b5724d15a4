package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RolloverProcessor prepares a month once it starts: its instances exist
// and auto-contributing funds got their contribution.
type RolloverProcessor struct {
	ledger *Ledger
	funds  *Funds
}

// RolloverResult summarises one ProcessMonth run.
type RolloverResult struct {
	Year          int `json:"year"`
	Month         int `json:"month"`
	Created       int `json:"created"`
	Contributions int `json:"contributions"`
}

func NewRolloverProcessor(ledger *Ledger, funds *Funds) *RolloverProcessor {
	return &RolloverProcessor{ledger: ledger, funds: funds}
}

// ProcessMonth runs the rollover for the month containing now. Running it
// again in the same month does nothing.
func (p *RolloverProcessor) ProcessMonth(ctx context.Context, now time.Time) (RolloverResult, error) {
	if p.ledger == nil || p.funds == nil {
		return RolloverResult{}, fmt.Errorf("processor not properly initialized")
	}
	res := RolloverResult{Year: now.Year(), Month: int(now.Month())}

	slog.InfoContext(ctx, "Processing month rollover",
		"year", res.Year,
		"month", res.Month)

	created, err := p.ledger.EnsureMonth(ctx, res.Year, res.Month)
	if err != nil {
		return res, fmt.Errorf("ensure month: %w", err)
	}
	res.Created = created

	contrib, err := p.funds.AutoContributeForMonth(ctx, res.Year, res.Month)
	if err != nil {
		return res, fmt.Errorf("auto contribute: %w", err)
	}
	res.Contributions = len(contrib.Contributions)

	slog.InfoContext(ctx, "Month rollover complete",
		"year", res.Year,
		"month", res.Month,
		"instances_created", res.Created,
		"contributions", res.Contributions)
	return res, nil
}
