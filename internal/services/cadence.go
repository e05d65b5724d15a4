// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for sinking fund cadences.
// Each cadence (monthly, quarterly, yearly, custom) has its own strategy
// that knows how long one saving period lasts.

package services

import (
	"fmt"

	"bills/internal/core"
)

// CadenceStrategy is the strategy interface for a fund's saving period.
type CadenceStrategy interface {
	// PeriodMonths returns the length of one period of fund in months.
	PeriodMonths(fund core.SinkingFund) int
}

// FixedCadence implements CadenceStrategy for cadences with a built-in length.
type FixedCadence struct {
	Months int
}

func (c FixedCadence) PeriodMonths(core.SinkingFund) int { return c.Months }

// CustomCadence implements CadenceStrategy for funds carrying their own cadence_months.
type CustomCadence struct{}

func (CustomCadence) PeriodMonths(fund core.SinkingFund) int {
	if fund.CadenceMonths < 1 {
		return 1
	}
	return fund.CadenceMonths
}

// cadenceStrategies maps cadences to their strategies.
var cadenceStrategies = map[core.Cadence]CadenceStrategy{
	core.Monthly:   FixedCadence{Months: 1},
	core.Quarterly: FixedCadence{Months: 3},
	core.Yearly:    FixedCadence{Months: 12},
	core.Custom:    CustomCadence{},
}

// GetCadenceStrategy returns the strategy for a cadence.
// Returns an error if the cadence is not supported.
func GetCadenceStrategy(cadence core.Cadence) (CadenceStrategy, error) {
	strategy, ok := cadenceStrategies[cadence]
	if !ok {
		return nil, fmt.Errorf("unknown cadence: %s", cadence)
	}
	return strategy, nil
}

// RegisterCadenceStrategy allows registering strategies for new cadences.
func RegisterCadenceStrategy(cadence core.Cadence, strategy CadenceStrategy) {
	cadenceStrategies[cadence] = strategy
}

// NextDueDate rolls the fund's due date forward by one period, clamping the
// day of month like instance due dates.
func NextDueDate(fund core.SinkingFund) (core.Date, error) {
	strategy, err := GetCadenceStrategy(fund.Cadence)
	if err != nil {
		return core.Date{}, err
	}
	return core.AddMonthsToDate(fund.DueDate, strategy.PeriodMonths(fund)), nil
}
