package services

import (
	"testing"

	"bills/internal/core"
)

func TestGetCadenceStrategy(t *testing.T) {
	tests := []struct {
		name    string
		fund    core.SinkingFund
		want    int
		wantErr bool
	}{
		{name: "monthly", fund: core.SinkingFund{Cadence: core.Monthly}, want: 1},
		{name: "quarterly", fund: core.SinkingFund{Cadence: core.Quarterly}, want: 3},
		{name: "yearly", fund: core.SinkingFund{Cadence: core.Yearly}, want: 12},
		{name: "custom", fund: core.SinkingFund{Cadence: core.Custom, CadenceMonths: 18}, want: 18},
		{name: "custom without months", fund: core.SinkingFund{Cadence: core.Custom}, want: 1},
		{name: "unknown", fund: core.SinkingFund{Cadence: "fortnightly"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := GetCadenceStrategy(tt.fund.Cadence)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown cadence")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strategy.PeriodMonths(tt.fund); got != tt.want {
				t.Errorf("PeriodMonths() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name string
		fund core.SinkingFund
		want string
	}{
		{
			name: "monthly clamps to february",
			fund: core.SinkingFund{Cadence: core.Monthly, DueDate: core.NewDate(2025, 1, 31)},
			want: "2025-02-28",
		},
		{
			name: "quarterly",
			fund: core.SinkingFund{Cadence: core.Quarterly, DueDate: core.NewDate(2025, 11, 30)},
			want: "2026-02-28",
		},
		{
			name: "yearly leap day",
			fund: core.SinkingFund{Cadence: core.Yearly, DueDate: core.NewDate(2024, 2, 29)},
			want: "2025-02-28",
		},
		{
			name: "custom",
			fund: core.SinkingFund{Cadence: core.Custom, CadenceMonths: 6, DueDate: core.NewDate(2025, 8, 31)},
			want: "2026-02-28",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDueDate(tt.fund)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("NextDueDate() = %s, want %s", got, tt.want)
			}
		})
	}
}

type doubleCadence struct{}

func (doubleCadence) PeriodMonths(core.SinkingFund) int { return 24 }

func TestRegisterCadenceStrategy(t *testing.T) {
	const biennial core.Cadence = "biennial"
	RegisterCadenceStrategy(biennial, doubleCadence{})
	t.Cleanup(func() { delete(cadenceStrategies, biennial) })

	got, err := NextDueDate(core.SinkingFund{Cadence: biennial, DueDate: core.NewDate(2025, 3, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2027-03-01" {
		t.Errorf("NextDueDate() = %s", got)
	}
}
