package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bills/internal/actions"
	"bills/internal/core"
	"bills/internal/services"
)

const systemPrompt = "You are a calm assistant for a personal bill tracker. " +
	"Amounts are in the user's currency with two decimals. Never invent bills or figures."

// Proposal is an action the model suggests. It is never executed here.
type Proposal struct {
	ActionID string         `json:"action_id"`
	Type     string         `json:"type"`
	Summary  string         `json:"summary"`
	Action   map[string]any `json:"action"`
}

type proposalReply struct {
	Proposals []struct {
		Type    string         `json:"type"`
		Summary string         `json:"summary"`
		Fields  map[string]any `json:"fields"`
	} `json:"proposals"`
}

func (a *Advisor) propose(ctx context.Context, payload json.RawMessage) Response {
	var p proposePayload
	if err := decodePayload(payload, &p); err != nil {
		return Response{Error: err.Error()}
	}
	view, err := a.monthView(ctx, p.Year, p.Month)
	if err != nil {
		return Response{Error: err.Error()}
	}

	user := "Turn the request into ledger actions. Reply with JSON only, shaped as " +
		`{"proposals":[{"type":"...","summary":"...","fields":{...}}]}. ` +
		"Allowed types: " + strings.Join(actions.Types(), ", ") + ". " +
		"Refer to bills by instance_id and templates by template_id from the data below.\n\n" +
		describeMonth(view) + "\nRequest: " + p.Text
	text, err := a.complete(ctx, TaskPropose, user)
	if err != nil {
		return a.failure(TaskPropose, err)
	}

	proposals, dropped, err := ParseProposals(text)
	if err != nil {
		return a.failure(TaskPropose, err)
	}
	return Response{OK: true, Data: map[string]any{"proposals": proposals, "dropped": dropped}}
}

// ParseProposals extracts proposals from a model reply. Proposals with an
// unknown action type are dropped and counted. Each kept proposal gets a
// fresh action id so that confirming it twice applies it once.
func ParseProposals(text string) ([]Proposal, int, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, 0, fmt.Errorf("advisor reply is not JSON")
	}
	var reply proposalReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, 0, fmt.Errorf("decode advisor reply: %w", err)
	}

	proposals := make([]Proposal, 0, len(reply.Proposals))
	dropped := 0
	for _, item := range reply.Proposals {
		kind := strings.ToUpper(strings.TrimSpace(item.Type))
		if !actions.Known(kind) {
			dropped++
			continue
		}
		id := uuid.NewString()
		action := make(map[string]any, len(item.Fields)+2)
		for k, v := range item.Fields {
			action[k] = v
		}
		action["action_id"] = id
		action["type"] = kind
		proposals = append(proposals, Proposal{ActionID: id, Type: kind, Summary: item.Summary, Action: action})
	}
	return proposals, dropped, nil
}

// FallbackNudge is the deterministic nudge shown when no model answers.
func FallbackNudge(s core.MonthSummary) string {
	period := fmt.Sprintf("%04d-%02d", s.Year, s.Month)
	switch {
	case s.ItemCount == 0:
		return fmt.Sprintf("No bills scheduled for %s.", period)
	case s.FreeForMonth:
		return fmt.Sprintf("All %d bills for %s are covered. Nothing left to pay.", s.ItemCount, period)
	}

	left := s.PendingCount + s.PartialCount
	text := fmt.Sprintf("%d of %d bills left for %s, %s remaining.", left, s.ItemCount, period, s.Remaining)
	if s.OverdueCount > 0 {
		text += fmt.Sprintf(" %d overdue.", s.OverdueCount)
	}
	return text + fmt.Sprintf(" Setting aside %s a day covers the month.", s.NeedDailyPlanning)
}

func describeMonth(view services.MonthView) string {
	var b strings.Builder
	s := view.Summary
	fmt.Fprintf(&b, "Month %04d-%02d: required %s, paid %s, remaining %s, overdue %d.\n",
		view.Year, view.Month, s.Required, s.Paid, s.Remaining, s.OverdueCount)
	for _, inst := range view.Instances {
		tpl := "none"
		if inst.TemplateID != nil {
			tpl = fmt.Sprint(*inst.TemplateID)
		}
		fmt.Fprintf(&b, "- instance_id %d (template_id %s) %q due %s amount %s paid %s status %s\n",
			inst.ID, tpl, inst.Name, inst.DueDate, inst.Amount, inst.AmountPaid, inst.StatusDerived)
	}
	return b.String()
}

func describeFunds(funds []core.SinkingFundView) string {
	if len(funds) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sinking funds:\n")
	for _, f := range funds {
		fmt.Fprintf(&b, "- fund_id %d %q target %s balance %s due %s monthly %s status %s\n",
			f.ID, f.Name, f.Target, f.Balance, f.DueDate, f.MonthlyContrib, f.Status)
	}
	return b.String()
}
