package audit

import (
	"fmt"
	"strings"

	"opsflow/internal/models"
)

// Summary is the compact human-facing view of a run trace: counts, the final
// decision and the reason codes that drove it. It is a pure, deterministic
// function of the trace.
type Summary struct {
	RunID           string   `json:"runId"`
	EventType       string   `json:"eventType"`
	Decision        string   `json:"decision"`
	RulesEvaluated  int      `json:"rulesEvaluated"`
	RulesMatched    int      `json:"rulesMatched"`
	ActionsExecuted int      `json:"actionsExecuted"`
	ActionsFailed   int      `json:"actionsFailed"`
	ActionsSkipped  int      `json:"actionsSkipped"`
	ReasonCodes     []string `json:"reasonCodes"`
}

// Summarize derives a Summary from a run trace.
func Summarize(trace models.RunTrace) Summary {
	summary := Summary{
		RunID:       trace.RunID,
		EventType:   trace.EventType,
		Decision:    string(trace.Status),
		ReasonCodes: []string{},
	}

	for _, rule := range trace.Rules {
		summary.RulesEvaluated++
		if rule.Matched {
			summary.RulesMatched++
			summary.ReasonCodes = append(summary.ReasonCodes, fmt.Sprintf("RULE_MATCHED:%s", rule.RuleID))
		} else {
			summary.ReasonCodes = append(summary.ReasonCodes, fmt.Sprintf("RULE_NOT_MATCHED:%s", rule.RuleID))
		}
		for _, result := range rule.Results {
			switch result.Status {
			case models.ActionStatusFailed:
				summary.ActionsExecuted++
				summary.ActionsFailed++
				summary.ReasonCodes = append(summary.ReasonCodes, fmt.Sprintf("ACTION_FAILED:%s", result.ActionKey))
			case models.ActionStatusSkipped:
				summary.ActionsSkipped++
				summary.ReasonCodes = append(summary.ReasonCodes, fmt.Sprintf("ACTION_SKIPPED:%s", result.ActionKey))
			default:
				summary.ActionsExecuted++
			}
		}
	}

	if trace.Error != "" {
		summary.ReasonCodes = append(summary.ReasonCodes, "RUN_ERROR")
	}
	return summary
}

// Narrative renders ordered prose paragraphs, one per evaluated rule, plus a
// closing paragraph with the run decision. Deterministic for a fixed trace.
func Narrative(trace models.RunTrace) []string {
	paragraphs := make([]string, 0, len(trace.Rules)+1)

	for _, rule := range trace.Rules {
		var b strings.Builder
		if rule.Matched {
			fmt.Fprintf(&b, "Rule %q matched event %s.", rule.RuleName, trace.EventType)
			if len(rule.Results) > 0 {
				executed, failed := 0, 0
				for _, result := range rule.Results {
					if result.Status == models.ActionStatusSkipped {
						continue
					}
					executed++
					if result.Status == models.ActionStatusFailed {
						failed++
					}
				}
				fmt.Fprintf(&b, " %d of %d planned actions ran", executed, len(rule.Results))
				if failed > 0 {
					fmt.Fprintf(&b, ", %d failed", failed)
				}
				b.WriteString(".")
			}
		} else {
			fmt.Fprintf(&b, "Rule %q did not match event %s", rule.RuleName, trace.EventType)
			if len(rule.Reasons) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(rule.Reasons, "; "))
			}
			b.WriteString(".")
		}
		paragraphs = append(paragraphs, b.String())
	}

	closing := fmt.Sprintf("Run %s finished with status %s.", trace.RunID, trace.Status)
	if trace.Error != "" {
		closing = fmt.Sprintf("Run %s finished with status %s: %s.", trace.RunID, trace.Status, trace.Error)
	}
	paragraphs = append(paragraphs, closing)
	return paragraphs
}
