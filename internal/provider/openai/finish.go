package openai

import (
	"fmt"

	"multichat/internal/models"
)

var finishReasons = map[string]models.Outcome{
	"stop":           models.OutcomeStop,
	"tool_calls":     models.OutcomeStop,
	"function_call":  models.OutcomeStop,
	"length":         models.OutcomeLength,
	"content_filter": models.OutcomeSafety,
}

// classify maps a finish_reason onto the canonical outcome. Unknown reasons
// are treated as a normal stop.
func (a *Adapter) classify(reason string) models.Outcome {
	if outcome, ok := a.finishReasons[reason]; ok {
		return outcome
	}
	if outcome, ok := finishReasons[reason]; ok {
		return outcome
	}
	return models.OutcomeStop
}

func (a *Adapter) outcomeError(outcome models.Outcome, reason string) string {
	if !outcome.Failed() {
		return ""
	}
	if outcome == models.OutcomeSafety {
		return fmt.Sprintf("Response blocked by %s content filter", a.label)
	}
	return fmt.Sprintf("%s API error: generation stopped (%s)", a.label, reason)
}
