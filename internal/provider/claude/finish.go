package claude

import (
	"fmt"

	"multichat/internal/models"
)

var stopReasons = map[string]models.Outcome{
	"end_turn":      models.OutcomeStop,
	"stop_sequence": models.OutcomeStop,
	"tool_use":      models.OutcomeStop,
	"pause_turn":    models.OutcomeStop,
	"max_tokens":    models.OutcomeLength,
	"refusal":       models.OutcomeSafety,
}

func classify(reason string) models.Outcome {
	if outcome, ok := stopReasons[reason]; ok {
		return outcome
	}
	return models.OutcomeStop
}

func outcomeError(outcome models.Outcome, reason string) string {
	switch {
	case !outcome.Failed():
		return ""
	case outcome == models.OutcomeSafety:
		return "Response blocked by safety: " + reason
	default:
		return fmt.Sprintf("%s API error: generation stopped (%s)", label, reason)
	}
}
