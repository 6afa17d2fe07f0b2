package gemini

import (
	"fmt"

	"multichat/internal/models"
)

var finishReasons = map[string]models.Outcome{
	"STOP":                    models.OutcomeStop,
	"FINISH_REASON_STOP":      models.OutcomeStop,
	"MAX_TOKENS":              models.OutcomeLength,
	"SAFETY":                  models.OutcomeSafety,
	"RECITATION":              models.OutcomeSafety,
	"BLOCKLIST":               models.OutcomeSafety,
	"PROHIBITED_CONTENT":      models.OutcomeSafety,
	"SPII":                    models.OutcomeSafety,
	"MALFORMED_FUNCTION_CALL": models.OutcomeError,
	"OTHER":                   models.OutcomeError,
}

func classify(reason string) models.Outcome {
	if outcome, ok := finishReasons[reason]; ok {
		return outcome
	}
	return models.OutcomeStop
}

// isSafetyBlocked is a best-effort classifier: Google reports blocks through
// the finish reason, the prompt feedback or per-candidate safety ratings, and
// not every shape it can return is known.
func isSafetyBlocked(c candidate, blockReason string) bool {
	if classify(c.FinishReason) == models.OutcomeSafety || blockReason != "" {
		return true
	}
	for _, r := range c.SafetyRatings {
		if r.Blocked {
			return true
		}
	}
	return false
}

func blockedMessage(blockReason string) string {
	if blockReason == "" {
		return "Response blocked by safety"
	}
	return "Response blocked by safety: " + blockReason
}

func outcomeError(outcome models.Outcome, blockReason, finishReason string) string {
	if !outcome.Failed() {
		return ""
	}
	if outcome == models.OutcomeSafety {
		if blockReason == "" {
			blockReason = finishReason
		}
		return blockedMessage(blockReason)
	}
	return fmt.Sprintf("%s API error: generation stopped (%s)", label, finishReason)
}

// emptyOutcomeError explains a finished candidate that produced no text. An
// empty string means the model legitimately returned nothing.
func emptyOutcomeError(c candidate, blockReason string) string {
	if isSafetyBlocked(c, blockReason) {
		reason := blockReason
		if reason == "" && classify(c.FinishReason) == models.OutcomeSafety {
			reason = c.FinishReason
		}
		return blockedMessage(reason)
	}
	return outcomeError(classify(c.FinishReason), blockReason, c.FinishReason)
}
