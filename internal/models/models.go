package models

import "fmt"

// Role names accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Terminal reasons set by the dispatch supervisor.
const (
	ErrorTimedOut  = "timed out"
	ErrorCancelled = "cancelled"
)

// Message represents a single conversational message in the canonical schema.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the canonical representation of one call to one model.
// Nil Temperature and MaxOutputTokens mean "use the provider default".
type Request struct {
	Model           string
	Messages        []Message
	Temperature     *float64
	MaxOutputTokens *int
	Stream          bool
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the batch-mode outcome for one model. Error is empty on success.
type Result struct {
	Model        string `json:"model"`
	Content      string `json:"content"`
	Usage        *Usage `json:"usage,omitempty"`
	Error        string `json:"error,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamChunk is one incremental delta of a streamed response.
// A chunk carrying an Error is always terminal.
type StreamChunk struct {
	Model        string `json:"model"`
	Content      string `json:"content"`
	Done         bool   `json:"done"`
	Usage        *Usage `json:"usage,omitempty"`
	Error        string `json:"error,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// GenerationOptions carries the optional sampling overrides for a dispatch.
type GenerationOptions struct {
	Temperature     *float64
	MaxOutputTokens *int
}

// Sampling bounds shared by every provider.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Validate rejects overrides outside the range every provider accepts.
func (o GenerationOptions) Validate() error {
	if t := o.Temperature; t != nil && (*t < MinTemperature || *t > MaxTemperature) {
		return fmt.Errorf("temperature must be between %v and %v, got %v", MinTemperature, MaxTemperature, *t)
	}
	if n := o.MaxOutputTokens; n != nil && *n <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", *n)
	}
	return nil
}

// ResultFromError builds a failed result for model.
func ResultFromError(model string, err error) Result {
	return Result{Model: model, Error: errorText(err)}
}

// ChunkFromError builds a terminal error chunk for model.
func ChunkFromError(model string, err error) StreamChunk {
	return StreamChunk{Model: model, Done: true, Error: errorText(err)}
}

// ChunkFromResult wraps a batch result as the single terminal chunk of a stream.
func ChunkFromResult(res Result) StreamChunk {
	return StreamChunk{
		Model:        res.Model,
		Content:      res.Content,
		Done:         true,
		Usage:        res.Usage,
		Error:        res.Error,
		FinishReason: res.FinishReason,
	}
}

func errorText(err error) string {
	if err == nil {
		return "Unknown error occurred"
	}
	return err.Error()
}

// Outcome is the canonical classification of a provider's terminal condition.
type Outcome string

const (
	OutcomeStop   Outcome = "stop"
	OutcomeLength Outcome = "length"
	OutcomeSafety Outcome = "safety"
	OutcomeError  Outcome = "error"
)

// Failed reports whether the outcome must be surfaced as an error.
func (o Outcome) Failed() bool {
	return o == OutcomeSafety || o == OutcomeError
}
