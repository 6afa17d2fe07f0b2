// Package deepseek adapts the DeepSeek chat API. The integration is
// batch-only: it exposes Generate and deliberately not GenerateStream.
package deepseek

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"multichat/internal/models"
	"multichat/internal/provider/openai"
)

const label = "DeepSeek"

// DeepSeek reports this when its backend is overloaded mid-generation.
var finishReasons = map[string]models.Outcome{
	"insufficient_system_resource": models.OutcomeError,
}

// Adapter delegates single-shot calls to the OpenAI-compatible adapter.
type Adapter struct {
	inner *openai.Adapter
}

// New constructs a DeepSeek adapter.
func New(spec models.ModelSpec, apiKey string, client *http.Client, logger *slog.Logger) (*Adapter, error) {
	inner, err := openai.New(spec, apiKey, client, logger, openai.Options{
		Label:         label,
		FinishReasons: finishReasons,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise deepseek adapter: %w", err)
	}
	return &Adapter{inner: inner}, nil
}

func (a *Adapter) Model() string {
	return a.inner.Model()
}

func (a *Adapter) Generate(ctx context.Context, req models.Request) models.Result {
	return a.inner.Generate(ctx, req)
}
