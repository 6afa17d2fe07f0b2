// Package xai adapts xAI's Grok API, which speaks the OpenAI chat
// completions protocol, including SSE streaming.
package xai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"multichat/internal/models"
	"multichat/internal/provider/openai"
)

const label = "xAI"

// Adapter delegates to the OpenAI-compatible adapter with xAI labelling.
type Adapter struct {
	inner *openai.Adapter
}

// New constructs an xAI adapter.
func New(spec models.ModelSpec, apiKey string, client *http.Client, logger *slog.Logger) (*Adapter, error) {
	inner, err := openai.New(spec, apiKey, client, logger, openai.Options{Label: label})
	if err != nil {
		return nil, fmt.Errorf("initialise xai adapter: %w", err)
	}
	return &Adapter{inner: inner}, nil
}

func (a *Adapter) Model() string {
	return a.inner.Model()
}

func (a *Adapter) Generate(ctx context.Context, req models.Request) models.Result {
	return a.inner.Generate(ctx, req)
}

func (a *Adapter) GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk] {
	return a.inner.GenerateStream(ctx, req)
}
