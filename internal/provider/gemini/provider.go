// Package gemini adapts Google's Generative Language API.
//
// Streamed responses are read as newline-delimited JSON objects; a "data: "
// prefix and JSON array punctuation around each object are tolerated, so the
// same parser handles the SSE rendition requested with alt=sse.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"multichat/internal/models"
	"multichat/internal/provider"
)

const (
	label              = "Google AI"
	defaultTemperature = 0.2
	defaultMaxTokens   = 512
)

// Adapter implements provider.Streamer for Gemini models.
type Adapter struct {
	model     string
	apiKey    string
	generate  string
	streamURL string
	client    *http.Client
	logger    *slog.Logger
}

// New constructs a Gemini adapter bound to spec and apiKey.
func New(spec models.ModelSpec, apiKey string, client *http.Client, logger *slog.Logger) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	baseURL := strings.TrimRight(spec.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	upstream := spec.UpstreamModel
	if upstream == "" {
		upstream = spec.ID
	}
	modelURL := fmt.Sprintf("%s/models/%s", baseURL, upstream)

	return &Adapter{
		model:     spec.ID,
		apiKey:    apiKey,
		generate:  modelURL + ":generateContent",
		streamURL: modelURL + ":streamGenerateContent?alt=sse",
		client:    client,
		logger:    logger.With("model", spec.ID, "provider", label),
	}, nil
}

func (a *Adapter) Model() string {
	return a.model
}

// Generate performs a single generateContent call.
func (a *Adapter) Generate(ctx context.Context, req models.Request) models.Result {
	if err := provider.ValidateRequest(a.model, req); err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpReq, err := provider.NewJSONRequest(ctx, a.generate, buildPayload(req), "", a.authHeader())
	if err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpResp, err := provider.Do(a.client, httpReq, label)
	if err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}
	defer provider.CloseBody(httpResp.Body, a.logger)

	var resp generateResponse
	if err := provider.DecodeJSON(httpResp.Body, &resp); err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}

	return a.toResult(resp)
}

// GenerateStream streams a streamGenerateContent response. The stream has no
// sentinel: the first candidate carrying a finishReason is terminal.
func (a *Adapter) GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk] {
	return func(yield func(models.StreamChunk) bool) {
		if err := provider.ValidateRequest(a.model, req); err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}

		httpReq, err := provider.NewJSONRequest(ctx, a.streamURL, buildPayload(req), "", a.authHeader())
		if err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}

		httpResp, err := provider.Do(a.client, httpReq, label)
		if err != nil {
			yield(models.ChunkFromError(a.model, provider.ContextError(ctx, err)))
			return
		}
		defer provider.CloseBody(httpResp.Body, a.logger)

		var (
			usage   *models.Usage
			emitted bool
		)
		for line, err := range provider.Lines(httpResp.Body) {
			if err != nil {
				yield(models.ChunkFromError(a.model, provider.ContextError(ctx, fmt.Errorf("%s stream read: %w", label, err))))
				return
			}

			payload, ok := provider.NDJSONPayload(line)
			if !ok {
				continue
			}

			var resp generateResponse
			if err := json.Unmarshal([]byte(payload), &resp); err != nil {
				a.logger.Warn("skipping unparseable stream line", "error", err, "line", payload)
				continue
			}
			if resp.Error != nil {
				yield(models.StreamChunk{Model: a.model, Done: true, Error: resp.Error.text()})
				return
			}
			if resp.UsageMetadata != nil {
				usage = resp.UsageMetadata.toModel()
			}

			if len(resp.Candidates) == 0 {
				if block := resp.blockReason(); block != "" {
					yield(models.StreamChunk{Model: a.model, Done: true, Usage: usage, Error: blockedMessage(block)})
					return
				}
				a.logger.Warn("stream chunk has no candidates", "line", payload)
				continue
			}

			candidate := resp.Candidates[0]
			content := candidate.text()
			if content != "" {
				emitted = true
			}

			if candidate.FinishReason == "" {
				if content == "" {
					continue
				}
				if !yield(models.StreamChunk{Model: a.model, Content: content}) {
					return
				}
				continue
			}

			final := models.StreamChunk{
				Model:        a.model,
				Content:      content,
				Done:         true,
				Usage:        usage,
				FinishReason: candidate.FinishReason,
			}
			if !emitted {
				final.Error = emptyOutcomeError(candidate, resp.blockReason())
			}
			yield(final)
			return
		}

		yield(models.StreamChunk{Model: a.model, Done: true, Usage: usage})
	}
}

func (a *Adapter) authHeader() provider.Header {
	return provider.Header{Key: "x-goog-api-key", Value: a.apiKey}
}

func (a *Adapter) toResult(resp generateResponse) models.Result {
	if resp.Error != nil {
		return models.Result{Model: a.model, Error: resp.Error.text()}
	}

	var usage *models.Usage
	if resp.UsageMetadata != nil {
		usage = resp.UsageMetadata.toModel()
	}

	blockReason := resp.blockReason()
	if len(resp.Candidates) == 0 {
		a.logger.Warn("no candidates returned", "block_reason", blockReason)
		msg := "No candidates returned by Google AI API"
		if blockReason != "" {
			msg = blockedMessage(blockReason)
		}
		return models.Result{Model: a.model, Usage: usage, Error: msg}
	}

	candidate := resp.Candidates[0]
	content := candidate.text()
	result := models.Result{
		Model:        a.model,
		Content:      content,
		Usage:        usage,
		FinishReason: candidate.FinishReason,
	}
	if content != "" {
		return result
	}

	result.Error = emptyOutcomeError(candidate, blockReason)
	return result
}

type generatePayload struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// buildPayload relocates the system instruction and renames the assistant
// role to "model".
func buildPayload(req models.Request) generatePayload {
	system, rest := models.SplitSystem(req.Messages)

	contents := make([]content, 0, len(rest))
	for _, msg := range rest {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: msg.Content}}})
	}

	payload := generatePayload{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     provider.FloatOr(req.Temperature, defaultTemperature),
			MaxOutputTokens: provider.IntOr(req.MaxOutputTokens, defaultMaxTokens),
		},
	}
	if system != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	return payload
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
	Error          *apiError       `json:"error,omitempty"`
}

func (r generateResponse) blockReason() string {
	if r.PromptFeedback == nil {
		return ""
	}
	return r.PromptFeedback.BlockReason
}

type candidate struct {
	Content       *candidateContent `json:"content,omitempty"`
	FinishReason  string            `json:"finishReason"`
	SafetyRatings []safetyRating    `json:"safetyRatings"`
}

type candidateContent struct {
	Parts []candidatePart `json:"parts"`
}

type candidatePart struct {
	Text *string `json:"text,omitempty"`
}

func (c candidate) text() string {
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p.Text != nil {
			b.WriteString(*p.Text)
		}
	}
	return b.String()
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (u *usageMetadata) toModel() *models.Usage {
	return &models.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *apiError) text() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error: %s", label, e.Message)
	}
	return fmt.Sprintf("%s API error: %d %s", label, e.Code, e.Status)
}
