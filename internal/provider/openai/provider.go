package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"multichat/internal/models"
	"multichat/internal/provider"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000

	// finishGrace bounds how long a stream may stay open after a finish
	// reason while the trailing usage chunk is awaited.
	finishGrace = 2 * time.Second
)

// Options customises an OpenAI-compatible adapter for a specific vendor.
type Options struct {
	// Label names the vendor in error messages, e.g. "OpenAI" or "xAI".
	Label string
	// FinishReasons maps vendor-specific finish reasons not covered by the
	// shared OpenAI vocabulary.
	FinishReasons map[string]models.Outcome
}

// Adapter implements provider.Streamer for OpenAI-compatible chat completion APIs.
type Adapter struct {
	model         string
	upstream      string
	apiKey        string
	chatURL       string
	label         string
	finishReasons map[string]models.Outcome
	client        *http.Client
	logger        *slog.Logger
	finishGrace   time.Duration
}

// New creates an adapter bound to spec and apiKey.
func New(spec models.ModelSpec, apiKey string, client *http.Client, logger *slog.Logger, opts Options) (*Adapter, error) {
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
	if opts.Label == "" {
		opts.Label = "OpenAI"
	}

	upstream := spec.UpstreamModel
	if upstream == "" {
		upstream = spec.ID
	}

	return &Adapter{
		model:         spec.ID,
		upstream:      upstream,
		apiKey:        apiKey,
		chatURL:       baseURL + "/chat/completions",
		label:         opts.Label,
		finishReasons: opts.FinishReasons,
		client:        client,
		logger:        logger.With("model", spec.ID, "provider", opts.Label),
		finishGrace:   finishGrace,
	}, nil
}

// Model returns the model ID the adapter is bound to.
func (a *Adapter) Model() string {
	return a.model
}

// Generate performs a single non-streaming chat completion.
func (a *Adapter) Generate(ctx context.Context, req models.Request) models.Result {
	if err := provider.ValidateRequest(a.model, req); err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpReq, err := provider.NewJSONRequest(ctx, a.chatURL, a.buildPayload(req, false), "", provider.BearerAuth(a.apiKey))
	if err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpResp, err := provider.Do(a.client, httpReq, a.label)
	if err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}
	defer provider.CloseBody(httpResp.Body, a.logger)

	var resp chatResponse
	if err := provider.DecodeJSON(httpResp.Body, &resp); err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}

	return a.toResult(resp)
}

// GenerateStream streams a chat completion over Server-Sent Events.
func (a *Adapter) GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk] {
	return func(yield func(models.StreamChunk) bool) {
		if err := provider.ValidateRequest(a.model, req); err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		httpReq, err := provider.NewJSONRequest(streamCtx, a.chatURL, a.buildPayload(req, true), provider.AcceptEventStream, provider.BearerAuth(a.apiKey))
		if err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}

		httpResp, err := provider.Do(a.client, httpReq, a.label)
		if err != nil {
			yield(models.ChunkFromError(a.model, provider.ContextError(ctx, err)))
			return
		}
		defer provider.CloseBody(httpResp.Body, a.logger)

		state := streamState{}
		var grace *time.Timer
		defer func() {
			if grace != nil {
				grace.Stop()
			}
		}()

		for line, err := range provider.Lines(httpResp.Body) {
			if err != nil {
				if state.finishReason != "" && ctx.Err() == nil {
					a.logger.Debug("stream closed after finish reason", "error", err)
					break
				}
				yield(models.ChunkFromError(a.model, provider.ContextError(ctx, fmt.Errorf("%s stream read: %w", a.label, err))))
				return
			}

			payload, sentinel, ok := provider.SSEPayload(line)
			if sentinel {
				break
			}
			if !ok {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				a.logger.Warn("skipping unparseable stream line", "error", err, "line", payload)
				continue
			}
			if chunk.Error != nil && chunk.Error.Message != "" {
				yield(models.StreamChunk{Model: a.model, Done: true, Error: fmt.Sprintf("%s API error: %s", a.label, chunk.Error.Message)})
				return
			}

			delta := state.apply(chunk)
			if delta != "" {
				if !yield(models.StreamChunk{Model: a.model, Content: delta}) {
					return
				}
			}
			if state.finishReason == "" {
				continue
			}
			if state.usage != nil {
				break
			}
			if grace == nil {
				grace = time.AfterFunc(a.finishGrace, cancel)
			}
		}

		yield(a.terminalChunk(state))
	}
}

type streamState struct {
	finishReason string
	usage        *models.Usage
	emitted      bool
}

// apply records finish and usage metadata and returns the content delta.
func (s *streamState) apply(chunk streamChunk) string {
	if chunk.Usage != nil {
		s.usage = chunk.Usage.toModel()
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishReason = *choice.FinishReason
	}
	if choice.Delta.Content != "" {
		s.emitted = true
	}
	return choice.Delta.Content
}

func (a *Adapter) terminalChunk(state streamState) models.StreamChunk {
	chunk := models.StreamChunk{
		Model:        a.model,
		Done:         true,
		Usage:        state.usage,
		FinishReason: state.finishReason,
	}
	if state.finishReason != "" && !state.emitted {
		chunk.Error = a.outcomeError(a.classify(state.finishReason), state.finishReason)
	}
	return chunk
}

func (a *Adapter) buildPayload(req models.Request, stream bool) chatPayload {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	payload := chatPayload{
		Model:       a.upstream,
		Messages:    messages,
		Temperature: provider.FloatOr(req.Temperature, defaultTemperature),
		MaxTokens:   provider.IntOr(req.MaxOutputTokens, defaultMaxTokens),
		Stream:      stream,
	}
	if stream {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return payload
}

func (a *Adapter) toResult(resp chatResponse) models.Result {
	if resp.Error != nil && resp.Error.Message != "" {
		return models.Result{Model: a.model, Error: fmt.Sprintf("%s API error: %s", a.label, resp.Error.Message)}
	}

	var usage *models.Usage
	if resp.Usage != nil {
		usage = resp.Usage.toModel()
	}

	if len(resp.Choices) == 0 {
		return models.Result{
			Model: a.model,
			Usage: usage,
			Error: fmt.Sprintf("No choices returned by %s API", a.label),
		}
	}

	choice := resp.Choices[0]
	result := models.Result{
		Model:        a.model,
		Content:      choice.Message.Content,
		Usage:        usage,
		FinishReason: choice.FinishReason,
	}
	if msg := a.outcomeError(a.classify(choice.FinishReason), choice.FinishReason); msg != "" && result.Content == "" {
		result.Error = msg
	}
	return result
}

type chatPayload struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string          `json:"id"`
	Choices []chatChoice    `json:"choices"`
	Usage   *usageBlock     `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type streamChunk struct {
	Choices []streamChoice  `json:"choices"`
	Usage   *usageBlock     `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        chatMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usageBlock) toModel() *models.Usage {
	return &models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}
