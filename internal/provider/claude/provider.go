package claude

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
	label            = "Anthropic"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2000
)

// Adapter implements Anthropic Messages API interactions.
type Adapter struct {
	model       string
	upstream    string
	apiKey      string
	messagesURL string
	client      *http.Client
	logger      *slog.Logger
}

// New constructs an Anthropic adapter bound to spec and apiKey.
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

	return &Adapter{
		model:       spec.ID,
		upstream:    upstream,
		apiKey:      apiKey,
		messagesURL: baseURL + "/v1/messages",
		client:      client,
		logger:      logger.With("model", spec.ID, "provider", label),
	}, nil
}

func (a *Adapter) Model() string {
	return a.model
}

// Generate performs a single non-streaming Messages API call.
func (a *Adapter) Generate(ctx context.Context, req models.Request) models.Result {
	if err := provider.ValidateRequest(a.model, req); err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpReq, err := provider.NewJSONRequest(ctx, a.messagesURL, a.buildPayload(req, false), "", a.authHeaders()...)
	if err != nil {
		return models.ResultFromError(a.model, err)
	}

	httpResp, err := provider.Do(a.client, httpReq, label)
	if err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}
	defer provider.CloseBody(httpResp.Body, a.logger)

	var resp messageResponse
	if err := provider.DecodeJSON(httpResp.Body, &resp); err != nil {
		return models.ResultFromError(a.model, provider.ContextError(ctx, err))
	}

	return a.toResult(resp)
}

// GenerateStream streams a Messages API response. Anthropic frames events as
// SSE and ends the stream with a message_stop event rather than a sentinel.
func (a *Adapter) GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk] {
	return func(yield func(models.StreamChunk) bool) {
		if err := provider.ValidateRequest(a.model, req); err != nil {
			yield(models.ChunkFromError(a.model, err))
			return
		}

		httpReq, err := provider.NewJSONRequest(ctx, a.messagesURL, a.buildPayload(req, true), provider.AcceptEventStream, a.authHeaders()...)
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

		state := streamState{}
		for line, err := range provider.Lines(httpResp.Body) {
			if err != nil {
				yield(models.ChunkFromError(a.model, provider.ContextError(ctx, fmt.Errorf("%s stream read: %w", label, err))))
				return
			}

			payload, _, ok := provider.SSEPayload(line)
			if !ok {
				continue
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				a.logger.Warn("skipping unparseable stream line", "error", err, "line", payload)
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					state.inputTokens = event.Message.Usage.InputTokens
					state.outputTokens = event.Message.Usage.OutputTokens
				}
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				state.emitted = true
				if !yield(models.StreamChunk{Model: a.model, Content: event.Delta.Text}) {
					return
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					state.stopReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					state.outputTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				yield(a.terminalChunk(state))
				return
			case "error":
				msg := "stream error"
				if event.Error != nil && event.Error.Message != "" {
					msg = event.Error.Message
				}
				yield(models.StreamChunk{Model: a.model, Done: true, Error: fmt.Sprintf("%s API error: %s", label, msg)})
				return
			}
		}

		yield(a.terminalChunk(state))
	}
}

type streamState struct {
	inputTokens  int
	outputTokens int
	stopReason   string
	emitted      bool
}

func (a *Adapter) terminalChunk(state streamState) models.StreamChunk {
	chunk := models.StreamChunk{
		Model:        a.model,
		Done:         true,
		FinishReason: state.stopReason,
	}
	if state.inputTokens > 0 || state.outputTokens > 0 {
		chunk.Usage = usageFrom(state.inputTokens, state.outputTokens)
	}
	if !state.emitted {
		chunk.Error = outcomeError(classify(state.stopReason), state.stopReason)
	}
	return chunk
}

func (a *Adapter) authHeaders() []provider.Header {
	return []provider.Header{
		{Key: "x-api-key", Value: a.apiKey},
		{Key: "anthropic-version", Value: apiVersion},
	}
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// buildPayload moves system instructions into the dedicated field. Temperature
// is left unset unless requested so the API applies its own default.
func (a *Adapter) buildPayload(req models.Request, stream bool) messagePayload {
	system, rest := models.SplitSystem(req.Messages)

	messages := make([]message, 0, len(rest))
	for _, msg := range rest {
		messages = append(messages, message{
			Role:    msg.Role,
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
		})
	}

	return messagePayload{
		Model:       a.upstream,
		Messages:    messages,
		System:      system,
		MaxTokens:   provider.IntOr(req.MaxOutputTokens, defaultMaxTokens),
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Usage      *usageBlock    `json:"usage"`
	StopReason string         `json:"stop_reason"`
	Error      *apiError      `json:"error,omitempty"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type streamEvent struct {
	Type    string       `json:"type"`
	Message *streamStart `json:"message,omitempty"`
	Delta   *streamDelta `json:"delta,omitempty"`
	Usage   *usageBlock  `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type streamStart struct {
	Usage usageBlock `json:"usage"`
}

type streamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

func (a *Adapter) toResult(resp messageResponse) models.Result {
	if resp.Error != nil && resp.Error.Message != "" {
		return models.Result{Model: a.model, Error: fmt.Sprintf("%s API error: %s", label, resp.Error.Message)}
	}

	var usage *models.Usage
	if resp.Usage != nil {
		usage = usageFrom(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := models.Result{
		Model:        a.model,
		Content:      text.String(),
		Usage:        usage,
		FinishReason: resp.StopReason,
	}
	if result.Content != "" {
		return result
	}

	if msg := outcomeError(classify(resp.StopReason), resp.StopReason); msg != "" {
		result.Error = msg
	} else if len(resp.Content) == 0 {
		result.Error = "No content returned by Anthropic API"
	}
	return result
}

func usageFrom(input, output int) *models.Usage {
	return &models.Usage{
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
	}
}
