// Package translator converts between the HTTP API payloads and the
// canonical dispatch input.
package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"multichat/internal/models"
)

var (
	ErrMessagesRequired = errors.New("Messages are required")
	ErrModelsRequired   = errors.New("At least one model must be selected")

	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
	errInvalidMode    = errors.New("invalid mode")
	errUnknownPrompt  = errors.New("unknown system prompt")
)

var roles = []string{models.RoleSystem, models.RoleUser, models.RoleAssistant}

// ChatRequest models the POST /v1/chat payload. Decoding validates it.
type ChatRequest struct {
	Messages       []ChatMessage
	Models         []string
	APIKeys        map[string]string
	Temperature    *float64
	MaxTokens      *int
	Stream         bool
	Mode           string
	SystemPromptID string
}

// chatRequestWire accepts both api_keys and the apiKeys spelling sent by
// browser clients.
type chatRequestWire struct {
	Messages       []ChatMessage     `json:"messages"`
	Models         []string          `json:"models"`
	APIKeys        map[string]string `json:"api_keys"`
	APIKeysCamel   map[string]string `json:"apiKeys"`
	Temperature    *float64          `json:"temperature"`
	MaxTokens      *int              `json:"max_tokens"`
	Stream         bool              `json:"stream"`
	Mode           string            `json:"mode"`
	SystemPromptID string            `json:"system_prompt_id"`
}

func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var w chatRequestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse chat request: %w", err)
	}

	keys := w.APIKeys
	if keys == nil {
		keys = w.APIKeysCamel
	}
	ids := make([]string, 0, len(w.Models))
	for _, id := range w.Models {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	*r = ChatRequest{
		Messages:       w.Messages,
		Models:         ids,
		APIKeys:        keys,
		Temperature:    w.Temperature,
		MaxTokens:      w.MaxTokens,
		Stream:         w.Stream,
		Mode:           strings.TrimSpace(w.Mode),
		SystemPromptID: strings.TrimSpace(w.SystemPromptID),
	}
	return r.validate()
}

func (r *ChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return ErrMessagesRequired
	}
	if len(r.Models) == 0 {
		return ErrModelsRequired
	}
	switch r.Mode {
	case "", models.ModeContinuous, models.ModeSingle:
	default:
		return fmt.Errorf("%w: %q", errInvalidMode, r.Mode)
	}
	if r.SystemPromptID != "" {
		if _, ok := models.LookupSystemPrompt(r.SystemPromptID); !ok {
			return fmt.Errorf("%w: %q", errUnknownPrompt, r.SystemPromptID)
		}
	}
	return r.Options().Validate()
}

// Conversation returns the canonical messages after applying the selected
// system prompt preset and chat mode.
func (r ChatRequest) Conversation() []models.Message {
	msgs := make([]models.Message, 0, len(r.Messages)+1)
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}

	if prompt, ok := models.LookupSystemPrompt(r.SystemPromptID); ok {
		msgs = models.WithSystemPrompt(prompt.Content, msgs)
	}
	return models.ApplyMode(r.Mode, msgs)
}

// Options returns the sampling overrides carried by the request.
func (r ChatRequest) Options() models.GenerationOptions {
	return models.GenerationOptions{
		Temperature:     r.Temperature,
		MaxOutputTokens: r.MaxTokens,
	}
}

// ChatMessage is one turn of the submitted conversation. Content may be a
// plain string or a list of {"type":"text"} parts, which are concatenated.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	role := strings.ToLower(strings.TrimSpace(wire.Role))
	if !slices.Contains(roles, role) {
		return fmt.Errorf("%w %q", errInvalidRole, wire.Role)
	}
	text, err := flattenContent(wire.Content)
	if err != nil {
		return err
	}

	*m = ChatMessage{Role: role, Content: text}
	return nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func flattenContent(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("%w: content is missing", errInvalidContent)
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidContent, err)
		}
		return text, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidContent, err)
		}
		texts := make([]string, 0, len(parts))
		for i, p := range parts {
			if p.Type != "text" {
				return "", fmt.Errorf("%w: part %d has type %q, only text is accepted", errInvalidContent, i, p.Type)
			}
			texts = append(texts, p.Text)
		}
		return strings.Join(texts, ""), nil
	default:
		return "", fmt.Errorf("%w: expected a string or a list of text parts", errInvalidContent)
	}
}

// BatchResponse is the body returned for a non-streaming dispatch.
type BatchResponse struct {
	DispatchID string          `json:"dispatch_id"`
	Responses  []models.Result `json:"responses"`
}

// ModelInfo describes one catalog entry for GET /v1/models.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
	Streaming   bool   `json:"streaming"`
	HasAPIKey   bool   `json:"has_api_key"`
}

// ModelInfos describes catalog, flagging the models present in keys.
func ModelInfos(catalog []models.ModelSpec, keys map[string]string) []ModelInfo {
	out := make([]ModelInfo, 0, len(catalog))
	for _, spec := range catalog {
		_, ok := keys[spec.ID]
		out = append(out, ModelInfo{
			ID:          spec.ID,
			DisplayName: spec.DisplayName,
			Provider:    spec.Provider,
			Streaming:   spec.Streaming,
			HasAPIKey:   ok,
		})
	}
	return out
}

// PutKeyRequest models the PUT /v1/keys/:model payload.
type PutKeyRequest struct {
	APIKey string `json:"api_key"`
}
