package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"multichat/internal/models"
)

// ErrUnknownModel indicates the requested model is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// ErrEmptyMessages indicates a request without any message.
var ErrEmptyMessages = errors.New("at least one message is required")

// ErrModelMismatch indicates a request addressed to a different model than the adapter serves.
var ErrModelMismatch = errors.New("request model does not match adapter")

// ErrNoBody indicates a streaming response without a readable body.
var ErrNoBody = errors.New("no response body")

// Adapter translates canonical requests into one provider's wire format.
// Generate never fails with a Go error: failures are reported in Result.Error.
type Adapter interface {
	Model() string
	Generate(ctx context.Context, req models.Request) models.Result
}

// Streamer is implemented by adapters able to produce incremental output.
// The returned sequence is single-use, performs the HTTP call on first
// iteration and always ends with exactly one chunk where Done is true.
type Streamer interface {
	Adapter
	GenerateStream(ctx context.Context, req models.Request) iter.Seq[models.StreamChunk]
}

// ValidateRequest enforces the input constraints shared by every adapter.
func ValidateRequest(model string, req models.Request) error {
	if req.Model != model {
		return fmt.Errorf("%w: got %q, adapter serves %q", ErrModelMismatch, req.Model, model)
	}
	if len(req.Messages) == 0 {
		return ErrEmptyMessages
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
		default:
			return fmt.Errorf("message[%d]: invalid role %q", i, msg.Role)
		}
	}
	return nil
}

// FloatOr returns *v or fallback when v is nil.
func FloatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// IntOr returns *v or fallback when v is nil or not positive.
func IntOr(v *int, fallback int) int {
	if v == nil || *v <= 0 {
		return fallback
	}
	return *v
}
