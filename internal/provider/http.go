package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "multichat/0.1"

	// AcceptEventStream is the Accept header value for SSE endpoints.
	AcceptEventStream = "text/event-stream"

	maxErrorBodyBytes = 64 * 1024
	maxBodyBytes      = 10 << 20
)

// Header is an extra HTTP header applied to an outbound request.
type Header struct {
	Key   string
	Value string
}

// BearerAuth returns an Authorization header carrying a bearer token.
func BearerAuth(token string) Header {
	return Header{Key: "Authorization", Value: "Bearer " + token}
}

// NewJSONRequest builds a POST request with a JSON-encoded payload.
func NewJSONRequest(ctx context.Context, url string, payload any, accept string, headers ...Header) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	if accept == "" {
		accept = contentTypeJSON
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}

	return req, nil
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Label      string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s API error: %s", e.Label, e.Status)
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

// Do sends req and returns the response when the status is 2xx. Any other
// status is turned into a *StatusError after the body has been drained and
// closed. label names the provider in error messages.
func Do(client *http.Client, req *http.Request, label string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", label, err)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%s: %w", label, ErrNoBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp, label)
	}
	return resp, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func parseStatusError(resp *http.Response, label string) error {
	statusErr := &StatusError{
		Label:      label,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if statusErr.Status == "" {
		statusErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return statusErr
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		statusErr.Body = apiErr.Error.Message
		return statusErr
	}

	statusErr.Body = strings.TrimSpace(string(body))
	return statusErr
}

// DecodeJSON decodes a provider response body into target.
func DecodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(reader, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// CloseBody closes a response body, logging any failure.
func CloseBody(body io.Closer, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		logger.Warn("failed to close response body", "error", err)
	}
}

// ContextError prefers the context's error over a transport error that was
// caused by cancellation, so callers see a stable reason.
func ContextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
