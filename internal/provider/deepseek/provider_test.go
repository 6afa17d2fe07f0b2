package deepseek

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"multichat/internal/models"
	"multichat/internal/provider"
)

func TestAdapter_IsBatchOnly(t *testing.T) {
	t.Parallel()

	a, err := New(models.ModelSpec{ID: "deepseek", BaseURL: "http://example.invalid"}, "ds-test", http.DefaultClient, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var adapter provider.Adapter = a
	if _, ok := adapter.(provider.Streamer); ok {
		t.Error("deepseek adapter must not implement provider.Streamer")
	}
}

func TestAdapter_Generate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantContent string
		wantError   string
	}{
		{
			name:        "success",
			body:        `{"choices":[{"message":{"content":"B"},"finish_reason":"stop"}]}`,
			wantContent: "B",
		},
		{
			name:      "overloaded",
			body:      `{"choices":[{"message":{"content":""},"finish_reason":"insufficient_system_resource"}]}`,
			wantError: "DeepSeek API error: generation stopped (insufficient_system_resource)",
		},
		{
			name:      "no choices",
			body:      `{"choices":[]}`,
			wantError: "No choices returned by DeepSeek API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body) //nolint:errcheck
			}))
			defer srv.Close()

			a, err := New(models.ModelSpec{ID: "deepseek", UpstreamModel: "deepseek-chat", BaseURL: srv.URL}, "ds-test", srv.Client(), nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res := a.Generate(context.Background(), models.Request{Model: "deepseek", Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}}})
			if res.Content != tt.wantContent || res.Error != tt.wantError {
				t.Errorf("result = %+v; want content %q error %q", res, tt.wantContent, tt.wantError)
			}
		})
	}
}
