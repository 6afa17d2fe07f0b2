package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"multichat/internal/config"
	"multichat/internal/keystore"
	"multichat/internal/models"
	"multichat/internal/translator"
)

// fakeUpstream speaks the OpenAI chat completions protocol, answering
// "Hello" in one piece or as two SSE deltas.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Stream bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&payload) //nolint:errcheck

		if !payload.Stream {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}]}`) //nolint:errcheck
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server *Server
	keys   *keystore.Store
}

func newTestServer(t *testing.T, withKeyStore bool) testEnv {
	t.Helper()

	upstream := fakeUpstream(t)
	cfg := config.Default()
	cfg.Models = []models.ModelSpec{
		{ID: "gpt-5", DisplayName: "GPT-5", Provider: models.ProviderOpenAI, BaseURL: upstream.URL, Streaming: true},
		{ID: "deepseek", DisplayName: "DeepSeek", Provider: models.ProviderDeepSeek, BaseURL: upstream.URL},
	}

	var store *keystore.Store
	if withKeyStore {
		var err error
		store, err = keystore.Open(filepath.Join(t.TempDir(), "keys.db"))
		if err != nil {
			t.Fatalf("keystore.Open: %v", err)
		}
		t.Cleanup(func() { store.Close() })
	}

	srv, err := New(cfg, Dependencies{
		Client:       upstream.Client(),
		KeyStore:     store,
		OperatorKeys: map[string]string{"deepseek": "ds-operator"},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return testEnv{server: srv, keys: store}
}

func (e testEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Message
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	rec := newTestServer(t, false).do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Chat_Validation(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, false)
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "no messages", body: `{"models":["gpt-5"],"messages":[]}`, want: "Messages are required"},
		{name: "no models", body: `{"models":[" "],"messages":[{"role":"user","content":"hi"}]}`, want: "At least one model must be selected"},
		{name: "bad json", body: `{"models": nope}`, want: "invalid JSON payload"},
		{name: "empty body", body: "", want: "request body is required"},
		{name: "bad role", body: `{"models":["gpt-5"],"messages":[{"role":"tool","content":"hi"}]}`, want: "invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(http.MethodPost, "/v1/chat", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", rec.Code)
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q; want containing %q", msg, tt.want)
			}
		})
	}
}

func TestServer_Chat_Batch(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, false)
	body := `{
		"models": ["gpt-5", "grok-4", "deepseek"],
		"messages": [{"role": "user", "content": "hi"}],
		"api_keys": {"gpt-5": "sk-request", "grok-4": "••••••"}
	}`
	rec := env.do(http.MethodPost, "/v1/chat", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	var resp translator.BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DispatchID == "" || rec.Header().Get(headerDispatchID) != resp.DispatchID {
		t.Errorf("dispatch id header %q, body %q", rec.Header().Get(headerDispatchID), resp.DispatchID)
	}
	if len(resp.Responses) != 3 {
		t.Fatalf("responses = %+v", resp.Responses)
	}
	if r := resp.Responses[0]; r.Model != "gpt-5" || r.Content != "Hello" || r.Error != "" {
		t.Errorf("gpt-5 = %+v", r)
	}
	if r := resp.Responses[1]; r.Model != "grok-4" || r.Error != "No API key configured for grok-4" {
		t.Errorf("grok-4 = %+v; placeholder key must not count", r)
	}
	if r := resp.Responses[2]; r.Model != "deepseek" || r.Content != "Hello" {
		t.Errorf("deepseek = %+v; operator key should apply", r)
	}
}

func TestServer_Chat_Stream(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, false)
	body := `{"models":["gpt-5","deepseek"],"messages":[{"role":"user","content":"hi"}],"apiKeys":{"gpt-5":"sk"},"stream":true}`
	rec := env.do(http.MethodPost, "/v1/chat", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	raw := rec.Body.String()
	if !strings.HasSuffix(raw, "event: end\ndata: [DONE]\n\n") {
		t.Errorf("stream must end with the end marker, got %q", raw)
	}

	content := map[string]string{}
	done := map[string]int{}
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		lines := strings.SplitN(block, "\n", 2)
		if len(lines) != 2 || lines[0] != "event: chunk" {
			continue
		}
		var chunk models.StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", lines[1], err)
		}
		content[chunk.Model] += chunk.Content
		if chunk.Done {
			done[chunk.Model]++
		}
	}
	for _, id := range []string{"gpt-5", "deepseek"} {
		if content[id] != "Hello" {
			t.Errorf("%s content = %q", id, content[id])
		}
		if done[id] != 1 {
			t.Errorf("%s terminal chunks = %d; want 1", id, done[id])
		}
	}
}

func TestServer_Models(t *testing.T) {
	t.Parallel()

	rec := newTestServer(t, false).do(http.MethodGet, "/v1/models", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Models []translator.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models = %+v", body.Models)
	}
	if body.Models[0].HasAPIKey || !body.Models[1].HasAPIKey {
		t.Errorf("has_api_key flags = %+v; only deepseek has an operator key", body.Models)
	}
	if !body.Models[0].Streaming || body.Models[1].Streaming {
		t.Errorf("streaming flags = %+v", body.Models)
	}
}

func TestServer_Keys_Lifecycle(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, true)
	user := map[string]string{headerUserID: "alice"}

	if rec := env.do(http.MethodPut, "/v1/keys/gpt-5", `{"api_key":"sk-stored"}`, user); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d body %s", rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodGet, "/v1/keys", "", user)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"model":"gpt-5"`) {
		t.Errorf("GET = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "sk-stored") {
		t.Error("listing must not expose the secret")
	}

	chat := env.do(http.MethodPost, "/v1/chat", `{"models":["gpt-5"],"messages":[{"role":"user","content":"hi"}]}`, user)
	if !strings.Contains(chat.Body.String(), `"content":"Hello"`) {
		t.Errorf("stored key not used for dispatch: %s", chat.Body.String())
	}

	if rec := env.do(http.MethodDelete, "/v1/keys/gpt-5", "", user); rec.Code != http.StatusOK {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/v1/keys/gpt-5", "", user); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d; want 404", rec.Code)
	}
}

func TestServer_Keys_Errors(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, true)
	user := map[string]string{headerUserID: "alice"}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		header map[string]string
		status int
	}{
		{name: "missing user", method: http.MethodGet, target: "/v1/keys", status: http.StatusBadRequest},
		{name: "unknown model", method: http.MethodPut, target: "/v1/keys/grok-9", body: `{"api_key":"k"}`, header: user, status: http.StatusBadRequest},
		{name: "placeholder key", method: http.MethodPut, target: "/v1/keys/gpt-5", body: `{"api_key":"<your key>"}`, header: user, status: http.StatusBadRequest},
		{name: "empty key", method: http.MethodPut, target: "/v1/keys/gpt-5", body: `{"api_key":""}`, header: user, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if rec := env.do(tt.method, tt.target, tt.body, tt.header); rec.Code != tt.status {
				t.Errorf("status = %d; want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestServer_Keys_DisabledWithoutStore(t *testing.T) {
	t.Parallel()

	rec := newTestServer(t, false).do(http.MethodGet, "/v1/keys", "", map[string]string{headerUserID: "alice"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", rec.Code)
	}
}
