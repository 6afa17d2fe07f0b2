package config

import (
	"bytes"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"multichat/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Models) != len(models.DefaultCatalog()) {
		t.Errorf("models = %d; want the built-in catalog", len(cfg.Models))
	}
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
server:
  port: 9090
dispatch:
  timeout: 45s
logging:
  format: json
models:
  - id: local-gpt
    display_name: Local
    provider: openai
    base_url: http://localhost:11434/v1
    streaming: true
    api_key_env: LOCAL_KEY
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Dispatch.Timeout != 45*time.Second || cfg.Logging.Format != "json" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q; want default kept", cfg.Logging.Level)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].ID != "local-gpt" {
		t.Errorf("models = %+v; want the file's catalog", cfg.Models)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad yaml", content: "server: [", wantErr: "parse config file"},
		{name: "bad port", content: "server:\n  port: 70000\n", wantErr: "server.port"},
		{name: "zero timeout", content: "dispatch:\n  timeout: 0s\n", wantErr: "dispatch.timeout"},
		{name: "bad level", content: "logging:\n  level: loud\n", wantErr: "logging.level"},
		{name: "bad format", content: "logging:\n  format: xml\n", wantErr: "logging.format"},
		{name: "unknown provider", content: "models:\n  - id: x\n    provider: mystery\n    base_url: http://x\n", wantErr: "not supported"},
		{name: "missing base url", content: "models:\n  - id: x\n    provider: openai\n", wantErr: "base_url"},
		{name: "duplicate id", content: "models:\n  - {id: x, provider: openai, base_url: http://x}\n  - {id: x, provider: xai, base_url: http://y}\n", wantErr: "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load err = %v; want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfig_OperatorKeys(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"OPENAI_API_KEY":    "sk-op",
		"ANTHROPIC_API_KEY": "  ",
		"DEEPSEEK_API_KEY":  "ds-op",
	}
	got := Default().OperatorKeys(func(k string) string { return env[k] })
	want := map[string]string{"gpt-5": "sk-op", "deepseek": "ds-op"}
	if !maps.Equal(got, want) {
		t.Errorf("OperatorKeys() = %v; want %v", got, want)
	}
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", "MULTICHAT_TEST_KEY=from-file\nMULTICHAT_TEST_SET=from-file\n")
	t.Setenv("MULTICHAT_TEST_SET", "from-env")
	t.Setenv("MULTICHAT_TEST_KEY", "")
	os.Unsetenv("MULTICHAT_TEST_KEY")

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("MULTICHAT_TEST_KEY"); got != "from-file" {
		t.Errorf("MULTICHAT_TEST_KEY = %q", got)
	}
	if got := os.Getenv("MULTICHAT_TEST_SET"); got != "from-env" {
		t.Errorf("MULTICHAT_TEST_SET = %q; existing variables must win", got)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "model", "gpt-5")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written below warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"model":"gpt-5"`) {
		t.Errorf("unexpected json output %q", out)
	}

	if _, err := NewLogger(LoggingConfig{Format: "xml"}, &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
