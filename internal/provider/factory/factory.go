package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"multichat/internal/models"
	"multichat/internal/provider"
	claudeProvider "multichat/internal/provider/claude"
	deepseekProvider "multichat/internal/provider/deepseek"
	geminiProvider "multichat/internal/provider/gemini"
	openaiProvider "multichat/internal/provider/openai"
	xaiProvider "multichat/internal/provider/xai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// ErrUnknownProvider indicates a catalog entry naming an unsupported provider kind.
var ErrUnknownProvider = errors.New("unknown provider")

// BuildRegistry constructs one adapter per catalog entry that has a key in
// keys (indexed by model ID) and stores it in a fresh registry. Entries
// without a key are skipped; the engine reports them as unconfigured.
func BuildRegistry(catalog []models.ModelSpec, keys map[string]string, client *http.Client, logger *slog.Logger) (*provider.Registry, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := provider.NewRegistry()
	for _, spec := range catalog {
		key := strings.TrimSpace(keys[spec.ID])
		if key == "" {
			continue
		}

		adapter, err := NewAdapter(spec, key, client, logger)
		if err != nil {
			return nil, fmt.Errorf("initialise %s adapter for %s: %w", spec.Provider, spec.ID, err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.ID, err)
		}
	}
	return registry, nil
}

// NewAdapter constructs the adapter matching spec.Provider.
func NewAdapter(spec models.ModelSpec, apiKey string, client *http.Client, logger *slog.Logger) (provider.Adapter, error) {
	switch spec.Provider {
	case models.ProviderOpenAI:
		return openaiProvider.New(spec, apiKey, client, logger, openaiProvider.Options{Label: "OpenAI"})
	case models.ProviderAnthropic:
		return claudeProvider.New(spec, apiKey, client, logger)
	case models.ProviderGoogle:
		return geminiProvider.New(spec, apiKey, client, logger)
	case models.ProviderXAI:
		return xaiProvider.New(spec, apiKey, client, logger)
	case models.ProviderDeepSeek:
		return deepseekProvider.New(spec, apiKey, client, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, spec.Provider)
	}
}

// NewHTTPClient returns the shared upstream client. It sets no overall
// timeout: request lifetimes are bounded by the dispatch context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
