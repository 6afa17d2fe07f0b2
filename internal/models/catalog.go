package models

// Provider kinds understood by the adapter factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderXAI       = "xai"
	ProviderDeepSeek  = "deepseek"
)

// ModelSpec describes a model exposed by the aggregation engine and the
// provider integration that serves it.
type ModelSpec struct {
	ID            string `yaml:"id" json:"id"`
	DisplayName   string `yaml:"display_name" json:"display_name"`
	Provider      string `yaml:"provider" json:"provider"`
	UpstreamModel string `yaml:"upstream_model" json:"-"`
	BaseURL       string `yaml:"base_url" json:"-"`
	Streaming     bool   `yaml:"streaming" json:"streaming"`
	APIKeyEnv     string `yaml:"api_key_env" json:"-"`
}

// DefaultCatalog returns the built-in model catalog.
func DefaultCatalog() []ModelSpec {
	return []ModelSpec{
		{
			ID:            "gpt-5",
			DisplayName:   "GPT-5",
			Provider:      ProviderOpenAI,
			UpstreamModel: "gpt-4o",
			BaseURL:       "https://api.openai.com/v1",
			Streaming:     true,
			APIKeyEnv:     "OPENAI_API_KEY",
		},
		{
			ID:            "grok-4",
			DisplayName:   "Grok-4",
			Provider:      ProviderXAI,
			UpstreamModel: "grok-beta",
			BaseURL:       "https://api.x.ai/v1",
			Streaming:     true,
			APIKeyEnv:     "XAI_API_KEY",
		},
		{
			ID:            "claude-4",
			DisplayName:   "Claude 4",
			Provider:      ProviderAnthropic,
			UpstreamModel: "claude-3-5-sonnet-20241022",
			BaseURL:       "https://api.anthropic.com",
			Streaming:     true,
			APIKeyEnv:     "ANTHROPIC_API_KEY",
		},
		{
			ID:            "gemini-2.5-flash",
			DisplayName:   "Gemini 2.5 Flash",
			Provider:      ProviderGoogle,
			UpstreamModel: "gemini-2.5-flash",
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
			Streaming:     true,
			APIKeyEnv:     "GOOGLE_AI_API_KEY",
		},
		{
			ID:            "deepseek",
			DisplayName:   "DeepSeek",
			Provider:      ProviderDeepSeek,
			UpstreamModel: "deepseek-chat",
			BaseURL:       "https://api.deepseek.com/v1",
			Streaming:     false,
			APIKeyEnv:     "DEEPSEEK_API_KEY",
		},
	}
}
