package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"multichat/internal/models"
)

const (
	defaultPort    = 8080
	defaultTimeout = 30 * time.Second
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig       `yaml:"server"`
	Dispatch DispatchConfig     `yaml:"dispatch"`
	Logging  LoggingConfig      `yaml:"logging"`
	KeyStore KeyStoreConfig     `yaml:"keystore"`
	Models   []models.ModelSpec `yaml:"models"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DispatchConfig bounds every fan-out.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// KeyStoreConfig locates the per-user key database. An empty path disables
// stored keys.
type KeyStoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: defaultPort},
		Dispatch: DispatchConfig{Timeout: defaultTimeout},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Models:   models.DefaultCatalog(),
	}
}

// Load reads YAML configuration from disk over the defaults and validates
// the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive, got %s", c.Dispatch.Timeout)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be one of \"text\" or \"json\"", c.Logging.Format)
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if err := validateModel(m); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("model %s: duplicate id", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func validateModel(m models.ModelSpec) error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("model id must not be empty")
	}
	switch m.Provider {
	case models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGoogle, models.ProviderXAI, models.ProviderDeepSeek:
	default:
		return fmt.Errorf("model %s: provider %q is not supported", m.ID, m.Provider)
	}
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("model %s: base_url must be provided", m.ID)
	}
	return nil
}

// LoadEnv loads KEY=value files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %q: %w", p, err)
		}
	}
	return nil
}

// OperatorKeys collects the operator's default key for every model whose
// api_key_env variable is set.
func (c Config) OperatorKeys(getenv func(string) string) map[string]string {
	if getenv == nil {
		getenv = os.Getenv
	}
	keys := make(map[string]string)
	for _, m := range c.Models {
		if m.APIKeyEnv == "" {
			continue
		}
		if v := strings.TrimSpace(getenv(m.APIKeyEnv)); v != "" {
			keys[m.ID] = v
		}
	}
	return keys
}
