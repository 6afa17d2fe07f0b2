package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"multichat/internal/config"
)

const envPrefix = "MULTICHAT"

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd(viper.New())
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "multichat",
		Short:         "Fan one conversation out to many LLM providers and merge the answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to YAML configuration file (optional)")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file with operator API keys (ignored when missing)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	cmd.PersistentFlags().Duration("timeout", 0, "Override the dispatch ceiling, e.g. 45s")
	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("env_file", cmd.PersistentFlags().Lookup("env-file"))
	_ = v.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("dispatch.timeout", cmd.PersistentFlags().Lookup("timeout"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newServeCmd(v))
	cmd.AddCommand(newAskCmd(v))
	cmd.AddCommand(newModelsCmd(v))

	return cmd
}

// runtime is the state every subcommand starts from.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

// loadRuntime loads the dotenv file and the YAML configuration, then applies
// flag and MULTICHAT_* environment overrides on top.
func loadRuntime(v *viper.Viper) (runtime, error) {
	if envFile := strings.TrimSpace(v.GetString("env_file")); envFile != "" {
		if err := config.LoadEnv(envFile); err != nil {
			return runtime{}, err
		}
	}

	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return runtime{}, err
	}

	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("dispatch.timeout") {
		cfg.Dispatch.Timeout = v.GetDuration("dispatch.timeout")
	}
	if s := v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := v.GetString("logging.format"); s != "" {
		cfg.Logging.Format = s
	}
	if v.IsSet("keystore.path") {
		cfg.KeyStore.Path = v.GetString("keystore.path")
	}

	if err := cfg.Validate(); err != nil {
		return runtime{}, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return runtime{}, err
	}
	slog.SetDefault(logger)

	return runtime{cfg: cfg, logger: logger}, nil
}
