package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"multichat/internal/keystore"
	providerfactory "multichat/internal/provider/factory"
	"multichat/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(v)
			if err != nil {
				return err
			}

			var store *keystore.Store
			if path := rt.cfg.KeyStore.Path; path != "" {
				store, err = keystore.Open(path)
				if err != nil {
					return fmt.Errorf("open key store: %w", err)
				}
				defer store.Close()
				rt.logger.Info("key store ready", "path", path)
			}

			srv, err := server.New(rt.cfg, server.Dependencies{
				Client:       providerfactory.NewHTTPClient(),
				KeyStore:     store,
				OperatorKeys: rt.cfg.OperatorKeys(os.Getenv),
				Logger:       rt.logger,
			})
			if err != nil {
				return err
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "Override server port from configuration")
	cmd.Flags().String("keystore", "", "SQLite file for per-user API keys")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("keystore.path", cmd.Flags().Lookup("keystore"))

	return cmd
}
