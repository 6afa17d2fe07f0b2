package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"multichat/internal/credentials"
	"multichat/internal/engine"
	"multichat/internal/models"
	providerfactory "multichat/internal/provider/factory"
	"multichat/internal/router"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	var (
		modelIDs       []string
		stream         bool
		temperature    float64
		maxTokens      int
		systemPromptID string
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt to several models and print the answers as NDJSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts models.GenerationOptions
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				opts.MaxOutputTokens = &maxTokens
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			rt, err := loadRuntime(v)
			if err != nil {
				return err
			}

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt must not be empty")
			}
			conversation := []models.Message{{Role: models.RoleUser, Content: prompt}}
			if systemPromptID != "" {
				preset, ok := models.LookupSystemPrompt(systemPromptID)
				if !ok {
					return fmt.Errorf("unknown system prompt %q", systemPromptID)
				}
				conversation = models.WithSystemPrompt(preset.Content, conversation)
			}

			keys := credentials.Resolve(nil, nil, rt.cfg.OperatorKeys(os.Getenv))
			registry, err := providerfactory.BuildRegistry(rt.cfg.Models, keys, providerfactory.NewHTTPClient(), rt.logger)
			if err != nil {
				return err
			}
			manager, err := engine.New(registry, router.New(rt.cfg.Models),
				engine.WithTimeout(rt.cfg.Dispatch.Timeout),
				engine.WithLogger(rt.logger),
			)
			if err != nil {
				return err
			}

			if len(modelIDs) == 0 {
				modelIDs = manager.ConfiguredModels()
			}
			if len(modelIDs) == 0 {
				return errors.New("no model selected and no operator API key configured")
			}

			ctx := engine.WithDispatchID(cmd.Context(), uuid.NewString())
			enc := json.NewEncoder(cmd.OutOrStdout())
			if stream {
				for chunk := range manager.DispatchStream(ctx, modelIDs, conversation, opts) {
					if err := enc.Encode(chunk); err != nil {
						return fmt.Errorf("write chunk: %w", err)
					}
				}
				return nil
			}

			for _, res := range manager.DispatchBatch(ctx, modelIDs, conversation, opts) {
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&modelIDs, "model", "m", nil, "Model ID to query (repeatable; default: every model with an operator key)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print chunks as they arrive instead of one result per model")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (provider default when unset)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum output tokens (provider default when unset)")
	cmd.Flags().StringVar(&systemPromptID, "system-prompt", "", "System prompt preset: professional or creative")

	return cmd
}
