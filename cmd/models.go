package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"multichat/internal/credentials"
	"multichat/internal/translator"
)

func newModelsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog and which models have an operator key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(v)
			if err != nil {
				return err
			}

			keys := credentials.Resolve(nil, nil, rt.cfg.OperatorKeys(os.Getenv))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROVIDER\tSTREAMING\tKEY")
			for _, m := range translator.ModelInfos(rt.cfg.Models, keys) {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", m.ID, m.Provider, m.Streaming, m.HasAPIKey)
			}
			return tw.Flush()
		},
	}
}
