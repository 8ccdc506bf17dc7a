package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "videoctl",
		Short:         "Operator CLI for the tiered video pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Directory containing streaming_service.yaml")

	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newReprocessCommand(ctx))
	rootCmd.AddCommand(newAnomaliesCommand(ctx))
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}
