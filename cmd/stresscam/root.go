package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "stresscam",
		Short:         "Live facial-emotion stress monitoring",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default stresscam.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newSessionsCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newHashPasswordCommand())

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
