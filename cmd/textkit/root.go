package main

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/spf13/cobra"
)

type options struct {
	json     bool
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "textkit",
		Short:         "Lightweight text analytics: dates, entities, keywords, language and more",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Logs go to stderr so they never mix with command output.
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of a table")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAnalyzeCommand(opts))
	rootCmd.AddCommand(newDateCommand(opts))
	rootCmd.AddCommand(newEntitiesCommand(opts))
	rootCmd.AddCommand(newSimilarityCommand(opts))
	rootCmd.AddCommand(newSummarizeCommand(opts))
	rootCmd.AddCommand(newLanguageCommand(opts))
	rootCmd.AddCommand(newKeywordsCommand(opts))
	rootCmd.AddCommand(newFileSizeCommand(opts))
	rootCmd.AddCommand(newSanitizeCommand(opts))

	return rootCmd
}
