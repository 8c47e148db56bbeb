package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool
var archivePath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bayescmp",
	Short: "Bayesian regression model fitting and comparison",
	Long: `bayescmp orchestrates Bayesian regression model fits and compares them.
Among other features:

  - Canonical model specifications (formula, family, priors, sampler config)
  - A run-scoped fit cache: identical specifications never re-sample
  - Posterior summaries with reliability flags
  - Model comparison via WAIC, LOO-IC, and log Bayes factors
  - A built-in Metropolis engine for gaussian models, so plans run
    without an external sampler installed
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelInfo
		}
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(h))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().StringVarP(&archivePath, "archive", "a", "", "SQLite run archive path (default is no archiving)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
