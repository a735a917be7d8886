// Package cmd assembles the command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adilrumy05/SmartPlant-Backend/cmd/review"
	"github.com/adilrumy05/SmartPlant-Backend/cmd/scan"
	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/logging"
)

// RootCommand creates and returns the root command with all subcommands
// attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "smartplant",
		Short: "SmartPlant observation triage CLI",
		Long:  "Identifies plant species on submitted photos and manages the review workflow for the resulting observations.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if settings.Debug {
				logging.SetLevel(slog.LevelDebug)
			}
		},
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		scan.Command(settings),
		review.Command(settings),
	)

	return rootCmd
}

// setupFlags defines global flags and binds them so command line arguments
// take precedence over config file values.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64VarP(&settings.Triage.Threshold, "threshold", "t", viper.GetFloat64("triage.threshold"), "Auto-flag observations whose top confidence is below this value")
	rootCmd.PersistentFlags().IntVarP(&settings.Worker.TopK, "topk", "k", viper.GetInt("worker.topk"), "Number of ranked predictions to request from the worker")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}
