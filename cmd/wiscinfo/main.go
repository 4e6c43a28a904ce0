// wiscinfo inspects the compute devices wisc would dispatch to.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amirreiter/wisc"

	// Link in the hal-backed device layer.
	_ "github.com/amirreiter/wisc/backend/native"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "wiscinfo",
	Short: "Inspect local compute devices",
	Long: `wiscinfo enumerates the compute devices visible to wisc, showing how
adapters are deduplicated, which backend serves each device, and the
relative compute weight each would carry in a workgroup.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		wisc.SetLogger(slog.New(handler))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
