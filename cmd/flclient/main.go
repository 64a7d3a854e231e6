package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/absmach/flclient/cli"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "flclient",
		Short: "Federated learning client",
		Long: `flclient joins a federated learning coordinator, trains the configured
model on local data and reports updated parameters every round.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newStartCmd(), cli.NewParamsCmd())

	return rootCmd.Execute()
}

func configureLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}
