package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.3.0"

func main() {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "engram",
		Short:   "Engram: conversational memory service",
		Long:    "Engram indexes conversations into searchable memory and distills them into durable facts.",
		Version: version,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(backupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	if level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
