// Package cmd wires the mail-audit subcommands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagLogDir   string
)

var rootCmd = &cobra.Command{
	Use:           "mail-audit",
	Short:         "Audit a mail store for compliance-relevant messages and distribute the findings",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Logging level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "Directory for per-run log files (in addition to stdout)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(initCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func normalizeLogLevel() string {
	level := strings.ToLower(flagLogLevel)
	if level == "warning" {
		level = "warn"
	}
	return level
}

func setupLogger() (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	switch normalizeLogLevel() {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return nil, nil, fmt.Errorf("invalid --log-level: %s", flagLogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if flagLogDir != "" {
		if err := os.MkdirAll(flagLogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(flagLogDir, fmt.Sprintf("mail-audit-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
