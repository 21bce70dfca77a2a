package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/estatebot/internal/profile"
	"github.com/hrygo/estatebot/internal/version"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "estatebot",
	Short: "Telegram bot that estimates property values",
	Long: `estatebot answers property valuation questions on Telegram.

It extracts addresses from messages, researches them with web search and
asks an LLM for a structured estimate. Results are cached in memory and in
a SQLite database on disk.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load; environment variables take precedence")
	rootCmd.AddCommand(serveCmd, cacheCmd, checkTokenCmd, parseCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

// loadProfile reads the configuration from the environment and, when present,
// the dotenv file.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := p.FromFile(envFile); err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	p.FromEnv()
	return p, nil
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			os.Exit(1)
		}
	}
}
