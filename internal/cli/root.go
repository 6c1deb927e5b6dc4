// Package cli implements the prayerlog commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/john/prayerlog/internal/config"
	"github.com/john/prayerlog/internal/detect"
	"github.com/john/prayerlog/internal/processor"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	logger     = slog.Default()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "prayerlog",
	Short: "Detect prayer requests in live stream chat",
	Long: "Polls a live chat (YouTube, Twitch or Kick), scores every message for prayer-request " +
		"language and records the matches in Google Sheets, Excel, JSONL or SQLite.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or config.yaml)")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "config.yaml"
}

// readConfig loads the configuration without validating it and sets up logging
func readConfig() (*config.Config, func(), error) {
	cfg, err := config.Read(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// setupLogger replaces the package logger according to cfg.Logging and --debug
func setupLogger(cfg *config.Config) (func(), error) {
	level := cfg.LogLevel()
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
	return closer, nil
}

func newProcessor(cfg *config.Config) (*processor.Processor, error) {
	lex, err := detect.NewLexicon(cfg.Lexicon)
	if err != nil {
		return nil, fmt.Errorf("build lexicon: %w", err)
	}
	return processor.New(detect.NewClassifier(lex), processor.WithOffset(cfg.TimestampOffset())), nil
}
