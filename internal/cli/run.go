package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/john/prayerlog/internal/config"
	"github.com/john/prayerlog/internal/health"
	"github.com/john/prayerlog/internal/monitor"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor a live chat and record prayer requests",
		RunE:  runMonitor,
	}

	cmd.Flags().String("video-id", "", "YouTube video id (default: the channel's active broadcast)")
	cmd.Flags().String("sheet", "", "Spreadsheet URL, key or title")
	cmd.Flags().Duration("interval", 0, "Minimum wait between chat polls")
	cmd.Flags().String("sink", "", "Primary sink: sheets, xlsx, jsonl or sqlite")
	cmd.Flags().String("platform", "", "Chat platform: youtube, twitch or kick")

	RootCmd.AddCommand(cmd)
}

// applyRunFlags lets command-line flags override the loaded configuration
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("video-id") {
		cfg.Source.YouTube.VideoID, _ = flags.GetString("video-id")
	}
	if flags.Changed("sheet") {
		cfg.Sink.Sheets.Spreadsheet, _ = flags.GetString("sheet")
	}
	if flags.Changed("interval") {
		cfg.Monitor.MinInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("sink") {
		s, _ := flags.GetString("sink")
		cfg.Sink.Type = strings.ToLower(s)
	}
	if flags.Changed("platform") {
		p, _ := flags.GetString("platform")
		cfg.Source.Platform = strings.ToLower(p)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := readConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	proc, err := newProcessor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("prayerlog starting", "platform", cfg.Source.Platform, "sinks", cfg.SinkTypes())

	auth := &googleAuth{cfg: cfg}
	var completed chan string
	if cfg.Archive.Enabled {
		completed = make(chan string, cfg.Archive.QueueSize)
	}

	snk, jsonl, err := openSinks(ctx, cfg, auth, completed)
	if err != nil {
		return err
	}

	var connectors sync.WaitGroup
	src, err := openSource(ctx, cfg, auth, &connectors)
	if err != nil {
		snk.Close()
		return err
	}

	// The archiver outlives the signal context so the final file still gets uploaded
	uploadCtx, cancelUpload := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelUpload()
	uploadDone := make(chan struct{})
	close(uploadDone)

	if cfg.Archive.Enabled && jsonl == nil {
		logger.Warn("archive is enabled but no jsonl sink is configured")
	}
	if cfg.Archive.Enabled && jsonl != nil {
		up, err := newUploader(ctx, cfg, jsonl.IsActive)
		if err != nil {
			snk.Close()
			return err
		}
		if err := up.ScanAndUploadExisting(uploadCtx, cfg.Sink.JSONL.Dir); err != nil {
			logger.Warn("failed to scan for existing files", "error", err)
		}

		uploadDone = make(chan struct{})
		go func() {
			defer close(uploadDone)
			if err := up.Start(uploadCtx, cfg.Sink.JSONL.Dir, completed); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("uploader error", "error", err)
			}
		}()
	}

	mon := monitor.New(src, proc, snk, monitor.Options{
		MinInterval: cfg.Monitor.MinInterval,
		RetryDelay:  cfg.Monitor.RetryDelay,
		Logger:      logger,
	})

	var healthServer *health.Server
	if cfg.Health.Enabled {
		healthServer = health.New(cfg.Health.Addr, func() any { return mon.Stats() }, logger)
		go func() {
			if err := healthServer.Start(); err != nil {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	runErr := mon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if healthServer != nil {
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down health server", "error", err)
		}
	}

	stop()
	connectors.Wait()

	if err := snk.Close(); err != nil {
		logger.Warn("error closing sinks", "error", err)
	}
	if completed != nil {
		close(completed)
	}

	select {
	case <-uploadDone:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, abandoning uploads")
		cancelUpload()
	}

	logger.Info("prayerlog stopped")
	return runErr
}
