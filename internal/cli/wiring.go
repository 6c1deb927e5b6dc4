package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/john/prayerlog/internal/config"
	"github.com/john/prayerlog/internal/kick"
	"github.com/john/prayerlog/internal/sink"
	"github.com/john/prayerlog/internal/source"
	"github.com/john/prayerlog/internal/twitch"
	"github.com/john/prayerlog/internal/uploader"
	"github.com/john/prayerlog/internal/youtube"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// googleScopes are requested on top of read-only YouTube access so a single
// cached token serves both the chat source and the Sheets sink
var googleScopes = []string{sheets.SpreadsheetsScope, drive.DriveMetadataReadonlyScope}

// googleAuth creates the authorized Google client on first use
type googleAuth struct {
	cfg    *config.Config
	once   sync.Once
	client *http.Client
	err    error
}

func (g *googleAuth) httpClient(ctx context.Context) (*http.Client, error) {
	g.once.Do(func() {
		oauthCfg, err := youtube.LoadOAuthConfig(g.cfg.Source.YouTube.ClientSecrets, googleScopes...)
		if err != nil {
			g.err = err
			return
		}
		g.client, g.err = youtube.HTTPClient(ctx, oauthCfg, g.cfg.Source.YouTube.TokenFile, logger)
	})
	return g.client, g.err
}

// openSource connects to the configured platform. Push-based platforms run
// in the background on wg until ctx is done.
func openSource(ctx context.Context, cfg *config.Config, auth *googleAuth, wg *sync.WaitGroup) (source.Source, error) {
	switch cfg.Source.Platform {
	case config.PlatformYouTube:
		client, err := auth.httpClient(ctx)
		if err != nil {
			return nil, err
		}
		svc, err := youtube.NewService(ctx, client)
		if err != nil {
			return nil, err
		}
		chatID, err := youtube.FindLiveChatID(ctx, svc, cfg.Source.YouTube.VideoID)
		if err != nil {
			return nil, err
		}
		logger.Info("found live chat", "video_id", cfg.Source.YouTube.VideoID, "live_chat_id", chatID)
		return youtube.New(svc, chatID, logger), nil

	case config.PlatformTwitch:
		buf := source.NewBuffer(cfg.Source.BufferSize, 0)
		conn := twitch.New(cfg.Source.Twitch.Username, cfg.Source.Twitch.OAuth, cfg.Source.Twitch.Channels, logger)
		startConnector(ctx, wg, "twitch", func() error { return conn.Start(ctx, buf) })
		logger.Info("monitoring twitch channels", "channels", cfg.Source.Twitch.Channels)
		return buf, nil

	case config.PlatformKick:
		buf := source.NewBuffer(cfg.Source.BufferSize, 0)
		conn := kick.New(cfg.Source.Kick.Channels, logger)
		startConnector(ctx, wg, "kick", func() error { return conn.Start(ctx, buf) })
		logger.Info("monitoring kick channels", "count", len(cfg.Source.Kick.Channels))
		return buf, nil
	}
	return nil, fmt.Errorf("unknown platform %q", cfg.Source.Platform)
}

func startConnector(ctx context.Context, wg *sync.WaitGroup, name string, start func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := start(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("connector stopped", "platform", name, "error", err)
		}
	}()
}

// openSinks builds the primary sink and every secondary sink. The JSONL sink,
// when configured, is returned separately so the archiver can skip its open file.
func openSinks(ctx context.Context, cfg *config.Config, auth *googleAuth, completed chan<- string) (sink.Sink, *sink.JSONL, error) {
	var (
		sinks []sink.Sink
		jsonl *sink.JSONL
	)
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	for _, name := range cfg.SinkTypes() {
		s, err := openSink(ctx, cfg, auth, name, completed)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s sink: %w", name, err)
		}
		if j, ok := s.(*sink.JSONL); ok {
			jsonl = j
		}
		layout := s.Layout()
		logger.Info("opened sink", "sink", name, "layout", layout, "columns", len(layout.Headers()))
		sinks = append(sinks, s)
	}

	if len(sinks) == 1 {
		return sinks[0], jsonl, nil
	}
	return sink.NewFanout(sinks[0], sinks[1:], logger), jsonl, nil
}

func openSink(ctx context.Context, cfg *config.Config, auth *googleAuth, name string, completed chan<- string) (sink.Sink, error) {
	switch name {
	case config.SinkSheets:
		client, err := auth.httpClient(ctx)
		if err != nil {
			return nil, err
		}
		sheetsSvc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		driveSvc, err := drive.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("create drive service: %w", err)
		}
		s, err := sink.OpenSheets(ctx, sheetsSvc, cfg.Sink.Sheets.Spreadsheet, sink.SheetsOptions{
			Drive:      driveSvc,
			WritePause: cfg.Sink.Sheets.WritePause,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("writing to spreadsheet", "url", s.URL())
		return s, nil

	case config.SinkXLSX:
		layout := sink.LayoutBrief
		if cfg.Sink.XLSX.FullLayout {
			layout = sink.LayoutFull
		}
		return sink.NewXLSX(cfg.Sink.XLSX.Path, layout, logger)

	case config.SinkJSONL:
		return sink.NewJSONL(cfg.Sink.JSONL.Dir, sink.JSONLOptions{
			Prefix:          cfg.Sink.JSONL.Prefix,
			RotateAfter:     time.Duration(cfg.Sink.JSONL.RotateMinutes) * time.Minute,
			RotateMegabytes: cfg.Sink.JSONL.RotateMegabytes,
			Completed:       completed,
			Logger:          logger,
		})

	case config.SinkSQLite:
		return sink.NewSQLite(cfg.Sink.SQLite.Path, logger)

	case config.SinkTelegram:
		return sink.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, cfg.TelegramMinTier(), logger)
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

func newUploader(ctx context.Context, cfg *config.Config, isActive func(string) bool) (*uploader.Uploader, error) {
	a := cfg.Archive
	if a.RoleARN != "" {
		logger.Info("using web identity credentials", "role", a.RoleARN)
	} else if a.AccessKeyID != "" {
		logger.Warn("using static AWS credentials")
	}

	return uploader.New(ctx, uploader.Options{
		Bucket:          a.Bucket,
		Region:          a.Region,
		KeyPrefix:       a.Prefix,
		Endpoint:        a.Endpoint,
		RoleARN:         a.RoleARN,
		TokenFile:       a.TokenFile,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		DeleteAfter:     a.DeleteAfter,
		MaxRetries:      a.MaxRetries,
		RescanSchedule:  a.RescanSchedule,
		IsActive:        isActive,
		Logger:          logger,
	})
}
