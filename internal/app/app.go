package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/test7679/gold-rate-alert/internal/alerting"
	"github.com/test7679/gold-rate-alert/internal/config"
	"github.com/test7679/gold-rate-alert/internal/extract"
	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/service"
	"github.com/test7679/gold-rate-alert/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	out io.Writer
	// pageFetcher replaces the headless browser in check runs when set.
	pageFetcher fetcher.PageFetcher
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), out: os.Stdout}
}

// SetOutput redirects table output, stdout by default.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

func (a *App) newFetcher(file string) fetcher.PageFetcher {
	if file != "" {
		return &fetcher.File{Path: file, URL: a.Config.Source.URL}
	}
	if a.pageFetcher != nil {
		return a.pageFetcher
	}

	src := a.Config.Source
	return fetcher.NewBrowser(fetcher.BrowserOptions{
		URL:               src.URL,
		NavigationTimeout: src.NavigationTimeout,
		SettleDelay:       src.SettleDelay,
		WaitSelector:      src.WaitSelector,
		ItemSelectors:     src.ItemSelectors,
		UserAgent:         src.UserAgent,
		ChromePath:        src.ChromePath,
		Headless:          src.Headless,
		DebugDir:          src.DebugDir,
	}, a.Logger)
}

func (a *App) newExtractor() *extract.Extractor {
	return extract.New(a.Config.Source.ItemSelectors)
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	loc, err := time.LoadLocation(a.Config.Notify.Timezone)
	if err != nil {
		return nil, fmt.Errorf("notify.timezone: %w", err)
	}

	cfg := a.Config.Telegram
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken:  cfg.BotToken,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.APIBase,
		Timeout:   cfg.Timeout,
		ParseMode: cfg.ParseMode,
		Format: alerting.Format{
			Title:      a.Config.Notify.Title,
			Location:   loc,
			TimeFormat: a.Config.Notify.TimeFormat,
		},
	}, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (storage.SnapshotStore, func(), error) {
	return storage.Open(ctx, a.Config.State, a.Config.Database)
}

// Check runs one rate check. Any failure past configuration is reported to the chat before it is returned.
func (a *App) Check(ctx context.Context) error {
	if err := a.Config.RequireNotifier(); err != nil {
		return err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		err = fmt.Errorf("open state store: %w", err)
		a.Logger.Error().Err(err).Msg("rate check failed")
		if notifyErr := service.NotifyFailure(ctx, notifier, err, a.Config.Source.URL, time.Now()); notifyErr != nil {
			return errors.Join(err, notifyErr)
		}
		return err
	}
	defer closeStore()

	svc := service.New(service.Options{
		SourceURL: a.Config.Source.URL,
		LockKey:   a.Config.State.LockKey,
		DebugDir:  a.Config.Source.DebugDir,
	}, a.newFetcher(""), a.newExtractor(), store, notifier, a.Logger)

	res, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("run_id", res.RunID).
		Str("outcome", string(res.Outcome)).
		Bool("notified", res.Notified).
		Bool("skipped", res.Skipped).
		Msg("rate check finished")
	return nil
}

// ExtractOptions configure a dry-run extraction.
type ExtractOptions struct {
	// File reads a saved HTML dump instead of rendering the live page.
	File string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
