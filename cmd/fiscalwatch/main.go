// FiscalWatch - anomaly detection for municipal finance data.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivossos/fiscalwatch/internal/api"
	"github.com/ivossos/fiscalwatch/internal/bus"
	"github.com/ivossos/fiscalwatch/internal/cache"
	"github.com/ivossos/fiscalwatch/internal/config"
	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/ingest"
	"github.com/ivossos/fiscalwatch/internal/metrics"
	"github.com/ivossos/fiscalwatch/internal/notify"
	"github.com/ivossos/fiscalwatch/internal/repository"
	"github.com/ivossos/fiscalwatch/internal/rules"
	"github.com/ivossos/fiscalwatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("starting fiscalwatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	collector := metrics.NewCollector()
	engine := rules.NewEngine(logger)
	materializer := rules.NewMaterializer()
	processor := ingest.NewProcessor(logger, cacheImpl, ingest.NewStaticPriceSource())

	manager := notify.NewManager(logger, collector, buildNotifiers(cfg)...)

	digest, err := notify.NewDigestScheduler(logger, repo, manager, cfg.Notify.WeeklyDigestCron)
	if err != nil {
		slog.Error("failed to initialize digest scheduler", "error", err)
		os.Exit(1)
	}
	digest.Start()
	defer digest.Stop()

	asyncWorker := worker.New(logger, busImpl, repo, engine, materializer, manager, collector, cfg.Thresholds)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, processor, asyncWorker, collector, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fiscalwatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fiscalwatch shutdown complete")
}

func newLogger(level, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func buildNotifiers(cfg *domain.Config) []notify.Notifier {
	var notifiers []notify.Notifier

	if cfg.Notify.TelegramEnabled {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
		if err != nil {
			slog.Error("failed to initialize telegram notifier", "error", err)
		} else {
			notifiers = append(notifiers, tg)
			slog.Info("telegram notifier initialized", "chat_id", cfg.Notify.TelegramChatID)
		}
	}

	if cfg.Notify.EmailEnabled {
		em, err := notify.NewEmailNotifier(
			cfg.Notify.SMTPHost,
			cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUsername,
			cfg.Notify.SMTPPassword,
			cfg.Notify.EmailRecipients,
		)
		if err != nil {
			slog.Error("failed to initialize email notifier", "error", err)
		} else {
			notifiers = append(notifiers, em)
			slog.Info("email notifier initialized", "recipients", len(cfg.Notify.EmailRecipients))
		}
	}

	return notifiers
}
