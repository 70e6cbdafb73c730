package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"econbot/internal/bot"
	"econbot/internal/config"
	"econbot/internal/digest"
	"econbot/internal/fetcher"
	"econbot/internal/logging"
	"econbot/internal/model"
	"econbot/internal/monitor"
	"econbot/internal/notifier"
	"econbot/internal/source"
	"econbot/internal/storage"
	"econbot/internal/translate"
)

func main() {
	// keys.env holds secrets outside of config.hcl; both files are optional
	_ = godotenv.Load("keys.env")
	_ = godotenv.Load()

	cfg := config.Get()
	if err := config.Err(); err != nil {
		log.Printf("ERROR: invalid config: %v", err)
		return
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("failed to load timezone", "error", err)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("failed to create botAPI", "error", err)
		return
	}

	db, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to connect to db", "error", err)
		return
	}
	defer db.Close()

	defs, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		logger.Error("failed to load sources", "error", err)
		return
	}

	httpClient := &http.Client{Timeout: cfg.SourceTimeout}

	sources, err := source.Build(defs, httpClient)
	if err != nil {
		logger.Error("failed to build sources", "error", err)
		return
	}

	var (
		itemStorage   = storage.NewItemStorage(db)
		digestStorage = storage.NewDigestStorage(db, loc)
		tg            = notifier.New(botAPI, cfg.TelegramChannelID, cfg.TelegramChatID, logger)
		publisher     = digest.NewPublisher(digestStorage, tg, loc, logger)
		stats         = &monitor.Stats{}
	)

	fetcherCfg := fetcher.Config{
		Keywords:        cfg.FilterKeywords,
		FetchInterval:   cfg.FetchInterval,
		SourceTimeout:   cfg.SourceTimeout,
		ItemRetention:   cfg.ItemRetention,
		DigestRetention: cfg.DigestRetention,
		PruneHour:       cfg.PruneHour,
		Location:        loc,
		ReviewMode:      cfg.ReviewMode,
		Translator:      translate.New(cfg.TranslateEndpoint, cfg.TranslateTarget, logger),
		Logger:          logger,
	}
	if cfg.FetchSummaries {
		fetcherCfg.Summarizer = source.NewReadabilitySummarizer(httpClient, 500)
	}

	pipeline := fetcher.New(
		itemStorage,
		digestStorage,
		publisher,
		tg,
		lo.Map(sources, func(s source.Source, _ int) fetcher.Source { return s }),
		fetcherCfg,
	)
	pipeline.OnCycle(stats.Record)

	b := bot.New(botAPI, logger)
	b.RegisterCmdView("start", bot.ViewCmdStart())
	b.RegisterCmdView("digest", bot.ViewCmdDigest(publisher))
	b.RegisterCallbackView(model.ActionMergePrefix, bot.ViewCallbackMerge(publisher))
	b.RegisterCallbackView(model.ActionDelete, bot.ViewCallbackDelete())
	b.RegisterCallbackView(model.ActionForward, bot.ViewCallbackForward(cfg.TelegramChannelID))

	logger.Info("starting", "sources", len(sources), "interval", cfg.FetchInterval, "review_mode", cfg.ReviewMode)

	go func(ctx context.Context) {
		if err := pipeline.Run(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("failed to run fetcher", "error", err)
				return
			}

			logger.Info("fetcher has stopped")
		}
	}(ctx)

	if cfg.MonitorAddr != "" {
		srv := monitor.New(stats, itemStorage, publisher, 3*cfg.FetchInterval, logger)

		go func(ctx context.Context) {
			if err := srv.Run(ctx, cfg.MonitorAddr); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("failed to run monitor", "error", err)
					return
				}

				logger.Info("monitor has stopped")
			}
		}(ctx)
	}

	if err := b.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("failed to run bot", "error", err)
			return
		}

		logger.Info("bot has stopped")
	}
}
