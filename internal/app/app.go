// Package app собирает зависимости сервисов рассылки из конфига.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fb-promo-bot/internal/adapters/composer"
	"fb-promo-bot/internal/adapters/messenger"
	"fb-promo-bot/internal/adapters/notify"
	"fb-promo-bot/internal/adapters/repo"
	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/cache"
	"fb-promo-bot/internal/infra/config"
	"fb-promo-bot/internal/infra/db"
	"fb-promo-bot/internal/infra/metrics"
	"fb-promo-bot/internal/infra/openai"
	"fb-promo-bot/internal/infra/queue"
	"fb-promo-bot/internal/usecase/promo"
	"fb-promo-bot/internal/usecase/roster"
)

// App содержит собранные сервисы.
type App struct {
	Config    config.AppConfig
	Policy    domain.Policy
	Promo     *promo.Service
	Roster    *roster.Service
	Messenger *messenger.Client

	closers []func()
}

// storage объединяет то, что умеют оба хранилища.
type storage interface {
	domain.RosterStore
	domain.ActivityRecorder
	domain.StatsRepo
}

// Build собирает приложение. Ошибки подключения к обязательным зависимостям возвращаются сразу.
func Build(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Policy: policy}

	store, err := a.storage(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	var pause domain.PauseFlag = repo.NewFilePause(cfg.Control.PauseFile)
	var opts []promo.Option
	if rdb != nil {
		pause = cache.NewRedisPause(rdb, cfg.Control.PauseKey)
		opts = append(opts, promo.WithRunLock(cache.NewRedisLock(rdb, cfg.Control.RunLockKey, cfg.Control.RunLockTTL)))
	}

	reporters, err := a.reporters(cfg, rdb, policy, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if len(reporters) > 0 {
		opts = append(opts, promo.WithReporters(reporters...))
	}

	a.Messenger = messenger.NewClient(messenger.Config{
		BaseURL:     cfg.Messenger.BaseURL,
		APIVersion:  cfg.Messenger.APIVersion,
		AccessToken: cfg.Messenger.PageAccessToken,
		Timeout:     cfg.Messenger.Timeout,
	})
	gateway := messenger.NewGateway(a.Messenger, messenger.GatewayConfig{
		Tag:          cfg.Messenger.Tag,
		ReengageTag:  cfg.Messenger.ReengageTag,
		ReengageText: cfg.Messenger.ReengageText,
	}, logger)

	var gen domain.TextGenerator
	llm := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	if llm.Configured() {
		gen = composer.NewOpenAI(llm, cfg.OpenAI.Model)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY не задан, тексты будут шаблонными")
	}
	comp := composer.New(gen, cfg.OpenAI.Timeout, logger)

	a.Promo = promo.NewService(store, store, comp, gateway, pause, policy, logger, opts...)
	a.Roster = roster.NewService(store, a.Messenger, a.pageID(ctx, logger), cfg.Messenger.SeedActive, logger)
	return a, nil
}

func (a *App) storage(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (storage, error) {
	switch cfg.Storage.Driver {
	case "file", "":
		logger.Info().Str("users", cfg.Storage.UsersFile).Msg("хранилище: файлы")
		return repo.NewFileStore(cfg.Storage.UsersFile, cfg.Storage.StatsFile), nil
	case "postgres":
		if cfg.PGDSN == "" {
			return nil, errors.New("PG_DSN не задан для STORAGE_DRIVER=postgres")
		}
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		logger.Info().Msg("хранилище: postgres")
		return pg, nil
	default:
		return nil, fmt.Errorf("неизвестный STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
}

func (a *App) reporters(cfg config.AppConfig, rdb *redis.Client, policy domain.Policy, logger zerolog.Logger) ([]domain.RunReporter, error) {
	var out []domain.RunReporter
	if cfg.Reporting.RabbitURL != "" {
		rr, err := queue.NewRabbitReporter(cfg.Reporting.RabbitURL, cfg.Reporting.RunsQueue)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rr.Close() })
		out = append(out, rr)
	}
	if rdb != nil && cfg.Reporting.RunsRedisKey != "" {
		out = append(out, queue.NewRedisReporter(rdb, cfg.Reporting.RunsRedisKey, 0))
	}
	if cfg.Reporting.TGBotToken != "" && cfg.Reporting.TGAdminChatID != 0 {
		bot, err := notify.NewTelegramBot(cfg.Reporting.TGBotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram-уведомления отключены")
		} else {
			out = append(out, notify.NewTelegram(bot, cfg.Reporting.TGAdminChatID, policy.Location))
		}
	}
	return out, nil
}

// pageID берёт PAGE_ID из конфига или спрашивает Graph API.
func (a *App) pageID(ctx context.Context, logger zerolog.Logger) string {
	if a.Config.Messenger.PageID != "" || a.Config.Messenger.PageAccessToken == "" {
		return a.Config.Messenger.PageID
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := a.Messenger.PageID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("не удалось определить PAGE_ID, синхронизация ростера недоступна")
		return ""
	}
	return id
}

// RegisterMetrics регистрирует метрики в стандартном реестре.
func RegisterMetrics() {
	metrics.MustRegister(prometheus.DefaultRegisterer)
}

// Close освобождает подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
