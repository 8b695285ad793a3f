package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fb-promo-bot/internal/app"
	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/config"
	"fb-promo-bot/internal/infra/log"
	"fb-promo-bot/internal/infra/metrics"
	"fb-promo-bot/internal/usecase/promo"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.RegisterMetrics()
	metrics.StartServer(ctx, logger, cfg.Control.MetricsAddr)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать зависимости")
	}
	defer a.Close()

	interval := cfg.Schedule.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	logger.Info().Dur("interval", interval).Msg("scheduler: запущен")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	tick(ctx, a.Promo, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
			tick(ctx, a.Promo, logger)
		}
	}
}

func tick(ctx context.Context, svc *promo.Service, logger zerolog.Logger) {
	summary, err := svc.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		logger.Info().Msg("scheduler: предыдущий прогон ещё идёт")
	case err != nil:
		logger.Error().Err(err).Str("run_id", summary.RunID).Msg("scheduler: прогон завершился ошибкой")
	}
}
