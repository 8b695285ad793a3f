package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fb-promo-bot/internal/adapters/webhook"
	"fb-promo-bot/internal/app"
	"fb-promo-bot/internal/infra/config"
	httpinfra "fb-promo-bot/internal/infra/http"
	"fb-promo-bot/internal/infra/log"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "webhook")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.RegisterMetrics()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook: не удалось собрать зависимости")
	}
	defer a.Close()

	if cfg.Messenger.VerifyToken == "" {
		logger.Warn().Msg("VERIFY_TOKEN не задан, подтверждение вебхука будет отклонено")
	}
	if cfg.Control.SendSecret == "" {
		logger.Warn().Msg("SEND_SECRET не задан, управляющие эндпоинты закрыты")
	}

	srv := httpinfra.NewServer(logger)
	webhook.NewHandler(a.Promo, a.Roster, cfg.Messenger.VerifyToken, cfg.Control.SendSecret, logger).Mount(srv.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("webhook: ошибка остановки сервера")
		}
	}()

	if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("webhook: сервер упал")
	}
	logger.Info().Msg("webhook: остановлен")
}
