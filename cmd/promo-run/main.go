package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"fb-promo-bot/internal/app"
	"fb-promo-bot/internal/infra/config"
	"fb-promo-bot/internal/infra/log"
)

// promo-run выполняет один прогон рассылки и печатает итог в stdout.
func main() {
	syncFirst := flag.Bool("sync", false, "синхронизировать ростер с беседами страницы перед прогоном")
	flag.Parse()

	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "promo-run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.RegisterMetrics()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("promo-run: не удалось собрать зависимости")
	}
	defer a.Close()

	if *syncFirst {
		if _, err := a.Roster.Sync(ctx); err != nil {
			logger.Error().Err(err).Msg("promo-run: синхронизация ростера не удалась")
		}
	}

	summary, err := a.Promo.Run(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
	if err != nil {
		logger.Error().Err(err).Msg("promo-run: прогон завершился ошибкой")
		a.Close()
		os.Exit(1)
	}
}
