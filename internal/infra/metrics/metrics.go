package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
)

var (
	PromoRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_runs_total",
		Help: "Прогоны промо-рассылки по итоговому статусу",
	}, []string{"status"})
	PromoRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_run_seconds",
		Help:    "Длительность прогона рассылки",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})
	PromoDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_deliveries_total",
		Help: "Попытки доставки промо по типу и результату",
	}, []string{"kind", "outcome"})
	PromoEligibleUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promo_eligible_users",
		Help: "Размер пула кандидатов в последнем прогоне",
	})
	RosterUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roster_users",
		Help: "Количество пользователей в ростере",
	})
	ComposerFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "composer_fallbacks_total",
		Help: "Сколько раз вместо LLM использован шаблон",
	})
	WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Входящие события вебхука",
	}, []string{"object"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PromoRunsTotal,
		PromoRunSeconds,
		PromoDeliveriesTotal,
		PromoEligibleUsers,
		RosterUsers,
		ComposerFallbacksTotal,
		WebhookEventsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveDelivery учитывает попытку доставки промо.
func ObserveDelivery(kind domain.PromoKind, outcome domain.Outcome) {
	PromoDeliveriesTotal.WithLabelValues(string(kind), outcome.String()).Inc()
}

// ObserveRun учитывает завершённый прогон.
func ObserveRun(summary domain.RunSummary) {
	PromoRunsTotal.WithLabelValues(string(summary.Status)).Inc()
	switch summary.Status {
	case domain.RunRejected, domain.RunLockFailed, domain.RunPausedBeforeStart:
		return
	}
	PromoEligibleUsers.Set(float64(summary.TotalEligible))
	RosterUsers.Set(float64(summary.TotalUsers))
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		PromoRunSeconds.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
}
