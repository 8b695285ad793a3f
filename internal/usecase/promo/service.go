package promo

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
	"fb-promo-bot/internal/usecase/eligibility"
)

// Service выполняет один прогон промо-рассылки за раз.
type Service struct {
	store     domain.RosterStore
	stats     domain.StatsRepo
	composer  domain.Composer
	gateway   domain.Gateway
	pause     domain.PauseFlag
	lock      domain.RunLock
	reporters []domain.RunReporter
	clock     domain.Clock
	policy    domain.Policy
	log       zerolog.Logger

	running atomic.Bool
}

// Option настраивает Service.
type Option func(*Service)

// WithRunLock добавляет межпроцессную блокировку поверх локальной.
func WithRunLock(lock domain.RunLock) Option {
	return func(s *Service) { s.lock = lock }
}

// WithReporters подключает получателей итогов прогона.
func WithReporters(reporters ...domain.RunReporter) Option {
	return func(s *Service) { s.reporters = append(s.reporters, reporters...) }
}

// WithClock подменяет источник времени.
func WithClock(clock domain.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService создаёт планировщик рассылки.
func NewService(store domain.RosterStore, stats domain.StatsRepo, composer domain.Composer, gateway domain.Gateway, pause domain.PauseFlag, policy domain.Policy, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		stats:    stats,
		composer: composer,
		gateway:  gateway,
		pause:    pause,
		clock:    domain.SystemClock{},
		policy:   policy,
		log:      logger.With().Str("component", "promo").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type target struct {
	index int
	kind  domain.PromoKind
}

// Run выполняет прогон: отбор, последовательная отправка с паузой между
// сообщениями и сохранение ростера и итога.
func (s *Service) Run(ctx context.Context) (domain.RunSummary, error) {
	now := s.clock.Now()
	summary := domain.RunSummary{RunID: uuid.NewString(), StartedAt: now}

	if !s.running.CompareAndSwap(false, true) {
		return s.reject(summary, domain.RunRejected), domain.ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if s.isPaused(ctx) {
		summary.Status = domain.RunPausedBeforeStart
		summary.PausedDuringRun = true
		s.log.Info().Str("run", summary.RunID).Msg("рассылка на паузе, прогон пропущен")
		return s.finish(ctx, summary), nil
	}

	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx)
		if err != nil {
			return s.reject(summary, domain.RunLockFailed), fmt.Errorf("блокировка прогона: %w", err)
		}
		if !ok {
			return s.reject(summary, domain.RunRejected), domain.ErrAlreadyRunning
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn().Err(err).Msg("не удалось снять блокировку прогона")
			}
		}()
	}

	roster, err := s.store.LoadRoster(ctx)
	if err != nil {
		return summary, fmt.Errorf("загрузка ростера: %w", err)
	}

	roster, summary = s.Dispatch(ctx, roster, now, summary)

	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.SaveRoster(persistCtx, roster); err != nil {
		return s.finish(persistCtx, summary), fmt.Errorf("сохранение ростера: %w", err)
	}
	return s.finish(persistCtx, summary), nil
}

// Dispatch отправляет промо отобранным пользователям и возвращает обновлённый ростер.
// Входной срез не изменяется.
func (s *Service) Dispatch(ctx context.Context, roster []domain.User, now time.Time, summary domain.RunSummary) ([]domain.User, domain.RunSummary) {
	roster = domain.CloneRoster(roster)
	selection := eligibility.Select(roster, now, s.policy)
	summary.TotalUsers = len(roster)
	summary.TotalEligible = selection.Total()
	summary.Status = domain.RunCompleted

	index := make(map[string]int, len(roster))
	for i, u := range roster {
		if _, ok := index[u.ID]; !ok {
			index[u.ID] = i
		}
	}
	targets := make([]target, 0, selection.Total())
	seen := make(map[string]bool, selection.Total())
	appendTargets := func(users []domain.User, kind domain.PromoKind) {
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			targets = append(targets, target{index: index[u.ID], kind: kind})
		}
	}
	appendTargets(selection.Instant, domain.PromoInstant)
	appendTargets(selection.Fallback, domain.PromoFallback)

	s.log.Info().
		Str("run", summary.RunID).
		Int("instant", len(selection.Instant)).
		Int("fallback", len(selection.Fallback)).
		Int("total", len(roster)).
		Msg("прогон рассылки начат")

	limiter := newPacer(s.policy.Pacing)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			summary.Status = domain.RunCancelled
			s.log.Warn().Err(err).Str("run", summary.RunID).Int("sent", summary.Sent).Msg("прогон прерван")
			break
		}
		if s.isPaused(ctx) {
			summary.Status = domain.RunPausedMidRun
			summary.PausedDuringRun = true
			s.log.Info().Str("run", summary.RunID).Int("sent", summary.Sent).Msg("рассылка поставлена на паузу во время прогона")
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			summary.Status = domain.RunCancelled
			s.log.Warn().Err(err).Str("run", summary.RunID).Msg("прогон прерван")
			break
		}

		user := &roster[t.index]
		text := s.composer.Compose(ctx, user.FirstName())
		outcome := s.gateway.Deliver(ctx, user.ID, text)
		metrics.ObserveDelivery(t.kind, outcome)

		logEvent := s.log.Info()
		switch outcome {
		case domain.Delivered:
			user.MarkSent(now)
			summary.Sent++
		case domain.PermanentlyInvalidRecipient:
			summary.Skipped++
			summary.Invalid++
			logEvent = s.log.Warn()
		default:
			summary.Failed++
			logEvent = s.log.Warn()
		}
		logEvent.
			Str("run", summary.RunID).
			Str("user", user.ID).
			Str("name", user.DisplayName()).
			Str("kind", string(t.kind)).
			Str("outcome", outcome.String()).
			Msg("промо обработано")
	}
	return roster, summary
}

// Running сообщает, выполняется ли прогон в этом процессе.
func (s *Service) Running() bool {
	return s.running.Load()
}

// SetPaused включает или снимает операторскую паузу.
func (s *Service) SetPaused(ctx context.Context, paused bool) error {
	if s.pause == nil {
		return fmt.Errorf("флаг паузы не настроен")
	}
	return s.pause.SetPaused(ctx, paused)
}

// LastSummary возвращает итог последнего прогона.
func (s *Service) LastSummary(ctx context.Context) (domain.RunSummary, error) {
	return s.stats.LastRunSummary(ctx)
}

func (s *Service) isPaused(ctx context.Context) bool {
	if s.pause == nil {
		return false
	}
	paused, err := s.pause.IsPaused(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось прочитать флаг паузы")
		return false
	}
	return paused
}

// reject фиксирует только метрику: отклонённый запуск не трогает статистику и ростер.
func (s *Service) reject(summary domain.RunSummary, status domain.RunStatus) domain.RunSummary {
	summary.Status = status
	summary.FinishedAt = s.clock.Now()
	metrics.ObserveRun(summary)
	if status == domain.RunLockFailed {
		s.log.Error().Str("run", summary.RunID).Msg("не удалось взять блокировку прогона")
	} else {
		s.log.Warn().Str("run", summary.RunID).Msg("прогон уже выполняется, запуск отклонён")
	}
	return summary
}

func (s *Service) finish(ctx context.Context, summary domain.RunSummary) domain.RunSummary {
	summary.FinishedAt = s.clock.Now()
	metrics.ObserveRun(summary)
	if s.stats != nil {
		if err := s.stats.SaveRunSummary(ctx, summary); err != nil {
			s.log.Error().Err(err).Msg("не удалось сохранить статистику прогона")
		}
	}
	for _, r := range s.reporters {
		if err := r.Report(ctx, summary); err != nil {
			s.log.Error().Err(err).Msg("не удалось опубликовать итог прогона")
		}
	}
	s.log.Info().
		Str("run", summary.RunID).
		Str("status", string(summary.Status)).
		Int("sent", summary.Sent).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("invalid", summary.Invalid).
		Int("eligible", summary.TotalEligible).
		Int("total", summary.TotalUsers).
		Msg("прогон рассылки завершён")
	return summary
}

func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
