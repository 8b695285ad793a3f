// Package roster поддерживает ростер собеседников в актуальном состоянии.
package roster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
)

// Activity описывает наблюдённое действие собеседника (сообщение, постбэк, прочтение).
type Activity struct {
	UserID string
	Name   string
	At     time.Time
}

type participantLister interface {
	ListParticipants(ctx context.Context, pageID string, pageSize int, fn func([]domain.User) error) error
}

// Service записывает активность и синхронизирует ростер с беседами страницы.
type Service struct {
	recorder domain.ActivityRecorder
	lister   participantLister
	pageID   string
	clock    domain.Clock
	log      zerolog.Logger

	// seedActive помечает впервые найденных при синхронизации активными «сейчас».
	// Уже известные собеседники без собственной активности не трогаются.
	seedActive bool
}

// NewService создаёт сервис ростера. lister может быть nil, если синхронизация не нужна.
func NewService(recorder domain.ActivityRecorder, lister participantLister, pageID string, seedActive bool, logger zerolog.Logger) *Service {
	return &Service{
		recorder:   recorder,
		lister:     lister,
		pageID:     pageID,
		clock:      domain.SystemClock{},
		log:        logger.With().Str("component", "roster").Logger(),
		seedActive: seedActive,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(clock domain.Clock) *Service {
	s.clock = clock
	return s
}

// Record сохраняет активность собеседников. Время события без отметки
// считается текущим; повторные события одного пользователя сворачиваются.
func (s *Service) Record(ctx context.Context, events []Activity) error {
	if len(events) == 0 {
		return nil
	}
	now := s.clock.Now()
	users := make([]domain.User, 0, len(events))
	for _, ev := range events {
		id := strings.TrimSpace(ev.UserID)
		if id == "" {
			continue
		}
		at := ev.At
		if at.IsZero() || at.After(now) {
			at = now
		}
		users = append(users, domain.User{ID: id, Name: strings.TrimSpace(ev.Name), LastActive: domain.ToMillis(at)})
	}
	users = domain.MergeRoster(nil, users)
	if len(users) == 0 {
		return nil
	}
	if err := s.recorder.RecordActivity(ctx, users); err != nil {
		return fmt.Errorf("запись активности: %w", err)
	}
	return nil
}

// Sync обходит беседы страницы и добавляет собеседников в ростер.
// Возвращает количество обработанных собеседников.
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.lister == nil || s.pageID == "" {
		return 0, fmt.Errorf("синхронизация не настроена")
	}
	now := domain.ToMillis(s.clock.Now())
	known, err := s.knownIDs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	err = s.lister.ListParticipants(ctx, s.pageID, 100, func(users []domain.User) error {
		for i := range users {
			if users[i].LastActive == 0 && s.seedActive && !known[users[i].ID] {
				users[i].LastActive = now
			}
			known[users[i].ID] = true
			if users[i].LastActive > now {
				users[i].LastActive = now
			}
		}
		if err := s.recorder.RecordActivity(ctx, users); err != nil {
			return fmt.Errorf("запись страницы бесед: %w", err)
		}
		total += len(users)
		s.log.Debug().Int("users", len(users)).Int("total", total).Msg("страница бесед синхронизирована")
		return nil
	})
	if err != nil {
		return total, err
	}
	s.log.Info().Int("total", total).Msg("ростер синхронизирован")
	return total, nil
}

// knownIDs возвращает уже известных собеседников, чтобы seedActive
// не поднимал активность тех, кто есть в ростере.
func (s *Service) knownIDs(ctx context.Context) (map[string]bool, error) {
	known := make(map[string]bool)
	if !s.seedActive {
		return known, nil
	}
	loader, ok := s.recorder.(domain.RosterStore)
	if !ok {
		return known, nil
	}
	users, err := loader.LoadRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка ростера: %w", err)
	}
	for _, u := range users {
		known[u.ID] = true
	}
	return known, nil
}
