package domain

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound возвращается, если пользователя нет в ростере.
var ErrUserNotFound = errors.New("user not found")

// RosterStore загружает и сохраняет ростер целиком.
type RosterStore interface {
	LoadRoster(ctx context.Context) ([]User, error)
	SaveRoster(ctx context.Context, users []User) error
}

// ActivityRecorder фиксирует активность собеседника без полной перезаписи ростера.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, users []User) error
}

// StatsRepo хранит итог последнего прогона.
type StatsRepo interface {
	SaveRunSummary(ctx context.Context, summary RunSummary) error
	LastRunSummary(ctx context.Context) (RunSummary, error)
}

// PromptParams содержит параметры генерации промо-текста.
type PromptParams struct {
	FirstName string
	Games     []string
	Emojis    []string
	Urgency   string
	BonusLine string
}

// TextGenerator генерирует промо-текст во внешнем LLM.
type TextGenerator interface {
	Generate(ctx context.Context, params PromptParams) (string, error)
}

// Composer собирает текст сообщения; никогда не возвращает ошибку.
type Composer interface {
	Compose(ctx context.Context, firstName string) string
}

// Gateway доставляет одно сообщение одному получателю.
type Gateway interface {
	Deliver(ctx context.Context, userID, text string) Outcome
}

// PauseFlag отдаёт операторский сигнал паузы.
type PauseFlag interface {
	IsPaused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}

// RunLock описывает межпроцессную блокировку прогона.
type RunLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// RunReporter публикует итог прогона внешним потребителям (бэкап, статистика, оператор).
type RunReporter interface {
	Report(ctx context.Context, summary RunSummary) error
}

// Clock отдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает time.Now().
type SystemClock struct{}

// Now реализует Clock.
func (SystemClock) Now() time.Time { return time.Now() }
