package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram отправляет итог прогона администратору в Telegram.
type Telegram struct {
	bot    sender
	chatID int64
	loc    *time.Location
}

var _ domain.RunReporter = (*Telegram)(nil)

// NewTelegram создаёт уведомитель. loc задаёт часовой пояс в тексте отчёта.
func NewTelegram(bot sender, chatID int64, loc *time.Location) *Telegram {
	if loc == nil {
		loc = time.UTC
	}
	return &Telegram{bot: bot, chatID: chatID, loc: loc}
}

// NewTelegramBot создаёт клиента Bot API по токену.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// Report реализует domain.RunReporter.
func (t *Telegram) Report(ctx context.Context, summary domain.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(summary, t.loc))
	msg.DisableWebPagePreview = true
	start := time.Now()
	_, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "sendMessage", start, err)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var statusTitles = map[domain.RunStatus]string{
	domain.RunCompleted:         "✅ Рассылка завершена",
	domain.RunPausedBeforeStart: "⏸ Рассылка на паузе, прогон пропущен",
	domain.RunPausedMidRun:      "⏸ Рассылка остановлена паузой",
	domain.RunCancelled:         "⛔️ Прогон прерван",
	domain.RunRejected:          "⚠️ Прогон уже идёт",
}

// FormatSummary собирает текст отчёта.
func FormatSummary(s domain.RunSummary, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	title, ok := statusTitles[s.Status]
	if !ok {
		title = string(s.Status)
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Отправлено: %d\n", s.Sent)
	fmt.Fprintf(&b, "Пропущено: %d (недоступных: %d)\n", s.Skipped, s.Invalid)
	fmt.Fprintf(&b, "Ошибок: %d\n", s.Failed)
	fmt.Fprintf(&b, "Подходило: %d из %d\n", s.TotalEligible, s.TotalUsers)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Старт: %s", s.StartedAt.In(loc).Format("02.01 15:04:05"))
		if !s.FinishedAt.IsZero() {
			fmt.Fprintf(&b, ", длительность %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
		}
		b.WriteString("\n")
	}
	if s.RunID != "" {
		fmt.Fprintf(&b, "ID: %s", s.RunID)
	}
	return strings.TrimRight(b.String(), "\n")
}
