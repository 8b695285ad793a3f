package domain

import "time"

// SelectionOrder задаёт порядок кандидатов перед усечением по лимиту.
type SelectionOrder string

const (
	// OrderRecency — сначала самые недавно активные.
	OrderRecency SelectionOrder = "recency"
	// OrderInsertion — в порядке ростера.
	OrderInsertion SelectionOrder = "insertion"
)

// Policy собирает все пороги отбора и рассылки.
type Policy struct {
	// ActiveWindow — пользователь активен, если now-lastActive <= ActiveWindow.
	ActiveWindow time.Duration
	// InstantCooldown — минимальный интервал с lastSent для активных.
	InstantCooldown time.Duration
	// FallbackCooldown — минимальный интервал с lastSent для неактивных.
	FallbackCooldown time.Duration
	// FallbackHours — часы (в Location), когда разрешён fallback.
	FallbackHours []int
	// Location — опорный часовой пояс для FallbackHours.
	Location *time.Location
	// MaxLifetimeSends, если > 0, навсегда исключает пользователей с SentCount >= лимита.
	MaxLifetimeSends int
	// BatchCap ограничивает instant-выборку за прогон, 0 — без ограничения.
	BatchCap int
	// FallbackCap ограничивает fallback-выборку за прогон, 0 — без ограничения.
	FallbackCap int
	// Order — порядок перед усечением.
	Order SelectionOrder
	// Pacing — минимальный интервал между отправками.
	Pacing time.Duration
}

// DefaultPolicy возвращает значения, с которыми бот работал в проде.
func DefaultPolicy() Policy {
	return Policy{
		ActiveWindow:     10 * time.Minute,
		InstantCooldown:  3 * time.Hour,
		FallbackCooldown: 6 * time.Hour,
		FallbackHours:    []int{11, 16, 21},
		Location:         time.UTC,
		BatchCap:         200,
		Order:            OrderRecency,
		Pacing:           400 * time.Millisecond,
	}
}

// IsFallbackHour сообщает, попадает ли момент в окно fallback-рассылки.
func (p Policy) IsFallbackHour(now time.Time) bool {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	hour := now.In(loc).Hour()
	for _, h := range p.FallbackHours {
		if h == hour {
			return true
		}
	}
	return false
}
