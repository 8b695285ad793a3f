// Package eligibility решает, кому из ростера можно отправить промо прямо сейчас.
package eligibility

import (
	"sort"
	"time"

	"fb-promo-bot/internal/domain"
)

// Select разбивает ростер на instant- и fallback-кандидатов.
// Функция чистая: результат зависит только от аргументов, ростер не изменяется.
func Select(roster []domain.User, now time.Time, policy domain.Policy) domain.Selection {
	if len(roster) == 0 {
		return domain.Selection{}
	}
	nowMs := domain.ToMillis(now)
	activeWindow := policy.ActiveWindow.Milliseconds()

	var active, inactive []domain.User
	for _, u := range roster {
		if isActive(u, nowMs, activeWindow) {
			active = append(active, u)
		} else {
			inactive = append(inactive, u)
		}
	}

	instant := make([]domain.User, 0, len(active))
	for _, u := range active {
		if !cooledDown(u, nowMs, policy.InstantCooldown) || exhausted(u, policy.MaxLifetimeSends) {
			continue
		}
		instant = append(instant, u)
	}
	instant = truncate(order(instant, policy.Order), policy.BatchCap)

	var fallback []domain.User
	if policy.IsFallbackHour(now) {
		for _, u := range inactive {
			if !cooledDown(u, nowMs, policy.FallbackCooldown) || exhausted(u, policy.MaxLifetimeSends) {
				continue
			}
			fallback = append(fallback, u)
		}
		fallback = truncate(order(fallback, policy.Order), policy.FallbackCap)
	}

	return domain.Selection{Instant: instant, Fallback: fallback}
}

// isActive: пользователь без зафиксированной активности никогда не активен.
func isActive(u domain.User, nowMs, window int64) bool {
	if u.LastActive == 0 {
		return false
	}
	return nowMs-u.LastActive <= window
}

func cooledDown(u domain.User, nowMs int64, cooldown time.Duration) bool {
	if u.LastSent == 0 {
		return true
	}
	return nowMs-u.LastSent >= cooldown.Milliseconds()
}

func exhausted(u domain.User, maxSends int) bool {
	return maxSends > 0 && u.SentCount >= maxSends
}

func order(users []domain.User, mode domain.SelectionOrder) []domain.User {
	if mode == domain.OrderInsertion {
		return users
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].LastActive > users[j].LastActive })
	return users
}

func truncate(users []domain.User, limit int) []domain.User {
	if limit > 0 && len(users) > limit {
		return users[:limit]
	}
	return users
}
