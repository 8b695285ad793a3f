package domain

import (
	"strings"
	"time"
)

// DefaultName подставляется, если имя собеседника неизвестно.
const DefaultName = "Player"

// User описывает собеседника страницы Messenger в ростере.
// Отметки времени хранятся в миллисекундах Unix, 0 означает «никогда».
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	LastActive int64  `json:"lastActive,omitempty"`
	LastSent   int64  `json:"lastSent,omitempty"`
	SentCount  int    `json:"sentCount,omitempty"`
}

// FirstName возвращает первое слово имени или DefaultName.
func (u User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return DefaultName
	}
	return fields[0]
}

// DisplayName используется в логах.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return u.ID
	}
	return u.Name
}

// MarkSent фиксирует успешную доставку промо.
func (u *User) MarkSent(now time.Time) {
	u.LastSent = ToMillis(now)
	u.SentCount++
}

// Touch продвигает LastActive, никогда не уменьшая его.
func (u *User) Touch(at int64) {
	if at > u.LastActive {
		u.LastActive = at
	}
}

// ToMillis переводит время в миллисекунды Unix.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis переводит миллисекунды Unix во время UTC.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// CloneRoster возвращает независимую копию ростера.
func CloneRoster(users []User) []User {
	if users == nil {
		return nil
	}
	out := make([]User, len(users))
	copy(out, users)
	return out
}
