package domain

import (
	"errors"
	"time"
)

// ErrAlreadyRunning возвращается, если прогон уже выполняется.
var ErrAlreadyRunning = errors.New("promo run already in progress")

// RunStatus описывает терминальное состояние прогона.
type RunStatus string

const (
	RunCompleted         RunStatus = "completed"
	RunPausedBeforeStart RunStatus = "paused_before_start"
	RunPausedMidRun      RunStatus = "paused_mid_run"
	RunRejected          RunStatus = "already_running"
	RunCancelled         RunStatus = "cancelled"
	RunLockFailed        RunStatus = "lock_failed"
)

// PromoKind различает мгновенное и fallback промо.
type PromoKind string

const (
	PromoInstant  PromoKind = "instant"
	PromoFallback PromoKind = "fallback"
)

// Outcome описывает результат попытки доставки.
type Outcome int

const (
	Delivered Outcome = iota
	PermanentlyInvalidRecipient
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case PermanentlyInvalidRecipient:
		return "invalid_recipient"
	default:
		return "transient_failure"
	}
}

// Selection содержит результат работы фильтра.
type Selection struct {
	Instant  []User
	Fallback []User
}

// Total возвращает размер пула.
func (s Selection) Total() int {
	return len(s.Instant) + len(s.Fallback)
}

// RunSummary описывает итог одного прогона.
type RunSummary struct {
	RunID           string    `json:"runId"`
	Status          RunStatus `json:"status"`
	Sent            int       `json:"sent"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	Invalid         int       `json:"invalid"`
	TotalEligible   int       `json:"totalEligible"`
	TotalUsers      int       `json:"totalUsers"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	PausedDuringRun bool      `json:"pausedDuringRun"`
}
