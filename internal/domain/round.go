package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus represents the lifecycle of a betting round.
// Betting → Locked → Settling → Completed, forward only.
type RoundStatus string

const (
	RoundBetting   RoundStatus = "BETTING"
	RoundLocked    RoundStatus = "LOCKED"
	RoundSettling  RoundStatus = "SETTLING"
	RoundCompleted RoundStatus = "COMPLETED"
)

// next es el único estado alcanzable desde cada estado.
var next = map[RoundStatus]RoundStatus{
	RoundBetting:  RoundLocked,
	RoundLocked:   RoundSettling,
	RoundSettling: RoundCompleted,
}

// CanAdvanceTo reports whether to is the immediate successor of s.
func (s RoundStatus) CanAdvanceTo(to RoundStatus) bool {
	n, ok := next[s]
	return ok && n == to
}

// Terminal reports whether no further transition is possible.
func (s RoundStatus) Terminal() bool {
	return s == RoundCompleted
}

// AcceptsBets is true only while the round is open for betting.
func (s RoundStatus) AcceptsBets() bool {
	return s == RoundBetting
}

// ParseRoundStatus validates a persisted status value.
func ParseRoundStatus(s string) (RoundStatus, error) {
	switch st := RoundStatus(s); st {
	case RoundBetting, RoundLocked, RoundSettling, RoundCompleted:
		return st, nil
	}
	return "", fmt.Errorf("domain.ParseRoundStatus: unknown status %q", s)
}

// Round is one timed betting cycle.
type Round struct {
	ID           string
	StartAt      time.Time
	LockAt       time.Time
	EndAt        time.Time
	StartPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	FinalPrice   *decimal.Decimal // nil until the round completes
	Status       RoundStatus
	Outcome      Direction // zero until the round completes
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRound builds a round in Betting starting at now.
func NewRound(id string, now time.Time, startPrice decimal.Decimal, duration, lockBefore time.Duration) Round {
	end := now.Add(duration)
	lock := end.Add(-lockBefore)
	if lock.Before(now) {
		lock = now
	}
	return Round{
		ID:           id,
		StartAt:      now,
		LockAt:       lock,
		EndAt:        end,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		Status:       RoundBetting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ShouldLock is true once the lock threshold has been reached while betting.
func (r Round) ShouldLock(now time.Time) bool {
	return r.Status == RoundBetting && !now.Before(r.LockAt)
}

// ShouldSettle is true once the round deadline passed and it has not entered settlement.
func (r Round) ShouldSettle(now time.Time) bool {
	return (r.Status == RoundBetting || r.Status == RoundLocked) && !now.Before(r.EndAt)
}

// Remaining returns the time left until the deadline (never negative).
func (r Round) Remaining(now time.Time) time.Duration {
	d := r.EndAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
