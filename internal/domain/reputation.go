package domain

import "time"

// ReputationThresholds configures streak-driven list transitions. A streak
// enters its list on reaching the threshold (>=), so WinStreak 3 blacklists on
// the third consecutive win.
type ReputationThresholds struct {
	WinStreak  int           // consecutive wins that blacklist a user
	LossStreak int           // consecutive losses that whitelist a user
	Cooldown   time.Duration // re-entry block after leaving a list
}

// DefaultReputationThresholds returns 3 wins / 5 losses / 15 minutes.
func DefaultReputationThresholds() ReputationThresholds {
	return ReputationThresholds{WinStreak: 3, LossStreak: 5, Cooldown: 15 * time.Minute}
}

// UserReputation tracks a bettor's streaks and list status.
// Blacklisted and Whitelisted are never true at the same time.
type UserReputation struct {
	Address           string
	ConsecutiveWins   int
	ConsecutiveLosses int
	Blacklisted       bool
	BlacklistedAt     *time.Time
	Whitelisted       bool
	WhitelistedAt     *time.Time
	CooldownUntil     time.Time
	UpdatedAt         time.Time
}

// ReputationChange describes a list transition produced by Apply.
type ReputationChange string

const (
	ChangeNone          ReputationChange = ""
	ChangeBlacklisted   ReputationChange = "BLACKLISTED"
	ChangeWhitelisted   ReputationChange = "WHITELISTED"
	ChangeUnblacklisted ReputationChange = "UNBLACKLISTED"
	ChangeUnwhitelisted ReputationChange = "UNWHITELISTED"
)

// InCooldown reports whether list re-entry is blocked at now.
func (u UserReputation) InCooldown(now time.Time) bool {
	return now.Before(u.CooldownUntil)
}

// Listed is true when the user carries either override flag.
func (u UserReputation) Listed() bool {
	return u.Blacklisted || u.Whitelisted
}

// Apply records one round result for the user and performs at most one list transition.
// Draws leave streaks untouched.
func (u *UserReputation) Apply(result BetResult, now time.Time, th ReputationThresholds) ReputationChange {
	u.UpdatedAt = now

	switch result {
	case ResultWin:
		u.ConsecutiveWins++
		u.ConsecutiveLosses = 0
	case ResultLose:
		u.ConsecutiveLosses++
		u.ConsecutiveWins = 0
	default:
		return ChangeNone
	}

	// Leaving a list: the forced outcome was served.
	if u.Blacklisted && result == ResultLose {
		u.Blacklisted = false
		u.BlacklistedAt = nil
		u.resetStreaks(now, th)
		return ChangeUnblacklisted
	}
	if u.Whitelisted && result == ResultWin {
		u.Whitelisted = false
		u.WhitelistedAt = nil
		u.resetStreaks(now, th)
		return ChangeUnwhitelisted
	}

	if u.Listed() || u.InCooldown(now) {
		return ChangeNone
	}

	if th.WinStreak > 0 && u.ConsecutiveWins >= th.WinStreak {
		t := now
		u.Blacklisted = true
		u.BlacklistedAt = &t
		return ChangeBlacklisted
	}
	if th.LossStreak > 0 && u.ConsecutiveLosses >= th.LossStreak {
		t := now
		u.Whitelisted = true
		u.WhitelistedAt = &t
		return ChangeWhitelisted
	}
	return ChangeNone
}

func (u *UserReputation) resetStreaks(now time.Time, th ReputationThresholds) {
	u.ConsecutiveWins = 0
	u.ConsecutiveLosses = 0
	u.CooldownUntil = now.Add(th.Cooldown)
}
