package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
)

// Change is a list transition applied to one bettor during Update.
type Change struct {
	Address string
	Change  domain.ReputationChange
}

// Tracker folds settled rounds into per-bettor streaks.
type Tracker struct {
	store ports.ReputationStore
	th    domain.ReputationThresholds
	now   func() time.Time
}

// NewTracker creates a Tracker. Zero thresholds fall back to the defaults.
func NewTracker(store ports.ReputationStore, th domain.ReputationThresholds) *Tracker {
	def := domain.DefaultReputationThresholds()
	if th.WinStreak <= 0 {
		th.WinStreak = def.WinStreak
	}
	if th.LossStreak <= 0 {
		th.LossStreak = def.LossStreak
	}
	if th.Cooldown <= 0 {
		th.Cooldown = def.Cooldown
	}
	return &Tracker{store: store, th: th, now: time.Now}
}

// Lookup returns the stored reputation of each address that has one.
func (t *Tracker) Lookup(ctx context.Context, addresses []string) (map[string]domain.UserReputation, error) {
	reps, err := t.store.GetReputations(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("reputation.Lookup: %w", err)
	}
	return reps, nil
}

// Update applies one round's settled bets. Each bettor gets one result per
// round: the net of all their settled bets.
func (t *Tracker) Update(ctx context.Context, settled []domain.Bet) ([]Change, error) {
	results := NetResults(settled)
	if len(results) == 0 {
		return nil, nil
	}

	addrs := make([]string, 0, len(results))
	for addr := range results {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	current, err := t.store.GetReputations(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("reputation.Update: load: %w", err)
	}

	now := t.now().UTC()
	var changes []Change
	updated := make([]domain.UserReputation, 0, len(addrs))
	for _, addr := range addrs {
		rep, ok := current[addr]
		if !ok {
			rep = domain.UserReputation{Address: addr}
		}
		if c := rep.Apply(results[addr], now, t.th); c != domain.ChangeNone {
			changes = append(changes, Change{Address: addr, Change: c})
			slog.Info("reputation: list transition", "bettor", addr, "change", string(c),
				"wins", rep.ConsecutiveWins, "losses", rep.ConsecutiveLosses)
		}
		updated = append(updated, rep)
	}

	if err := t.store.SaveReputations(ctx, updated); err != nil {
		return nil, fmt.Errorf("reputation.Update: save: %w", err)
	}
	return changes, nil
}

// NetResults reduces settled bets to one result per bettor:
// payout > stake → Win, payout < stake → Lose, equal → Draw.
func NetResults(settled []domain.Bet) map[string]domain.BetResult {
	type net struct{ stake, payout decimal.Decimal }
	totals := make(map[string]*net)
	for _, b := range settled {
		if !b.Settled {
			continue
		}
		n, ok := totals[b.Bettor]
		if !ok {
			n = &net{stake: decimal.Zero, payout: decimal.Zero}
			totals[b.Bettor] = n
		}
		n.stake = n.stake.Add(b.Stake)
		n.payout = n.payout.Add(b.PayoutAmount)
	}

	out := make(map[string]domain.BetResult, len(totals))
	for addr, n := range totals {
		switch n.payout.Cmp(n.stake) {
		case 1:
			out[addr] = domain.ResultWin
		case -1:
			out[addr] = domain.ResultLose
		default:
			out[addr] = domain.ResultDraw
		}
	}
	return out
}
