package decision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
)

// ReputationLookup returns the stored reputation of the given bettors.
type ReputationLookup interface {
	Lookup(ctx context.Context, addresses []string) (map[string]domain.UserReputation, error)
}

// TreasuryReader exposes the on-chain treasury counters.
type TreasuryReader interface {
	GetTreasuryStats(ctx context.Context) (domain.TreasuryStats, error)
}

// Config holds the cascade limits.
type Config struct {
	// AcceptableLoss is the worst theoretical profit a whitelist bias may cost (negative).
	AcceptableLoss decimal.Decimal
	// LossCapPct is the fraction of treasury balance the daily profit may fall below zero.
	LossCapPct decimal.Decimal
}

// DefaultConfig returns −10000 acceptable loss and a 1% loss cap.
func DefaultConfig() Config {
	return Config{
		AcceptableLoss: decimal.NewFromInt(-10000),
		LossCapPct:     decimal.RequireFromString("0.01"),
	}
}

// Engine chooses the target outcome of a round:
//
//	1. blacklist  : make the blacklisted bettor lose
//	2. whitelist  : make the whitelisted bettor win, within AcceptableLoss
//	3. loss cap   : if only one outcome keeps daily profit above the cap, take it
//	4. profit     : highest theoretical house profit
type Engine struct {
	reps     ReputationLookup
	treasury TreasuryReader
	cfg      Config
}

// NewEngine creates an Engine.
func NewEngine(reps ReputationLookup, treasury TreasuryReader, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.LossCapPct.IsZero() {
		cfg.LossCapPct = def.LossCapPct
	}
	if cfg.AcceptableLoss.IsZero() {
		cfg.AcceptableLoss = def.AcceptableLoss
	}
	return &Engine{reps: reps, treasury: treasury, cfg: cfg}
}

// Decide runs the cascade. The returned Decision is always usable: on error it
// is the profit-optimizing fallback and the error says what failed.
func (e *Engine) Decide(ctx context.Context, a domain.ProfitAnalysis, bets []domain.Bet) (domain.Decision, error) {
	positions := bettorPositions(bets)

	reps, err := e.reps.Lookup(ctx, addresses(positions))
	if err != nil {
		return domain.FallbackDecision(a, "reputation lookup failed"), fmt.Errorf("decision.Decide: %w", err)
	}

	if d, ok := e.blacklist(a, positions, reps); ok {
		return d, nil
	}
	if d, ok := e.whitelist(a, positions, reps); ok {
		return d, nil
	}

	stats, err := e.treasury.GetTreasuryStats(ctx)
	if err != nil {
		return domain.FallbackDecision(a, "treasury stats unavailable"), fmt.Errorf("decision.Decide: treasury: %w", err)
	}

	if d, ok := e.lossCap(a, stats); ok {
		return d, nil
	}

	out := a.Recommended
	if !out.Valid() {
		out = domain.DirectionUp
	}
	rule := domain.RuleProfitTargetPending
	if stats.TargetMet() {
		rule = domain.RuleProfitTargetMet
	}
	return domain.Decision{
		Outcome:        out,
		Rule:           rule,
		ExpectedProfit: a.ProfitIf(out),
		Reason:         "highest theoretical profit",
	}, nil
}

func (e *Engine) blacklist(a domain.ProfitAnalysis, positions []position, reps map[string]domain.UserReputation) (domain.Decision, bool) {
	p, ok := largest(positions, func(addr string) bool { return reps[addr].Blacklisted })
	if !ok {
		return domain.Decision{}, false
	}
	out := p.direction.Opposite()
	slog.Info("decision: blacklist bias", "bettor", p.address, "bet", p.direction.String(), "outcome", out.String())
	return domain.Decision{
		Outcome:        out,
		Rule:           domain.RuleBlacklist,
		ExpectedProfit: a.ProfitIf(out),
		Subject:        p.address,
		Reason:         "blacklisted bettor must lose",
	}, true
}

func (e *Engine) whitelist(a domain.ProfitAnalysis, positions []position, reps map[string]domain.UserReputation) (domain.Decision, bool) {
	p, ok := largest(positions, func(addr string) bool { return reps[addr].Whitelisted })
	if !ok {
		return domain.Decision{}, false
	}
	out := p.direction
	profit := a.ProfitIf(out)
	if profit.LessThan(e.cfg.AcceptableLoss) {
		slog.Info("decision: whitelist bias skipped, loss too large",
			"bettor", p.address, "profit", profit.String(), "floor", e.cfg.AcceptableLoss.String())
		return domain.Decision{}, false
	}
	slog.Info("decision: whitelist bias", "bettor", p.address, "outcome", out.String(), "profit", profit.String())
	return domain.Decision{
		Outcome:        out,
		Rule:           domain.RuleWhitelist,
		ExpectedProfit: profit,
		Subject:        p.address,
		Reason:         "whitelisted bettor must win",
	}, true
}

func (e *Engine) lossCap(a domain.ProfitAnalysis, stats domain.TreasuryStats) (domain.Decision, bool) {
	upOK := stats.WithinLossCap(a.UpWinProfit, e.cfg.LossCapPct)
	downOK := stats.WithinLossCap(a.DownWinProfit, e.cfg.LossCapPct)
	if upOK == downOK {
		return domain.Decision{}, false
	}
	out := domain.DirectionUp
	if downOK {
		out = domain.DirectionDown
	}
	slog.Warn("decision: loss cap forces outcome",
		"outcome", out.String(),
		"daily_profit", stats.CurrentDailyProfit.String(),
		"balance", stats.Balance.String())
	return domain.Decision{
		Outcome:        out,
		Rule:           domain.RuleLossCap,
		ExpectedProfit: a.ProfitIf(out),
		Reason:         "only outcome within daily loss cap",
	}, true
}

// position is one bettor's exposure in the round.
type position struct {
	address   string
	stake     decimal.Decimal
	direction domain.Direction // side carrying most of the bettor's stake
}

func bettorPositions(bets []domain.Bet) []position {
	type acc struct{ up, down decimal.Decimal }
	by := make(map[string]*acc)
	for _, b := range bets {
		x, ok := by[b.Bettor]
		if !ok {
			x = &acc{up: decimal.Zero, down: decimal.Zero}
			by[b.Bettor] = x
		}
		switch b.Direction {
		case domain.DirectionUp:
			x.up = x.up.Add(b.Stake)
		case domain.DirectionDown:
			x.down = x.down.Add(b.Stake)
		}
	}

	out := make([]position, 0, len(by))
	for addr, x := range by {
		dir := domain.DirectionUp
		if x.down.GreaterThan(x.up) {
			dir = domain.DirectionDown
		}
		out = append(out, position{address: addr, stake: x.up.Add(x.down), direction: dir})
	}
	// Mayor stake primero; la dirección de wallet desempata
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].stake.Cmp(out[j].stake); c != 0 {
			return c > 0
		}
		return out[i].address < out[j].address
	})
	return out
}

func largest(positions []position, match func(addr string) bool) (position, bool) {
	for _, p := range positions {
		if match(p.address) {
			return p, true
		}
	}
	return position{}, false
}

func addresses(positions []position) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = p.address
	}
	return out
}
