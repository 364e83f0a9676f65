// Package round drives the round lifecycle: open, lock, settle, repeat.
package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/roundbot/internal/application/decision"
	"github.com/alejandrodnm/roundbot/internal/application/manipulator"
	"github.com/alejandrodnm/roundbot/internal/application/profit"
	"github.com/alejandrodnm/roundbot/internal/application/reputation"
	"github.com/alejandrodnm/roundbot/internal/application/settlement"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrAlreadySettled is returned by Settle when another caller owns the settlement.
var ErrAlreadySettled = errors.New("round already settled or settling")

const (
	recoverScanRounds = 20
	completeAttempts  = 3
)

// Config holds the round timings.
type Config struct {
	RoundDuration time.Duration // 60s
	LockBefore    time.Duration // betting closes this long before the end
	Tick          time.Duration
	ErrorBackoff  time.Duration
	Continuous    bool          // open the next round as soon as one completes
	StuckAfter    time.Duration // a round Settling this long past EndAt with no settlement running is resumed
}

// DefaultConfig returns one-minute rounds locked for the last 30s.
func DefaultConfig() Config {
	return Config{
		RoundDuration: 60 * time.Second,
		LockBefore:    30 * time.Second,
		Tick:          time.Second,
		ErrorBackoff:  5 * time.Second,
		Continuous:    true,
	}
}

// Deps are the collaborators of the scheduler.
type Deps struct {
	Rounds      ports.RoundStore
	Daily       ports.DailyStore
	Oracle      ports.PriceOracle
	Treasury    decision.TreasuryReader
	Broadcaster ports.Broadcaster
	Analyzer    *profit.Analyzer
	Decider     *decision.Engine
	Manipulator *manipulator.Manipulator
	Settler     *settlement.Processor
	Reputation  *reputation.Tracker
}

// Scheduler owns the single active round.
type Scheduler struct {
	deps     Deps
	cfg      Config
	now      func() time.Time
	settling atomic.Bool
}

// New creates a Scheduler.
func New(deps Deps, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = def.RoundDuration
	}
	if cfg.LockBefore < 0 || cfg.LockBefore >= cfg.RoundDuration {
		cfg.LockBefore = cfg.RoundDuration / 2
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = cfg.RoundDuration
	}
	return &Scheduler{deps: deps, cfg: cfg, now: time.Now}
}

// Settling reports whether a settlement is in progress. Background price
// writers pause while it is true.
func (s *Scheduler) Settling() bool {
	return s.settling.Load()
}

// Run ticks until ctx is cancelled. A failing or panicking tick is logged and
// followed by ErrorBackoff; the loop never exits on its own.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	slog.Info("round: scheduler started",
		"duration", s.cfg.RoundDuration, "lock_before", s.cfg.LockBefore, "continuous", s.cfg.Continuous)

	for {
		select {
		case <-ctx.Done():
			slog.Info("round: scheduler stopped")
			return nil
		case <-ticker.C:
		}

		if err := s.safeTick(ctx); err != nil {
			slog.Error("round: tick failed", "err", err, "backoff", s.cfg.ErrorBackoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.ErrorBackoff):
			}
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("round: tick panicked: %v", r)
		}
	}()
	return s.Tick(ctx)
}

// Tick advances the active round by at most one step of its lifecycle.
func (s *Scheduler) Tick(ctx context.Context) error {
	r, err := s.deps.Rounds.GetActive(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		if !s.cfg.Continuous {
			return nil
		}
		_, err = s.StartRound(ctx)
		if errors.Is(err, domain.ErrRoundActive) {
			return nil
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("round.Tick: active: %w", err)
	}

	now := s.now()
	if r.Status == domain.RoundSettling {
		return s.resumeStuck(ctx, r, now)
	}

	if price, err := s.deps.Oracle.GetPrice(ctx); err == nil {
		if err := s.deps.Rounds.UpdateCurrentPrice(ctx, r.ID, price); err != nil {
			slog.Warn("round: current price not updated", "round", r.ID, "err", err)
		}
	}

	if r.ShouldSettle(now) {
		_, err := s.Settle(ctx, r.ID)
		if errors.Is(err, ErrAlreadySettled) {
			return nil
		}
		return err
	}
	if r.ShouldLock(now) {
		return s.LockBetting(ctx, r.ID)
	}
	return nil
}

// resumeStuck finishes a round left in Settling by a failed settlement, once
// it is StuckAfter past its end and no settlement is running in this process.
func (s *Scheduler) resumeStuck(ctx context.Context, r domain.Round, now time.Time) error {
	if s.settling.Load() || !now.After(r.EndAt.Add(s.cfg.StuckAfter)) {
		return nil
	}
	slog.Warn("round: resuming stuck settlement", "round", r.ID, "end_at", r.EndAt)
	if _, err := s.finish(context.WithoutCancel(ctx), r); err != nil {
		return fmt.Errorf("round.Tick: resume %s: %w", r.ID, err)
	}
	return nil
}

// EnsureActive opens a round when none is active. It is the hook for player
// activity while the scheduler runs non-continuously.
func (s *Scheduler) EnsureActive(ctx context.Context) (domain.Round, error) {
	r, err := s.deps.Rounds.GetActive(ctx)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return r, fmt.Errorf("round.EnsureActive: %w", err)
	}
	r, err = s.StartRound(ctx)
	if errors.Is(err, domain.ErrRoundActive) {
		return s.deps.Rounds.GetActive(ctx)
	}
	return r, err
}

// Active returns the non-terminal round or domain.ErrNotFound.
func (s *Scheduler) Active(ctx context.Context) (domain.Round, error) {
	return s.deps.Rounds.GetActive(ctx)
}

// StartRound opens a new round at the current oracle price. If a round is
// still active it is returned together with domain.ErrRoundActive.
func (s *Scheduler) StartRound(ctx context.Context) (domain.Round, error) {
	if active, err := s.deps.Rounds.GetActive(ctx); err == nil {
		return active, domain.ErrRoundActive
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, fmt.Errorf("round.StartRound: active: %w", err)
	}

	price, err := s.deps.Oracle.GetPrice(ctx)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round.StartRound: price: %w", err)
	}

	r := domain.NewRound(uuid.NewString(), s.now().UTC(), price, s.cfg.RoundDuration, s.cfg.LockBefore)
	if err := s.deps.Rounds.CreateRound(ctx, r); err != nil {
		if errors.Is(err, domain.ErrRoundActive) {
			active, _ := s.deps.Rounds.GetActive(ctx)
			return active, domain.ErrRoundActive
		}
		return domain.Round{}, fmt.Errorf("round.StartRound: %w", err)
	}
	if err := s.deps.Analyzer.Seed(ctx, r.ID); err != nil {
		slog.Warn("round: analysis not seeded", "round", r.ID, "err", err)
	}

	slog.Info("round: started", "round", r.ID, "start_price", price.String(), "lock_at", r.LockAt, "end_at", r.EndAt)
	return r, nil
}

// LockBetting closes betting. It is a no-op unless the round is Betting.
func (s *Scheduler) LockBetting(ctx context.Context, id string) error {
	ok, err := s.deps.Rounds.LockRound(ctx, id)
	if err != nil {
		return fmt.Errorf("round.LockBetting: %w", err)
	}
	if ok {
		slog.Info("round: betting locked", "round", id)
	}
	return nil
}

// Settle runs the full settlement of a round exactly once. Concurrent or
// repeated calls return ErrAlreadySettled without side effects. Once the
// guard is won the work runs to completion even if ctx is cancelled.
func (s *Scheduler) Settle(ctx context.Context, id string) (domain.RoundSnapshot, error) {
	if _, err := s.deps.Rounds.LockRound(ctx, id); err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("round.Settle: lock: %w", err)
	}

	won, err := s.deps.Rounds.TrySettle(ctx, id)
	if err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("round.Settle: guard: %w", err)
	}
	if !won {
		return domain.RoundSnapshot{}, ErrAlreadySettled
	}

	r, err := s.deps.Rounds.GetRound(ctx, id)
	if err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("round.Settle: load: %w", err)
	}
	return s.finish(context.WithoutCancel(ctx), r)
}

// Recover resumes rounds left in Settling by a crash and re-runs bet
// settlement on recently completed rounds. Safe to call at startup only,
// before Run.
func (s *Scheduler) Recover(ctx context.Context) error {
	stuck, err := s.deps.Rounds.RoundsByStatus(ctx, domain.RoundSettling)
	if err != nil {
		return fmt.Errorf("round.Recover: %w", err)
	}
	for _, r := range stuck {
		slog.Warn("round: resuming interrupted settlement", "round", r.ID)
		if _, err := s.finish(context.WithoutCancel(ctx), r); err != nil {
			slog.Error("round: recovery failed", "round", r.ID, "err", err)
		}
	}

	recent, err := s.deps.Rounds.RecentRounds(ctx, recoverScanRounds)
	if err != nil {
		return fmt.Errorf("round.Recover: recent: %w", err)
	}
	for _, r := range recent {
		if r.Status != domain.RoundCompleted || r.FinalPrice == nil {
			continue
		}
		report, err := s.deps.Settler.SettleRound(ctx, r.ID, *r.FinalPrice)
		if err != nil {
			slog.Error("round: recovery settlement failed", "round", r.ID, "err", err)
			continue
		}
		if len(report.Settled) > 0 {
			slog.Warn("round: settled leftover bets", "round", r.ID, "count", len(report.Settled))
			s.afterSettlement(ctx, report)
		}
	}
	return nil
}

// finish runs everything after the guard: decide, drive, complete, pay, account.
func (s *Scheduler) finish(ctx context.Context, r domain.Round) (domain.RoundSnapshot, error) {
	s.settling.Store(true)
	defer s.settling.Store(false)

	started := s.now()
	if err := s.deps.Broadcaster.RoundSettling(ctx, domain.RoundEvent{
		RoundID:   r.ID,
		Status:    domain.RoundSettling,
		StartAt:   r.StartAt,
		EndAt:     r.EndAt,
		Price:     r.CurrentPrice,
		Timestamp: started.UTC(),
	}); err != nil {
		slog.Warn("round: settling broadcast failed", "round", r.ID, "err", err)
	}

	analysis, bets, err := s.deps.Analyzer.Analyze(ctx, r.ID)
	if err != nil {
		slog.Warn("round: analysis failed", "round", r.ID, "err", err)
	}

	dec, err := s.deps.Decider.Decide(ctx, analysis, bets)
	if err != nil {
		slog.Warn("round: decision fell back to profit optimization", "round", r.ID, "err", err)
	}
	slog.Info("round: outcome decided",
		"round", r.ID, "outcome", dec.Outcome.String(), "rule", dec.Rule.String(),
		"expected_profit", dec.ExpectedProfit.String(), "subject", dec.Subject)

	manip, err := s.deps.Manipulator.Drive(ctx, r.ID, dec.Outcome, r.StartPrice)
	if err != nil {
		slog.Error("round: price drive incomplete", "round", r.ID, "steps", manip.Steps, "err", err)
	}

	final, err := s.deps.Oracle.GetPrice(ctx)
	if err != nil {
		final = r.CurrentPrice
		if manip.Steps > 0 {
			final = manip.TargetPrice
		}
		slog.Error("round: final price unavailable, using last known", "round", r.ID, "price", final.String(), "err", err)
	}
	outcome := priceOutcome(r.StartPrice, final)

	completed, err := s.complete(ctx, r.ID, final, outcome)
	if err != nil {
		return domain.RoundSnapshot{}, fmt.Errorf("round.finish: complete: %w", err)
	}
	if !completed {
		slog.Warn("round: round was not in Settling at completion", "round", r.ID)
	}
	r.Status = domain.RoundCompleted
	r.FinalPrice = &final
	r.CurrentPrice = final
	r.Outcome = outcome

	report, err := s.deps.Settler.SettleRound(ctx, r.ID, final)
	if err != nil {
		slog.Error("round: settlement errors", "round", r.ID, "err", err)
	}
	s.afterSettlement(ctx, report)

	if err := s.deps.Analyzer.Cleanup(ctx, r.ID); err != nil {
		slog.Warn("round: analysis cleanup failed", "round", r.ID, "err", err)
	}

	snap := domain.RoundSnapshot{
		Round:      r,
		FinalPrice: final,
		Decision:   dec,
		Analysis:   analysis,
		Report:     report,
		Timestamp:  s.now().UTC(),
	}
	if err := s.deps.Broadcaster.RoundCompleted(ctx, snap); err != nil {
		slog.Warn("round: completed broadcast failed", "round", r.ID, "err", err)
	}

	slog.Info("round: completed",
		"round", r.ID,
		"final_price", final.String(),
		"outcome", outcome.String(),
		"profit", report.RealizedProfit.String(),
		"deferred", len(report.Deferred),
		"took", s.now().Sub(started).Round(time.Millisecond))
	return snap, nil
}

// complete retries CompleteRound with doubling backoff. The payouts wait for it,
// so a transient store error must not leave the round in Settling.
func (s *Scheduler) complete(ctx context.Context, id string, final decimal.Decimal, outcome domain.Direction) (bool, error) {
	delay := s.cfg.ErrorBackoff
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		var ok bool
		if ok, err = s.deps.Rounds.CompleteRound(ctx, id, final, outcome); err == nil {
			return ok, nil
		}
		if attempt == completeAttempts {
			break
		}
		slog.Warn("round: complete failed, retrying", "round", id, "attempt", attempt, "delay", delay, "err", err)
		time.Sleep(delay)
		delay *= 2
	}
	return false, err
}

// afterSettlement updates reputations and the daily record from settled bets.
func (s *Scheduler) afterSettlement(ctx context.Context, report domain.SettlementReport) {
	if _, err := s.deps.Reputation.Update(ctx, report.Settled); err != nil {
		slog.Error("round: reputation update failed", "round", report.RoundID, "err", err)
	}
	if err := s.recordDaily(ctx, report); err != nil {
		slog.Error("round: daily target update failed", "round", report.RoundID, "err", err)
	}
}

func (s *Scheduler) recordDaily(ctx context.Context, report domain.SettlementReport) error {
	now := s.now()
	day, err := s.deps.Daily.GetDailyTarget(ctx, now)
	if errors.Is(err, domain.ErrNotFound) {
		day = s.openDay(ctx, now)
	} else if err != nil {
		return err
	}

	wasAchieved := day.Achieved
	day.Record(report)
	if day.Achieved && !wasAchieved {
		slog.Info("round: daily profit target reached", "profit", day.Profit().String(), "target", day.TargetAmount.String())
	}
	return s.deps.Daily.SaveDailyTarget(ctx, day)
}

// openDay starts today's record from the treasury; the start balance excludes
// profit already booked on-chain today.
func (s *Scheduler) openDay(ctx context.Context, now time.Time) domain.DailyTarget {
	stats, err := s.deps.Treasury.GetTreasuryStats(ctx)
	if err != nil {
		slog.Warn("round: treasury stats unavailable for daily record", "err", err)
		return domain.NewDailyTarget(now, decimal.Zero, decimal.Zero)
	}
	return domain.NewDailyTarget(now, stats.Balance.Sub(stats.CurrentDailyProfit), stats.DailyProfitTarget)
}

func priceOutcome(start, final decimal.Decimal) domain.Direction {
	switch final.Cmp(start) {
	case 1:
		return domain.DirectionUp
	case -1:
		return domain.DirectionDown
	}
	return 0
}
