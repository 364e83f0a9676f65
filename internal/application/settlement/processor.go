package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/roundbot/internal/application/reputation"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
)

const (
	defaultStatsAttempts = 3
	defaultStatsDelay    = 2 * time.Second
)

// Config controls the aggregate stats retry.
type Config struct {
	StatsAttempts int
	StatsDelay    time.Duration
}

// Processor settles bets and dispatches payouts one at a time.
type Processor struct {
	bets       ports.BetStore
	gateway    ports.PayoutGateway
	reputation *reputation.Tracker // nil: los settlements manuales no tocan rachas
	cfg        Config
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewProcessor creates a Processor. The gateway should already be serialized
// (payout.Queue); the processor never calls it concurrently anyway.
func NewProcessor(bets ports.BetStore, gateway ports.PayoutGateway, cfg Config) *Processor {
	if cfg.StatsAttempts <= 0 {
		cfg.StatsAttempts = defaultStatsAttempts
	}
	if cfg.StatsDelay <= 0 {
		cfg.StatsDelay = defaultStatsDelay
	}
	return &Processor{
		bets:    bets,
		gateway: gateway,
		cfg:     cfg,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// WithReputation makes SettleBetManually feed the settled bet into the
// bettor's streaks. Round settlements are folded in by the scheduler instead.
func (p *Processor) WithReputation(t *reputation.Tracker) *Processor {
	p.reputation = t
	return p
}

// SettleRound settles every unsettled bet of the round against finalPrice.
//
// Each bet is compared with its own entry price. Losing bets settle without a
// gateway call. A bet whose payout cannot be dispatched stays unsettled and is
// marked deferred; processing continues with the next bet. Bets already
// deferred are skipped. Every settlement is persisted before the next bet is
// processed.
//
// The returned report only counts bets settled in this call. A non-nil error
// means at least one settlement could not be persisted; the report is still valid.
func (p *Processor) SettleRound(ctx context.Context, roundID string, finalPrice decimal.Decimal) (domain.SettlementReport, error) {
	report := domain.NewSettlementReport(roundID, finalPrice)

	bets, err := p.bets.BetsByRound(ctx, roundID)
	if err != nil {
		return report, fmt.Errorf("settlement.SettleRound: load bets: %w", err)
	}

	var errs []error
	for _, b := range bets {
		// Las diferidas quedan para el path manual: el gateway pudo haber emitido la tx.
		if b.Settled || b.PayoutStatus == domain.PayoutDeferred {
			continue
		}

		settled, deferReason := p.settleOne(ctx, &b, finalPrice)
		if !settled {
			p.deferBet(ctx, &b, deferReason)
			report.Deferred = append(report.Deferred, b)
			continue
		}

		if err := p.bets.SettleBet(ctx, b); err != nil {
			if errors.Is(err, domain.ErrBetAlreadySettled) {
				slog.Warn("settlement: bet settled elsewhere, skipping", "bet", b.ID)
				continue
			}
			slog.Error("settlement: CRITICAL settlement not persisted",
				"bet", b.ID, "result", b.Result.String(), "payout", b.PayoutAmount.String(), "tx", b.TxHash, "err", err)
			errs = append(errs, fmt.Errorf("bet %s: %w", b.ID, err))
			continue
		}
		report.Add(b)
	}

	slog.Info("settlement: round settled",
		"round", roundID,
		"final_price", finalPrice.String(),
		"settled", len(report.Settled),
		"deferred", len(report.Deferred),
		"wins", report.Wins,
		"losses", report.Losses,
		"draws", report.Draws,
		"volume", report.TotalVolume.String(),
		"payout", report.TotalPayout.String(),
		"profit", report.RealizedProfit.String(),
	)

	if len(report.Settled) > 0 && !report.RealizedProfit.IsZero() {
		p.recordProfit(ctx, roundID, report.RealizedProfit)
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("settlement.SettleRound: %w", errors.Join(errs...))
	}
	return report, nil
}

// settleOne decides and, when needed, dispatches one bet's payout. It returns
// false with a reason when the payout has to be deferred.
func (p *Processor) settleOne(ctx context.Context, b *domain.Bet, finalPrice decimal.Decimal) (bool, string) {
	result := b.Outcome(finalPrice)
	payout := b.PayoutFor(result)

	if result == domain.ResultLose {
		_ = b.Settle(result, decimal.Zero, domain.PayoutSkipped, "", p.now())
		return true, ""
	}

	if b.ContractBetID == "" {
		slog.Error("settlement: CRITICAL bet has no on-chain reference, payout skipped",
			"bet", b.ID, "bettor", b.Bettor, "result", result.String(), "payout", payout.String())
		return false, domain.ErrMissingContractID.Error()
	}

	stats, err := p.gateway.GetTreasuryStats(ctx)
	if err != nil {
		slog.Error("settlement: treasury stats unavailable, payout deferred", "bet", b.ID, "err", err)
		return false, fmt.Sprintf("treasury stats unavailable: %v", err)
	}
	if stats.Balance.LessThan(payout) {
		slog.Error("settlement: insufficient treasury balance, payout deferred",
			"bet", b.ID, "payout", payout.String(), "balance", stats.Balance.String())
		return false, domain.ErrInsufficientTreasury.Error()
	}

	rcpt, err := p.gateway.ResolveBet(ctx, b.ContractBetID, result)
	if err != nil {
		slog.Error("settlement: payout failed, will be processed manually",
			"bet", b.ID, "contract_bet", b.ContractBetID, "tx", rcpt.TxHash, "err", err)
		return false, fmt.Sprintf("payout failed: %v", err)
	}

	_ = b.Settle(result, payout, domain.PayoutPaid, rcpt.TxHash, p.now())
	return true, ""
}

func (p *Processor) deferBet(ctx context.Context, b *domain.Bet, reason string) {
	b.Defer(reason)
	if err := p.bets.MarkPayoutDeferred(ctx, b.ID, reason); err != nil {
		slog.Error("settlement: could not flag deferred payout", "bet", b.ID, "reason", reason, "err", err)
	}
}

// recordProfit pushes delta to the aggregate on-chain stats. Failures are
// retried with a fixed delay and finally only logged.
func (p *Processor) recordProfit(ctx context.Context, ref string, delta decimal.Decimal) {
	var err error
	for attempt := 1; attempt <= p.cfg.StatsAttempts; attempt++ {
		var tx string
		if tx, err = p.gateway.RecordProfit(ctx, delta); err == nil {
			slog.Info("settlement: profit stats updated", "ref", ref, "delta", delta.String(), "tx", tx)
			return
		}
		slog.Warn("settlement: profit stats update failed",
			"ref", ref, "attempt", attempt, "of", p.cfg.StatsAttempts, "err", err)
		if attempt < p.cfg.StatsAttempts {
			p.sleep(p.cfg.StatsDelay)
		}
	}
	slog.Error("settlement: profit stats not updated", "ref", ref, "delta", delta.String(), "err", err)
}
