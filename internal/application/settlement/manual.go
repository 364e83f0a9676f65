package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// SettleBetManually is the admin escape hatch for a single bet, typically one
// left deferred by SettleRound. It pays through ManualPayout instead of the
// round-resolution call and then adjusts aggregate stats by stake − payout.
// With a reputation tracker the bet also counts toward the bettor's streaks,
// since the round settlement that deferred it left it out.
func (p *Processor) SettleBetManually(ctx context.Context, betID string, result domain.BetResult) (domain.Bet, error) {
	if result == domain.ResultNone {
		return domain.Bet{}, fmt.Errorf("settlement.SettleBetManually: result required")
	}

	b, err := p.bets.GetBet(ctx, betID)
	if err != nil {
		return b, fmt.Errorf("settlement.SettleBetManually: %w", err)
	}
	if b.Settled {
		return b, fmt.Errorf("settlement.SettleBetManually %s: %w", betID, domain.ErrBetAlreadySettled)
	}

	payout := b.PayoutFor(result)
	status := domain.PayoutSkipped
	var txHash string
	if payout.IsPositive() {
		txHash, err = p.gateway.ManualPayout(ctx, payout, b.Bettor)
		if err != nil {
			return b, fmt.Errorf("settlement.SettleBetManually: payout: %w", err)
		}
		status = domain.PayoutPaid
	}

	if err := b.Settle(result, payout, status, txHash, p.now()); err != nil {
		return b, fmt.Errorf("settlement.SettleBetManually: %w", err)
	}
	if err := p.bets.SettleBet(ctx, b); err != nil {
		slog.Error("settlement: CRITICAL manual settlement not persisted",
			"bet", b.ID, "payout", payout.String(), "tx", txHash, "err", err)
		return b, fmt.Errorf("settlement.SettleBetManually: persist: %w", err)
	}

	slog.Info("settlement: bet settled manually",
		"bet", b.ID, "result", result.String(), "payout", payout.String(), "tx", txHash)

	if delta := b.HouseProfit(); !delta.IsZero() {
		p.recordProfit(ctx, "bet:"+b.ID, delta)
	}
	if p.reputation != nil {
		if _, err := p.reputation.Update(ctx, []domain.Bet{b}); err != nil {
			slog.Error("settlement: reputation not updated after manual settlement", "bet", b.ID, "err", err)
		}
	}
	return b, nil
}
