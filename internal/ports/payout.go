package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
)

// PayoutGateway settles bets on-chain. Calls are signed by one backend
// account and must not run concurrently.
type PayoutGateway interface {
	// ResolveBet resolves a bet in the betting contract, which pays the bettor.
	ResolveBet(ctx context.Context, contractBetID string, result domain.BetResult) (domain.PayoutReceipt, error)

	// ManualPayout transfers amount to recipient outside round resolution.
	ManualPayout(ctx context.Context, amount decimal.Decimal, recipient string) (string, error)

	// GetTreasuryStats reads balance and daily profit counters.
	GetTreasuryStats(ctx context.Context) (domain.TreasuryStats, error)

	// RecordProfit adjusts the aggregate on-chain daily profit by delta.
	RecordProfit(ctx context.Context, delta decimal.Decimal) (string, error)
}
