package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// BetStore is the bet ledger. The core reads bets and records settlements;
// placement belongs to the betting API.
type BetStore interface {
	// PlaceBet appends a bet. Used by the betting API and the demo bettor.
	// Returns domain.ErrBettingClosed unless the round is Betting.
	PlaceBet(ctx context.Context, b domain.Bet) error

	// BetsByRound returns every bet of a round ordered by placement time.
	BetsByRound(ctx context.Context, roundID string) ([]domain.Bet, error)

	// GetBet returns a bet by id or domain.ErrNotFound.
	GetBet(ctx context.Context, id string) (domain.Bet, error)

	// SettleBet persists a settlement. It only applies to unsettled bets and
	// returns domain.ErrBetAlreadySettled otherwise.
	SettleBet(ctx context.Context, b domain.Bet) error

	// MarkPayoutDeferred records why an unsettled bet's payout needs manual handling.
	MarkPayoutDeferred(ctx context.Context, betID, reason string) error

	// DeferredBets lists unsettled bets flagged for manual payout.
	DeferredBets(ctx context.Context) ([]domain.Bet, error)
}
