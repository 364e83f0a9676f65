package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
)

// RoundStore persists rounds. Every status change is a conditional update:
// it only applies when the stored status is the expected predecessor.
type RoundStore interface {
	// CreateRound inserts a round in Betting. It fails if another round is non-terminal.
	CreateRound(ctx context.Context, r domain.Round) error

	// GetRound returns the round with the given id or domain.ErrNotFound.
	GetRound(ctx context.Context, id string) (domain.Round, error)

	// GetActive returns the single non-terminal round or domain.ErrNotFound.
	GetActive(ctx context.Context) (domain.Round, error)

	// LockRound moves Betting → Locked. Returns false when the round was not Betting.
	LockRound(ctx context.Context, id string) (bool, error)

	// TrySettle moves Locked → Settling atomically. Returns false when another caller
	// already took the round or it is not Locked. This is the only re-entrancy guard.
	TrySettle(ctx context.Context, id string) (bool, error)

	// CompleteRound moves Settling → Completed and stores the final price and outcome.
	CompleteRound(ctx context.Context, id string, finalPrice decimal.Decimal, outcome domain.Direction) (bool, error)

	// UpdateCurrentPrice refreshes the live price shown for the round.
	UpdateCurrentPrice(ctx context.Context, id string, price decimal.Decimal) error

	// RoundsByStatus lists rounds in the given status, oldest first.
	RoundsByStatus(ctx context.Context, status domain.RoundStatus) ([]domain.Round, error)

	// RecentRounds returns the last n rounds, newest first.
	RecentRounds(ctx context.Context, n int) ([]domain.Round, error)
}
