package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// Broadcaster publishes round lifecycle events to connected players.
type Broadcaster interface {
	// RoundSettling is emitted when settlement begins.
	RoundSettling(ctx context.Context, ev domain.RoundEvent) error

	// RoundCompleted carries the final price, outcome, analysis and settled bets.
	RoundCompleted(ctx context.Context, snap domain.RoundSnapshot) error
}
