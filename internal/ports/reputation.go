package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// ReputationStore keeps one UserReputation row per bettor.
type ReputationStore interface {
	// GetReputations returns the stored state for the addresses that have one.
	GetReputations(ctx context.Context, addresses []string) (map[string]domain.UserReputation, error)

	// SaveReputations upserts the given rows in one transaction.
	SaveReputations(ctx context.Context, reps []domain.UserReputation) error
}
