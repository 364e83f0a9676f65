package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// DailyStore keeps one DailyTarget row per UTC day.
type DailyStore interface {
	// GetDailyTarget returns the record for day or domain.ErrNotFound.
	GetDailyTarget(ctx context.Context, day time.Time) (domain.DailyTarget, error)
	SaveDailyTarget(ctx context.Context, d domain.DailyTarget) error
}
