package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// AnalysisStore keeps one live ProfitAnalysis per open round.
type AnalysisStore interface {
	UpsertAnalysis(ctx context.Context, a domain.ProfitAnalysis) error
	GetAnalysis(ctx context.Context, roundID string) (domain.ProfitAnalysis, error)
	DeleteAnalysis(ctx context.Context, roundID string) error
}
