package profit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
)

// Analyzer keeps the live ProfitAnalysis row of the open round up to date.
type Analyzer struct {
	bets  ports.BetStore
	store ports.AnalysisStore
	now   func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(bets ports.BetStore, store ports.AnalysisStore) *Analyzer {
	return &Analyzer{bets: bets, store: store, now: time.Now}
}

// Seed stores an empty analysis for a freshly opened round.
func (a *Analyzer) Seed(ctx context.Context, roundID string) error {
	if err := a.store.UpsertAnalysis(ctx, domain.EmptyAnalysis(roundID, a.now().UTC())); err != nil {
		return fmt.Errorf("profit.Seed: %w", err)
	}
	return nil
}

// Analyze reloads the round's bets, recomputes the analysis and upserts it.
// The bets used are returned so callers do not read the ledger twice.
func (a *Analyzer) Analyze(ctx context.Context, roundID string) (domain.ProfitAnalysis, []domain.Bet, error) {
	bets, err := a.bets.BetsByRound(ctx, roundID)
	if err != nil {
		return domain.EmptyAnalysis(roundID, a.now().UTC()), nil, fmt.Errorf("profit.Analyze: load bets: %w", err)
	}

	analysis := domain.Analyze(roundID, bets, a.now().UTC())
	if err := a.store.UpsertAnalysis(ctx, analysis); err != nil {
		return analysis, bets, fmt.Errorf("profit.Analyze: upsert: %w", err)
	}

	slog.Debug("profit: analysis updated",
		"round", roundID,
		"bets", analysis.BetCount,
		"total_up", analysis.TotalUp.String(),
		"total_down", analysis.TotalDown.String(),
		"up_win", analysis.UpWinProfit.String(),
		"down_win", analysis.DownWinProfit.String(),
		"recommended", analysis.Recommended.String(),
	)
	return analysis, bets, nil
}

// Cleanup drops the transient analysis once the round completed.
func (a *Analyzer) Cleanup(ctx context.Context, roundID string) error {
	if err := a.store.DeleteAnalysis(ctx, roundID); err != nil {
		return fmt.Errorf("profit.Cleanup: %w", err)
	}
	return nil
}
