package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// UpsertAnalysis keeps exactly one analysis row per round.
func (s *SQLiteStorage) UpsertAnalysis(ctx context.Context, a domain.ProfitAnalysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profit_analyses
		  (round_id, total_up, total_down, up_win_profit, down_win_profit, recommended, bet_count, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(round_id) DO UPDATE SET
		  total_up        = excluded.total_up,
		  total_down      = excluded.total_down,
		  up_win_profit   = excluded.up_win_profit,
		  down_win_profit = excluded.down_win_profit,
		  recommended     = excluded.recommended,
		  bet_count       = excluded.bet_count,
		  updated_at      = excluded.updated_at`,
		a.RoundID, a.TotalUp, a.TotalDown, a.UpWinProfit, a.DownWinProfit,
		a.Recommended.String(), a.BetCount, a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertAnalysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the live analysis of a round.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, roundID string) (domain.ProfitAnalysis, error) {
	var a domain.ProfitAnalysis
	var rec, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT round_id, total_up, total_down, up_win_profit, down_win_profit, recommended, bet_count, updated_at
		FROM profit_analyses WHERE round_id=?`, roundID,
	).Scan(&a.RoundID, &a.TotalUp, &a.TotalDown, &a.UpWinProfit, &a.DownWinProfit, &rec, &a.BetCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrNotFound
	}
	if err != nil {
		return a, fmt.Errorf("storage.GetAnalysis: %w", err)
	}
	if a.Recommended, err = domain.ParseDirection(rec); err != nil {
		return a, fmt.Errorf("storage.GetAnalysis: %w", err)
	}
	a.UpdatedAt = parseTime(updatedAt)
	return a, nil
}

// DeleteAnalysis removes the transient analysis once a round is settled.
func (s *SQLiteStorage) DeleteAnalysis(ctx context.Context, roundID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profit_analyses WHERE round_id=?`, roundID); err != nil {
		return fmt.Errorf("storage.DeleteAnalysis: %w", err)
	}
	return nil
}
