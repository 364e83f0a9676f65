package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

const dateLayout = "2006-01-02"

// GetDailyTarget returns the record for the UTC day containing day.
func (s *SQLiteStorage) GetDailyTarget(ctx context.Context, day time.Time) (domain.DailyTarget, error) {
	var d domain.DailyTarget
	var date string
	var achieved int
	err := s.db.QueryRowContext(ctx, `
		SELECT date, starting_balance, current_balance, target_amount, achieved,
		       rounds_played, house_wins, house_losses, total_volume, total_payout
		FROM daily_targets WHERE date=?`, domain.Day(day).Format(dateLayout),
	).Scan(&date, &d.StartingBalance, &d.CurrentBalance, &d.TargetAmount, &achieved,
		&d.RoundsPlayed, &d.HouseWins, &d.HouseLosses, &d.TotalVolume, &d.TotalPayout)
	if errors.Is(err, sql.ErrNoRows) {
		return d, domain.ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("storage.GetDailyTarget: %w", err)
	}
	d.Date = domain.Day(parseTime(date))
	d.Achieved = achieved != 0
	return d, nil
}

// SaveDailyTarget upserts the daily record.
func (s *SQLiteStorage) SaveDailyTarget(ctx context.Context, d domain.DailyTarget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_targets
		  (date, starting_balance, current_balance, target_amount, achieved,
		   rounds_played, house_wins, house_losses, total_volume, total_payout)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
		  current_balance = excluded.current_balance,
		  target_amount   = excluded.target_amount,
		  achieved        = MAX(achieved, excluded.achieved),
		  rounds_played   = excluded.rounds_played,
		  house_wins      = excluded.house_wins,
		  house_losses    = excluded.house_losses,
		  total_volume    = excluded.total_volume,
		  total_payout    = excluded.total_payout`,
		domain.Day(d.Date).Format(dateLayout), d.StartingBalance, d.CurrentBalance, d.TargetAmount,
		boolToInt(d.Achieved), d.RoundsPlayed, d.HouseWins, d.HouseLosses, d.TotalVolume, d.TotalPayout,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDailyTarget: %w", err)
	}
	return nil
}
