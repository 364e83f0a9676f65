package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// GetReputations loads the rows for the given addresses. Unknown addresses are absent.
func (s *SQLiteStorage) GetReputations(ctx context.Context, addresses []string) (map[string]domain.UserReputation, error) {
	out := make(map[string]domain.UserReputation, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(addresses)), ",")
	args := make([]any, len(addresses))
	for i, a := range addresses {
		args[i] = a
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, consecutive_wins, consecutive_losses, blacklisted, blacklisted_at,
		       whitelisted, whitelisted_at, cooldown_until, updated_at
		FROM user_reputations WHERE address IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.GetReputations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.UserReputation
		var black, white int
		var blackAt, whiteAt, cooldown sql.NullString
		var updatedAt string
		if err := rows.Scan(&u.Address, &u.ConsecutiveWins, &u.ConsecutiveLosses, &black, &blackAt,
			&white, &whiteAt, &cooldown, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage.GetReputations: scan: %w", err)
		}
		u.Blacklisted = black != 0
		u.Whitelisted = white != 0
		u.BlacklistedAt = nullTimePtr(blackAt)
		u.WhitelistedAt = nullTimePtr(whiteAt)
		if t := nullTimePtr(cooldown); t != nil {
			u.CooldownUntil = *t
		}
		u.UpdatedAt = parseTime(updatedAt)
		out[u.Address] = u
	}
	return out, rows.Err()
}

// SaveReputations upserts all rows in a single transaction.
func (s *SQLiteStorage) SaveReputations(ctx context.Context, reps []domain.UserReputation) error {
	if len(reps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveReputations: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_reputations
		  (address, consecutive_wins, consecutive_losses, blacklisted, blacklisted_at,
		   whitelisted, whitelisted_at, cooldown_until, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(address) DO UPDATE SET
		  consecutive_wins   = excluded.consecutive_wins,
		  consecutive_losses = excluded.consecutive_losses,
		  blacklisted        = excluded.blacklisted,
		  blacklisted_at     = excluded.blacklisted_at,
		  whitelisted        = excluded.whitelisted,
		  whitelisted_at     = excluded.whitelisted_at,
		  cooldown_until     = excluded.cooldown_until,
		  updated_at         = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("storage.SaveReputations: prepare: %w", err)
	}
	defer stmt.Close()

	for _, u := range reps {
		if u.Blacklisted && u.Whitelisted {
			return fmt.Errorf("storage.SaveReputations: %s both blacklisted and whitelisted", u.Address)
		}
		cooldown := u.CooldownUntil
		if _, err := stmt.ExecContext(ctx,
			u.Address, u.ConsecutiveWins, u.ConsecutiveLosses,
			boolToInt(u.Blacklisted), timeArg(u.BlacklistedAt),
			boolToInt(u.Whitelisted), timeArg(u.WhitelistedAt),
			timeArg(&cooldown), u.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("storage.SaveReputations: upsert %s: %w", u.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveReputations: commit: %w", err)
	}
	return nil
}
