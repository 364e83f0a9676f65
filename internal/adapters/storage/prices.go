package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

// SavePriceTick appends an oracle write to the price history.
func (s *SQLiteStorage) SavePriceTick(ctx context.Context, t domain.PriceTick) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_ticks (price, source, reason, timestamp) VALUES (?,?,?,?)`,
		t.Price, t.Source, t.Reason, t.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("storage.SavePriceTick: %w", err)
	}
	return nil
}

// LatestPrice returns the most recent oracle write.
func (s *SQLiteStorage) LatestPrice(ctx context.Context) (domain.PriceTick, error) {
	var t domain.PriceTick
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, price, source, reason, timestamp FROM price_ticks ORDER BY id DESC LIMIT 1`,
	).Scan(&t.ID, &t.Price, &t.Source, &t.Reason, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("storage.LatestPrice: %w", err)
	}
	t.Timestamp = parseTime(ts)
	return t, nil
}

// SaveSyntheticTrade records one manipulation step.
func (s *SQLiteStorage) SaveSyntheticTrade(ctx context.Context, t domain.SyntheticTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synthetic_trades (id, round_id, wallet, side, price, amount, tx_hash, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.RoundID, t.Wallet, t.Side.String(), t.Price, t.Amount, t.TxHash, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveSyntheticTrade: %w", err)
	}
	return nil
}

// SyntheticTradesByRound returns a round's synthetic trades in write order.
func (s *SQLiteStorage) SyntheticTradesByRound(ctx context.Context, roundID string) ([]domain.SyntheticTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, wallet, side, price, amount, tx_hash, created_at
		FROM synthetic_trades WHERE round_id=? ORDER BY created_at ASC, rowid ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("storage.SyntheticTradesByRound: %w", err)
	}
	defer rows.Close()

	var trades []domain.SyntheticTrade
	for rows.Next() {
		var t domain.SyntheticTrade
		var side, created string
		if err := rows.Scan(&t.ID, &t.RoundID, &t.Wallet, &side, &t.Price, &t.Amount, &t.TxHash, &created); err != nil {
			return nil, fmt.Errorf("storage.SyntheticTradesByRound: scan: %w", err)
		}
		if t.Side, err = domain.ParseDirection(side); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(created)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
