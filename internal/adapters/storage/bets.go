package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/roundbot/internal/domain"
)

const betColumns = `id, round_id, bettor, direction, stake, entry_price, payout_ratio,
	settled, result, payout_amount, contract_bet_id, tx_hash, payout_status, payout_error,
	placed_at, settled_at`

// PlaceBet appends a bet to the ledger. The insert only happens while the round
// is Betting, checked in the same statement so a concurrent lock cannot slip a
// bet past it.
func (s *SQLiteStorage) PlaceBet(ctx context.Context, b domain.Bet) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bets
		  (id, round_id, bettor, direction, stake, entry_price, payout_ratio,
		   contract_bet_id, placed_at)
		SELECT ?,?,?,?,?,?,?,?,?
		WHERE EXISTS (SELECT 1 FROM rounds WHERE id=? AND status=?)`,
		b.ID, b.RoundID, b.Bettor, b.Direction.String(), b.Stake, b.EntryPrice, b.PayoutRatio,
		b.ContractBetID, b.PlacedAt.UTC(),
		b.RoundID, string(domain.RoundBetting),
	)
	if err != nil {
		return fmt.Errorf("storage.PlaceBet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.PlaceBet: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.PlaceBet %s: %w", b.RoundID, domain.ErrBettingClosed)
	}
	return nil
}

// BetsByRound returns every bet of a round in placement order.
func (s *SQLiteStorage) BetsByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	return s.queryBets(ctx, `WHERE round_id=? ORDER BY placed_at ASC, id ASC`, roundID)
}

// GetBet returns a bet by id.
func (s *SQLiteStorage) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=?`, id)
	b, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.ErrNotFound
	}
	if err != nil {
		return b, fmt.Errorf("storage.GetBet: %w", err)
	}
	return b, nil
}

// SettleBet writes the settlement of an unsettled bet. `settled=0` in the WHERE
// clause keeps the flag monotonic.
func (s *SQLiteStorage) SettleBet(ctx context.Context, b domain.Bet) error {
	if !b.Settled {
		return fmt.Errorf("storage.SettleBet: bet %s is not marked settled", b.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bets SET settled=1, result=?, payout_amount=?, tx_hash=?,
		       payout_status=?, payout_error='', settled_at=?
		WHERE id=? AND settled=0`,
		b.Result.String(), b.PayoutAmount, b.TxHash, string(b.PayoutStatus), timeArg(b.SettledAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.SettleBet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.SettleBet: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrBetAlreadySettled
	}
	return nil
}

// MarkPayoutDeferred flags an unsettled bet for manual payout.
func (s *SQLiteStorage) MarkPayoutDeferred(ctx context.Context, betID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bets SET payout_status=?, payout_error=? WHERE id=? AND settled=0`,
		string(domain.PayoutDeferred), reason, betID)
	if err != nil {
		return fmt.Errorf("storage.MarkPayoutDeferred: %w", err)
	}
	return nil
}

// DeferredBets lists unsettled bets waiting for manual payout.
func (s *SQLiteStorage) DeferredBets(ctx context.Context) ([]domain.Bet, error) {
	return s.queryBets(ctx, `WHERE settled=0 AND payout_status=? ORDER BY placed_at ASC`, string(domain.PayoutDeferred))
}

func (s *SQLiteStorage) queryBets(ctx context.Context, tail string, args ...any) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+betColumns+` FROM bets `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryBets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryBets: scan: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func scanBet(row rowScanner) (domain.Bet, error) {
	var b domain.Bet
	var direction, result, payoutStatus, placedAt string
	var settledAt sql.NullString
	var settled int

	err := row.Scan(
		&b.ID, &b.RoundID, &b.Bettor, &direction, &b.Stake, &b.EntryPrice, &b.PayoutRatio,
		&settled, &result, &b.PayoutAmount, &b.ContractBetID, &b.TxHash, &payoutStatus, &b.PayoutError,
		&placedAt, &settledAt,
	)
	if err != nil {
		return b, err
	}

	if b.Direction, err = domain.ParseDirection(direction); err != nil {
		return b, err
	}
	if b.Result, err = domain.ParseBetResult(result); err != nil {
		return b, err
	}
	b.Settled = settled != 0
	b.PayoutStatus = domain.PayoutStatus(payoutStatus)
	b.PlacedAt = parseTime(placedAt)
	b.SettledAt = nullTimePtr(settledAt)
	return b, nil
}
