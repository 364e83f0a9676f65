package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
)

const roundColumns = `id, start_at, lock_at, end_at, start_price, current_price, final_price,
	status, outcome, created_at, updated_at`

// CreateRound inserts a new round in Betting. The UNIQUE `active` column makes a
// second non-terminal round impossible.
func (s *SQLiteStorage) CreateRound(ctx context.Context, r domain.Round) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds
		  (id, start_at, lock_at, end_at, start_price, current_price, final_price,
		   status, outcome, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,NULL,?,'',1,?,?)`,
		r.ID, r.StartAt.UTC(), r.LockAt.UTC(), r.EndAt.UTC(), r.StartPrice, r.CurrentPrice,
		string(domain.RoundBetting), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) && strings.Contains(err.Error(), "active") {
			return domain.ErrRoundActive
		}
		return fmt.Errorf("storage.CreateRound: %w", err)
	}
	return nil
}

// GetRound returns a round by id.
func (s *SQLiteStorage) GetRound(ctx context.Context, id string) (domain.Round, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id=?`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, domain.ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("storage.GetRound: %w", err)
	}
	return r, nil
}

// GetActive returns the non-terminal round, if any.
func (s *SQLiteStorage) GetActive(ctx context.Context) (domain.Round, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE active=1`)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, domain.ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("storage.GetActive: %w", err)
	}
	return r, nil
}

// LockRound: Betting → Locked.
func (s *SQLiteStorage) LockRound(ctx context.Context, id string) (bool, error) {
	return s.advance(ctx, id, domain.RoundBetting, domain.RoundLocked)
}

// TrySettle: Locked → Settling. Single conditional UPDATE, so exactly one caller wins.
func (s *SQLiteStorage) TrySettle(ctx context.Context, id string) (bool, error) {
	return s.advance(ctx, id, domain.RoundLocked, domain.RoundSettling)
}

// CompleteRound: Settling → Completed, releasing the active slot.
func (s *SQLiteStorage) CompleteRound(ctx context.Context, id string, finalPrice decimal.Decimal, outcome domain.Direction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET status=?, final_price=?, current_price=?, outcome=?, active=NULL, updated_at=?
		WHERE id=? AND status=?`,
		string(domain.RoundCompleted), finalPrice, finalPrice, outcomeArg(outcome), time.Now().UTC(),
		id, string(domain.RoundSettling),
	)
	if err != nil {
		return false, fmt.Errorf("storage.CompleteRound: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.CompleteRound: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateCurrentPrice refreshes the live price of a non-terminal round.
func (s *SQLiteStorage) UpdateCurrentPrice(ctx context.Context, id string, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET current_price=?, updated_at=? WHERE id=? AND active=1`,
		price, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage.UpdateCurrentPrice: %w", err)
	}
	return nil
}

// RoundsByStatus lists rounds in status, oldest first.
func (s *SQLiteStorage) RoundsByStatus(ctx context.Context, status domain.RoundStatus) ([]domain.Round, error) {
	return s.queryRounds(ctx, `WHERE status=? ORDER BY start_at ASC`, string(status))
}

// RecentRounds returns the last n rounds, newest first.
func (s *SQLiteStorage) RecentRounds(ctx context.Context, n int) ([]domain.Round, error) {
	return s.queryRounds(ctx, `ORDER BY start_at DESC LIMIT ?`, n)
}

func (s *SQLiteStorage) advance(ctx context.Context, id string, from, to domain.RoundStatus) (bool, error) {
	if !from.CanAdvanceTo(to) {
		return false, fmt.Errorf("storage.advance: illegal transition %s → %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("storage.advance %s→%s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.advance: rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStorage) queryRounds(ctx context.Context, tail string, args ...any) ([]domain.Round, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roundColumns+` FROM rounds `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryRounds: %w", err)
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryRounds: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (domain.Round, error) {
	var r domain.Round
	var startAt, lockAt, endAt, createdAt, updatedAt string
	var final decimal.NullDecimal
	var status, outcome string

	err := row.Scan(&r.ID, &startAt, &lockAt, &endAt, &r.StartPrice, &r.CurrentPrice, &final,
		&status, &outcome, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}

	r.StartAt = parseTime(startAt)
	r.LockAt = parseTime(lockAt)
	r.EndAt = parseTime(endAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if final.Valid {
		fp := final.Decimal
		r.FinalPrice = &fp
	}
	if r.Status, err = domain.ParseRoundStatus(status); err != nil {
		return r, err
	}
	if outcome != "" {
		if r.Outcome, err = domain.ParseDirection(outcome); err != nil {
			return r, err
		}
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// outcomeArg stores a flat round (no valid direction) as ''.
func outcomeArg(d domain.Direction) string {
	if !d.Valid() {
		return ""
	}
	return d.String()
}
