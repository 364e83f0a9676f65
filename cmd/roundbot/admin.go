package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/roundbot/internal/adapters/notify"
	"github.com/alejandrodnm/roundbot/internal/adapters/storage"
	"github.com/alejandrodnm/roundbot/internal/application/settlement"
	"github.com/alejandrodnm/roundbot/internal/domain"
)

const reportRounds = 20

// runSettleBet ejecuta el path de liquidación manual para una apuesta.
func runSettleBet(ctx context.Context, settler *settlement.Processor, betID, raw string) error {
	if raw == "" {
		return fmt.Errorf("-result is required with -settle-bet")
	}
	result, err := domain.ParseBetResult(raw)
	if err != nil {
		return err
	}

	b, err := settler.SettleBetManually(ctx, betID, result)
	if err != nil {
		return err
	}

	slog.Info("bet settled manually",
		"bet", b.ID,
		"bettor", b.Bettor,
		"result", b.Result.String(),
		"payout", b.PayoutAmount.String(),
		"tx", b.TxHash,
	)
	return nil
}

// runReport imprime el estado persistido sin arrancar el scheduler.
func runReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console) error {
	rounds, err := store.RecentRounds(ctx, reportRounds)
	if err != nil {
		return fmt.Errorf("recent rounds: %w", err)
	}

	now := time.Now()
	in := notify.ReportInput{Rounds: rounds, Now: now}

	day, err := store.GetDailyTarget(ctx, domain.Day(now))
	switch {
	case err == nil:
		in.Today = &day
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("daily target: %w", err)
	}

	if in.Deferred, err = store.DeferredBets(ctx); err != nil {
		return fmt.Errorf("deferred bets: %w", err)
	}

	console.PrintReport(in)
	return nil
}
