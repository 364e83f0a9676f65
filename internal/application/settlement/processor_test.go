package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/adapters/storage"
	"github.com/alejandrodnm/roundbot/internal/application/reputation"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	resolved    []string
	manual      []string
	profits     []decimal.Decimal
	resolveErr  error
	profitFails int
}

func (g *fakeGateway) ResolveBet(_ context.Context, id string, _ domain.BetResult) (domain.PayoutReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolveErr != nil {
		return domain.PayoutReceipt{}, g.resolveErr
	}
	g.resolved = append(g.resolved, id)
	return domain.PayoutReceipt{ContractBetID: id, TxHash: "0xtx-" + id}, nil
}

func (g *fakeGateway) ManualPayout(_ context.Context, amount decimal.Decimal, to string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manual = append(g.manual, to+":"+amount.String())
	return "0xmanual", nil
}

func (g *fakeGateway) GetTreasuryStats(_ context.Context) (domain.TreasuryStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.TreasuryStats{Balance: g.balance}, nil
}

func (g *fakeGateway) RecordProfit(_ context.Context, delta decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.profitFails > 0 {
		g.profitFails--
		return "", errors.New("rpc unavailable")
	}
	g.profits = append(g.profits, delta)
	return "0xstats", nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func placeBet(t *testing.T, db *storage.SQLiteStorage, id string, dir domain.Direction, stake, entry string) {
	t.Helper()
	require.NoError(t, db.PlaceBet(context.Background(), domain.Bet{
		ID:            id,
		RoundID:       "r1",
		Bettor:        "0x" + id,
		Direction:     dir,
		Stake:         dec(stake),
		EntryPrice:    dec(entry),
		PayoutRatio:   dec("1.9"),
		ContractBetID: "1" + id[1:],
		PlacedAt:      time.Now().UTC(),
	}))
}

func newProcessor(t *testing.T, gw *fakeGateway) (*Processor, *storage.SQLiteStorage) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	openRound(t, db, "r1")
	p := NewProcessor(db, gw, Config{StatsAttempts: 3, StatsDelay: time.Millisecond})
	p.sleep = func(time.Duration) {}
	return p, db
}

func TestProcessor_SettleRound_PerBetEntryPrice(t *testing.T) {
	gw := &fakeGateway{balance: dec("100000")}
	p, db := newProcessor(t, gw)
	ctx := context.Background()

	placeBet(t, db, "b1", domain.DirectionUp, "100", "2.00")   // 2.05 > 2.00 → win
	placeBet(t, db, "b2", domain.DirectionUp, "100", "2.10")   // 2.05 < 2.10 → lose
	placeBet(t, db, "b3", domain.DirectionDown, "50", "2.05")  // empate
	placeBet(t, db, "b4", domain.DirectionDown, "200", "2.00") // lose

	report, err := p.SettleRound(ctx, "r1", dec("2.05"))
	require.NoError(t, err)

	assert.Len(t, report.Settled, 4)
	assert.Empty(t, report.Deferred)
	assert.Equal(t, 1, report.Wins)
	assert.Equal(t, 2, report.Losses)
	assert.Equal(t, 1, report.Draws)

	// Volumen 450, pagos 190 + 50
	assert.True(t, report.TotalVolume.Equal(dec("450")))
	assert.True(t, report.TotalPayout.Equal(dec("240")))
	assert.True(t, report.RealizedProfit.Equal(dec("210")))

	// Las derrotas no llaman al gateway
	assert.ElementsMatch(t, []string{"11", "13"}, gw.resolved)
	require.Len(t, gw.profits, 1)
	assert.True(t, gw.profits[0].Equal(dec("210")))

	b2, err := db.GetBet(ctx, "b2")
	require.NoError(t, err)
	assert.True(t, b2.Settled)
	assert.Equal(t, domain.PayoutSkipped, b2.PayoutStatus)
	assert.True(t, b2.PayoutAmount.IsZero())

	b1, err := db.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPaid, b1.PayoutStatus)
	assert.Equal(t, "0xtx-11", b1.TxHash)
}

func TestProcessor_DrawPaysStake(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)

	placeBet(t, db, "b1", domain.DirectionUp, "75", "2.00")
	report, err := p.SettleRound(context.Background(), "r1", dec("2.00"))
	require.NoError(t, err)

	require.Len(t, report.Settled, 1)
	got := report.Settled[0]
	assert.Equal(t, domain.ResultDraw, got.Result)
	assert.True(t, got.PayoutAmount.Equal(got.Stake))
	assert.Empty(t, gw.profits, "zero realized profit is not pushed")
}

func TestProcessor_InsufficientBalanceDefersAndContinues(t *testing.T) {
	gw := &fakeGateway{balance: dec("150")}
	p, db := newProcessor(t, gw)
	ctx := context.Background()

	placeBet(t, db, "b1", domain.DirectionUp, "100", "2.00") // paga 190 > 150
	placeBet(t, db, "b2", domain.DirectionUp, "50", "2.00")  // paga 95
	placeBet(t, db, "b3", domain.DirectionDown, "40", "2.00")

	report, err := p.SettleRound(ctx, "r1", dec("2.10"))
	require.NoError(t, err)

	require.Len(t, report.Deferred, 1)
	assert.Equal(t, "b1", report.Deferred[0].ID)
	assert.Len(t, report.Settled, 2)

	b1, err := db.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, b1.Settled)
	assert.Equal(t, domain.PayoutDeferred, b1.PayoutStatus)
	assert.Equal(t, domain.ErrInsufficientTreasury.Error(), b1.PayoutError)

	// Solo cuentan las apuestas liquidadas: 90 − 95
	assert.True(t, report.TotalVolume.Equal(dec("90")))
	assert.True(t, report.RealizedProfit.Equal(dec("-5")))
}

func TestProcessor_MissingContractIDDeferred(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)
	ctx := context.Background()

	require.NoError(t, db.PlaceBet(ctx, domain.Bet{
		ID: "b1", RoundID: "r1", Bettor: "0xb1", Direction: domain.DirectionUp,
		Stake: dec("10"), EntryPrice: dec("2"), PayoutRatio: dec("1.9"), PlacedAt: time.Now(),
	}))

	report, err := p.SettleRound(ctx, "r1", dec("3"))
	require.NoError(t, err)
	assert.Len(t, report.Deferred, 1)
	assert.Empty(t, gw.resolved)

	deferred, err := db.DeferredBets(ctx)
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	assert.Equal(t, domain.ErrMissingContractID.Error(), deferred[0].PayoutError)
}

func TestProcessor_GatewayErrorFailsClosed(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000"), resolveErr: errors.New("nonce too low")}
	p, db := newProcessor(t, gw)

	placeBet(t, db, "b1", domain.DirectionUp, "10", "2")
	report, err := p.SettleRound(context.Background(), "r1", dec("3"))
	require.NoError(t, err)
	assert.Empty(t, report.Settled)
	require.Len(t, report.Deferred, 1)
	assert.Contains(t, report.Deferred[0].PayoutError, "nonce too low")
}

func TestProcessor_SettleRoundIsIdempotent(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)
	placeBet(t, db, "b1", domain.DirectionUp, "10", "2")

	_, err := p.SettleRound(context.Background(), "r1", dec("3"))
	require.NoError(t, err)
	again, err := p.SettleRound(context.Background(), "r1", dec("3"))
	require.NoError(t, err)

	assert.Empty(t, again.Settled)
	assert.Len(t, gw.resolved, 1)
}

func TestProcessor_ProfitStatsRetried(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000"), profitFails: 2}
	p, db := newProcessor(t, gw)
	placeBet(t, db, "b1", domain.DirectionUp, "10", "2")

	_, err := p.SettleRound(context.Background(), "r1", dec("1"))
	require.NoError(t, err)
	require.Len(t, gw.profits, 1, "third attempt succeeds")

	// Fallo definitivo: solo se loguea
	gw.profitFails = 5
	placeBetRound(t, db, "b9", "r2")
	_, err = p.SettleRound(context.Background(), "r2", dec("1"))
	assert.NoError(t, err)
	assert.Len(t, gw.profits, 1)
}

// openRound cierra la ronda activa, si la hay, y abre una nueva en Betting.
func openRound(t *testing.T, db *storage.SQLiteStorage, id string) {
	t.Helper()
	ctx := context.Background()
	if active, err := db.GetActive(ctx); err == nil {
		_, err = db.LockRound(ctx, active.ID)
		require.NoError(t, err)
		_, err = db.TrySettle(ctx, active.ID)
		require.NoError(t, err)
		_, err = db.CompleteRound(ctx, active.ID, dec("2"), domain.DirectionUp)
		require.NoError(t, err)
	}
	require.NoError(t, db.CreateRound(ctx, domain.NewRound(id, time.Now().UTC(), dec("2"), time.Minute, 30*time.Second)))
}

func placeBetRound(t *testing.T, db *storage.SQLiteStorage, id, round string) {
	t.Helper()
	openRound(t, db, round)
	require.NoError(t, db.PlaceBet(context.Background(), domain.Bet{
		ID: id, RoundID: round, Bettor: "0x" + id, Direction: domain.DirectionUp,
		Stake: dec("10"), EntryPrice: dec("2"), PayoutRatio: dec("1.9"),
		ContractBetID: "99", PlacedAt: time.Now(),
	}))
}

func TestProcessor_SettleBetManually(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)
	ctx := context.Background()

	placeBet(t, db, "b1", domain.DirectionUp, "100", "2")

	b, err := p.SettleBetManually(ctx, "b1", domain.ResultWin)
	require.NoError(t, err)
	assert.True(t, b.Settled)
	assert.True(t, b.PayoutAmount.Equal(dec("190")))
	assert.Equal(t, []string{"0xb1:190"}, gw.manual)
	assert.Empty(t, gw.resolved, "manual path never uses round resolution")
	require.Len(t, gw.profits, 1)
	assert.True(t, gw.profits[0].Equal(dec("-90")))

	_, err = p.SettleBetManually(ctx, "b1", domain.ResultLose)
	assert.ErrorIs(t, err, domain.ErrBetAlreadySettled)

	_, err = p.SettleBetManually(ctx, "missing", domain.ResultWin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessor_SettleBetManuallyUpdatesReputation(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)
	ctx := context.Background()
	p.WithReputation(reputation.NewTracker(db, domain.DefaultReputationThresholds()))

	// whitelisted tras 5 derrotas; su victoria forzada quedó diferida
	require.NoError(t, db.SaveReputations(ctx, []domain.UserReputation{{
		Address: "0xb1", ConsecutiveLosses: 5, Whitelisted: true,
	}}))
	placeBet(t, db, "b1", domain.DirectionUp, "100", "2")
	require.NoError(t, db.MarkPayoutDeferred(ctx, "b1", domain.ErrInsufficientTreasury.Error()))

	_, err := p.SettleBetManually(ctx, "b1", domain.ResultWin)
	require.NoError(t, err)

	reps, err := db.GetReputations(ctx, []string{"0xb1"})
	require.NoError(t, err)
	rep := reps["0xb1"]
	assert.False(t, rep.Whitelisted)
	assert.Zero(t, rep.ConsecutiveWins)
	assert.Zero(t, rep.ConsecutiveLosses)
	assert.True(t, rep.CooldownUntil.After(time.Now()))
}

func TestProcessor_SettleBetManuallyLoseSkipsTransfer(t *testing.T) {
	gw := &fakeGateway{balance: dec("1000")}
	p, db := newProcessor(t, gw)
	placeBet(t, db, "b1", domain.DirectionUp, "100", "2")

	b, err := p.SettleBetManually(context.Background(), "b1", domain.ResultLose)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutSkipped, b.PayoutStatus)
	assert.Empty(t, gw.manual)
	require.Len(t, gw.profits, 1)
	assert.True(t, gw.profits[0].Equal(dec("100")))
}
