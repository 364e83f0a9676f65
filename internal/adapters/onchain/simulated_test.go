package onchain

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimulated_ResolvePaysFromTreasury(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(d("1000"), d("500"))

	require.NoError(t, sim.PlaceBet("1", d("100"), d("1.9")))
	require.NoError(t, sim.PlaceBet("2", d("50"), d("1.9")))
	require.NoError(t, sim.PlaceBet("3", d("20"), d("1.9")))

	rcpt, err := sim.ResolveBet(ctx, "1", domain.ResultWin)
	require.NoError(t, err)
	assert.Equal(t, "1", rcpt.ContractBetID)
	assert.Len(t, rcpt.TxHash, 66)

	_, err = sim.ResolveBet(ctx, "2", domain.ResultDraw)
	require.NoError(t, err)
	_, err = sim.ResolveBet(ctx, "3", domain.ResultLose)
	require.NoError(t, err)

	stats, err := sim.GetTreasuryStats(ctx)
	require.NoError(t, err)
	// 1000 + 170 stakes − 190 win − 50 draw
	assert.True(t, stats.Balance.Equal(d("930")), stats.Balance.String())
	assert.True(t, stats.DailyProfitTarget.Equal(d("500")))
}

func TestSimulated_ResolveRejects(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(d("0"), d("0"))

	_, err := sim.ResolveBet(ctx, "9", domain.ResultWin)
	assert.Error(t, err, "unknown bet")

	require.NoError(t, sim.PlaceBet("9", d("10"), d("1.9")))
	_, err = sim.ResolveBet(ctx, "9", domain.ResultWin)
	assert.ErrorIs(t, err, domain.ErrInsufficientTreasury)

	_, err = sim.ResolveBet(ctx, "9", domain.ResultNone)
	assert.Error(t, err)

	_, err = sim.ResolveBet(ctx, "9", domain.ResultLose)
	require.NoError(t, err)
	_, err = sim.ResolveBet(ctx, "9", domain.ResultLose)
	assert.Error(t, err, "already resolved")

	assert.Error(t, sim.PlaceBet("9", d("1"), d("1.9")), "duplicate id")
	assert.Error(t, sim.PlaceBet("not-a-number", d("1"), d("1.9")))
}

func TestSimulated_ManualPayout(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(d("100"), d("0"))

	tx, err := sim.ManualPayout(ctx, d("40"), "0xabc")
	require.NoError(t, err)
	assert.NotEmpty(t, tx)

	_, err = sim.ManualPayout(ctx, d("61"), "0xabc")
	assert.ErrorIs(t, err, domain.ErrInsufficientTreasury)

	_, err = sim.ManualPayout(ctx, d("0"), "0xabc")
	assert.Error(t, err)

	stats, _ := sim.GetTreasuryStats(ctx)
	assert.True(t, stats.Balance.Equal(d("60")))
}

func TestSimulated_RecordProfitRollsOverDay(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(d("100"), d("10"))
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }
	sim.day = domain.Day(now)

	_, err := sim.RecordProfit(ctx, d("12"))
	require.NoError(t, err)
	_, err = sim.RecordProfit(ctx, d("-2"))
	require.NoError(t, err)

	stats, _ := sim.GetTreasuryStats(ctx)
	assert.True(t, stats.CurrentDailyProfit.Equal(d("10")))
	assert.True(t, stats.TargetMet())

	now = now.Add(2 * time.Minute)
	stats, _ = sim.GetTreasuryStats(ctx)
	assert.True(t, stats.CurrentDailyProfit.IsZero())
}

func TestSimulated_TxHashesUnique(t *testing.T) {
	sim := NewSimulated(d("100"), d("10"))
	a, _ := sim.RecordProfit(context.Background(), d("1"))
	b, _ := sim.RecordProfit(context.Background(), d("1"))
	assert.NotEqual(t, a, b)
}

func TestGatewayUnits(t *testing.T) {
	g := &Gateway{decimals: 6}
	assert.Equal(t, "1900000", g.toUnits(d("1.9")).String())
	assert.Equal(t, "1", g.toUnits(d("0.0000019")).String())
	assert.True(t, g.fromUnits(g.toUnits(d("123.456789"))).Equal(d("123.456789")))
	assert.True(t, g.fromUnits(nil).IsZero())
}

func TestParseBetID(t *testing.T) {
	v, ok := parseBetID("42")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())

	v, ok = parseBetID("0x2a")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())

	_, ok = parseBetID("")
	assert.False(t, ok)
	_, ok = parseBetID("bet-1")
	assert.False(t, ok)
}

func TestResultCode(t *testing.T) {
	c, err := resultCode(domain.ResultWin)
	require.NoError(t, err)
	assert.Equal(t, contractResultWin, c)
	c, _ = resultCode(domain.ResultDraw)
	assert.Equal(t, contractResultDraw, c)
	_, err = resultCode(domain.ResultNone)
	assert.Error(t, err)
}
