package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/adapters/storage"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledBet(bettor string, stake, payout int64, result domain.BetResult) domain.Bet {
	return domain.Bet{
		Bettor:       bettor,
		Stake:        decimal.NewFromInt(stake),
		PayoutAmount: decimal.NewFromInt(payout),
		Result:       result,
		Settled:      true,
	}
}

func newTracker(t *testing.T) (*Tracker, *storage.SQLiteStorage, *time.Time) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(db, domain.DefaultReputationThresholds())
	tr.now = func() time.Time { return clock }
	return tr, db, &clock
}

func TestNetResults(t *testing.T) {
	res := NetResults([]domain.Bet{
		settledBet("0xa", 100, 190, domain.ResultWin),
		settledBet("0xa", 100, 0, domain.ResultLose), // neto: 200 apostado, 190 cobrado
		settledBet("0xb", 50, 50, domain.ResultDraw),
		settledBet("0xc", 10, 19, domain.ResultWin),
		{Bettor: "0xd", Stake: decimal.NewFromInt(10)}, // sin liquidar
	})
	assert.Equal(t, domain.ResultLose, res["0xa"])
	assert.Equal(t, domain.ResultDraw, res["0xb"])
	assert.Equal(t, domain.ResultWin, res["0xc"])
	_, ok := res["0xd"]
	assert.False(t, ok)
}

func TestTracker_BlacklistAfterWinStreak(t *testing.T) {
	tr, db, clock := newTracker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		changes, err := tr.Update(ctx, []domain.Bet{settledBet("0xa", 10, 19, domain.ResultWin)})
		require.NoError(t, err)
		assert.Empty(t, changes)
		*clock = clock.Add(time.Minute)
	}

	changes, err := tr.Update(ctx, []domain.Bet{settledBet("0xa", 10, 19, domain.ResultWin)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeBlacklisted, changes[0].Change)

	reps, err := tr.Lookup(ctx, []string{"0xa"})
	require.NoError(t, err)
	assert.True(t, reps["0xa"].Blacklisted)
	assert.False(t, reps["0xa"].Whitelisted)

	// La derrota forzada lo saca de la lista con cooldown
	changes, err = tr.Update(ctx, []domain.Bet{settledBet("0xa", 10, 0, domain.ResultLose)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeUnblacklisted, changes[0].Change)

	stored, err := db.GetReputations(ctx, []string{"0xa"})
	require.NoError(t, err)
	assert.False(t, stored["0xa"].Listed())
	assert.True(t, stored["0xa"].InCooldown(*clock))
}

func TestTracker_CooldownBlocksReentry(t *testing.T) {
	tr, _, clock := newTracker(t)
	ctx := context.Background()
	win := []domain.Bet{settledBet("0xa", 10, 19, domain.ResultWin)}
	lose := []domain.Bet{settledBet("0xa", 10, 0, domain.ResultLose)}

	for i := 0; i < 3; i++ {
		_, err := tr.Update(ctx, win)
		require.NoError(t, err)
	}
	_, err := tr.Update(ctx, lose)
	require.NoError(t, err)

	// Dentro del cooldown: 3 victorias no vuelven a listar
	for i := 0; i < 3; i++ {
		changes, err := tr.Update(ctx, win)
		require.NoError(t, err)
		assert.Empty(t, changes)
	}

	*clock = clock.Add(16 * time.Minute)
	changes, err := tr.Update(ctx, win)
	require.NoError(t, err)
	require.Len(t, changes, 1, "streak kept counting during cooldown")
	assert.Equal(t, domain.ChangeBlacklisted, changes[0].Change)
}

func TestTracker_WhitelistAfterLossStreak(t *testing.T) {
	tr, _, _ := newTracker(t)
	ctx := context.Background()
	lose := []domain.Bet{settledBet("0xb", 10, 0, domain.ResultLose)}

	var last []Change
	for i := 0; i < 5; i++ {
		var err error
		last, err = tr.Update(ctx, lose)
		require.NoError(t, err)
	}
	require.Len(t, last, 1)
	assert.Equal(t, domain.ChangeWhitelisted, last[0].Change)

	// Empates no alteran nada
	changes, err := tr.Update(ctx, []domain.Bet{settledBet("0xb", 10, 10, domain.ResultDraw)})
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, err = tr.Update(ctx, []domain.Bet{settledBet("0xb", 10, 19, domain.ResultWin)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeUnwhitelisted, changes[0].Change)
}
