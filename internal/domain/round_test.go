package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundStatus_ForwardOnly(t *testing.T) {
	assert.True(t, domain.RoundBetting.CanAdvanceTo(domain.RoundLocked))
	assert.True(t, domain.RoundLocked.CanAdvanceTo(domain.RoundSettling))
	assert.True(t, domain.RoundSettling.CanAdvanceTo(domain.RoundCompleted))

	assert.False(t, domain.RoundBetting.CanAdvanceTo(domain.RoundSettling), "no skipping")
	assert.False(t, domain.RoundLocked.CanAdvanceTo(domain.RoundBetting), "no going back")
	assert.False(t, domain.RoundCompleted.CanAdvanceTo(domain.RoundBetting))
	assert.True(t, domain.RoundCompleted.Terminal())
	assert.True(t, domain.RoundBetting.AcceptsBets())
	assert.False(t, domain.RoundLocked.AcceptsBets())
}

func TestParseRoundStatus(t *testing.T) {
	st, err := domain.ParseRoundStatus("SETTLING")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundSettling, st)

	_, err = domain.ParseRoundStatus("settling")
	assert.Error(t, err)
}

func TestNewRound_Timings(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := domain.NewRound("r1", now, decimal.RequireFromString("2"), time.Minute, 30*time.Second)

	assert.Equal(t, domain.RoundBetting, r.Status)
	assert.Equal(t, now.Add(30*time.Second), r.LockAt)
	assert.Equal(t, now.Add(time.Minute), r.EndAt)
	assert.True(t, r.CurrentPrice.Equal(r.StartPrice))
	assert.Nil(t, r.FinalPrice)
	assert.False(t, r.Outcome.Valid())

	assert.False(t, r.ShouldLock(now.Add(29*time.Second)))
	assert.True(t, r.ShouldLock(now.Add(30*time.Second)))
	assert.False(t, r.ShouldSettle(now.Add(59*time.Second)))
	assert.True(t, r.ShouldSettle(now.Add(time.Minute)))
	assert.Equal(t, 10*time.Second, r.Remaining(now.Add(50*time.Second)))
	assert.Zero(t, r.Remaining(now.Add(2*time.Minute)))

	r.Status = domain.RoundSettling
	assert.False(t, r.ShouldSettle(now.Add(time.Minute)), "already settling")
}

func TestNewRound_LockNeverBeforeStart(t *testing.T) {
	now := time.Now()
	r := domain.NewRound("r1", now, decimal.NewFromInt(1), 10*time.Second, 30*time.Second)
	assert.Equal(t, now, r.LockAt)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, domain.DirectionDown, domain.DirectionUp.Opposite())
	assert.Equal(t, domain.DirectionUp, domain.DirectionDown.Opposite())

	d, err := domain.ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDown, d)
	_, err = domain.ParseDirection("sideways")
	assert.Error(t, err)

	r, err := domain.ParseBetResult("draw")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultDraw, r)
	_, err = domain.ParseBetResult("maybe")
	assert.Error(t, err)
}
