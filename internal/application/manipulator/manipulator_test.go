package manipulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOracle struct {
	mu     sync.Mutex
	price  decimal.Decimal
	writes []decimal.Decimal
}

func (o *memOracle) GetPrice(_ context.Context) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, nil
}

func (o *memOracle) SetPrice(_ context.Context, p decimal.Decimal, _, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = p
	o.writes = append(o.writes, p)
	return nil
}

type memTrades struct {
	trades []domain.SyntheticTrade
}

func (m *memTrades) SaveSyntheticTrade(_ context.Context, t domain.SyntheticTrade) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *memTrades) SyntheticTradesByRound(_ context.Context, roundID string) ([]domain.SyntheticTrade, error) {
	var out []domain.SyntheticTrade
	for _, t := range m.trades {
		if t.RoundID == roundID {
			out = append(out, t)
		}
	}
	return out, nil
}

func newTestManipulator(t *testing.T, price string) (*Manipulator, *memOracle, *memTrades) {
	t.Helper()
	pool, err := NewWalletPool("test-seed", 4)
	require.NoError(t, err)
	o := &memOracle{price: decimal.RequireFromString(price)}
	tr := &memTrades{}
	m := New(o, tr, pool, DefaultConfig())
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m, o, tr
}

func TestWalletPool_Deterministic(t *testing.T) {
	a, err := NewWalletPool("seed", 3)
	require.NoError(t, err)
	b, err := NewWalletPool("seed", 3)
	require.NoError(t, err)
	c, err := NewWalletPool("other", 3)
	require.NoError(t, err)

	assert.Equal(t, a.Addresses(), b.Addresses())
	assert.NotEqual(t, a.Addresses(), c.Addresses())
	assert.Equal(t, a.Address(0), a.Address(3), "index wraps around")

	_, err = NewWalletPool("seed", 0)
	assert.Error(t, err)
}

func TestManipulator_TargetPrice(t *testing.T) {
	m, _, _ := newTestManipulator(t, "2")
	cur := decimal.RequireFromString("1.99")
	start := decimal.RequireFromString("2.00")

	// Up: por encima del mayor de ambos
	up := m.TargetPrice(domain.DirectionUp, cur, start)
	assert.Equal(t, "2.002", up.String())

	// Down: por debajo del menor
	down := m.TargetPrice(domain.DirectionDown, cur, start)
	assert.Equal(t, "1.98801", down.String())

	// Floor
	tiny := m.TargetPrice(domain.DirectionDown, decimal.RequireFromString("0.00001"), start)
	assert.True(t, tiny.Equal(m.cfg.PriceFloor))
}

func TestManipulator_DriveUp(t *testing.T) {
	m, o, tr := newTestManipulator(t, "1.99")
	start := decimal.RequireFromString("2.00")

	res, err := m.Drive(context.Background(), "r1", domain.DirectionUp, start)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "2.002", res.TargetPrice.String())
	assert.LessOrEqual(t, res.Steps, 5)
	require.Len(t, o.writes, res.Steps)

	// Monótono y termina exactamente en el objetivo
	for i := 1; i < len(o.writes); i++ {
		assert.True(t, o.writes[i].GreaterThan(o.writes[i-1]))
	}
	assert.True(t, o.writes[len(o.writes)-1].Equal(res.TargetPrice))
	assert.True(t, o.price.GreaterThan(start))

	require.Len(t, tr.trades, res.Steps)
	for _, trade := range tr.trades {
		assert.Equal(t, "r1", trade.RoundID)
		assert.Equal(t, domain.DirectionUp, trade.Side)
		assert.Len(t, trade.TxHash, 66)
		assert.Contains(t, m.wallets.Addresses(), trade.Wallet)
	}
}

func TestManipulator_DriveSmallMoveSingleStep(t *testing.T) {
	m, o, _ := newTestManipulator(t, "2.00")
	m.cfg.Margin = decimal.RequireFromString("0.0001")

	res, err := m.Drive(context.Background(), "r1", domain.DirectionUp, decimal.RequireFromString("2.00"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
	assert.Len(t, o.writes, 1)
}

func TestManipulator_NegligibleGapSkipped(t *testing.T) {
	m, o, tr := newTestManipulator(t, "2.00")
	m.cfg.Margin = decimal.Zero

	res, err := m.Drive(context.Background(), "r1", domain.DirectionUp, decimal.RequireFromString("2.00"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, o.writes)
	assert.Empty(t, tr.trades)
}

func TestManipulator_StepsClamped(t *testing.T) {
	m, _, _ := newTestManipulator(t, "2")
	cur := decimal.NewFromInt(100)
	assert.Equal(t, 1, m.Steps(cur, decimal.RequireFromString("0.01")))
	assert.Equal(t, 5, m.Steps(cur, decimal.NewFromInt(50)))
	assert.Equal(t, 2, m.Steps(cur, decimal.RequireFromString("0.06")))
}
