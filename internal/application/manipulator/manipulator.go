package manipulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxSteps = 5
	pricePlaces     = 8
)

// Config tunes how the price is driven.
type Config struct {
	Margin     decimal.Decimal // overshoot beyond the less favorable reference, e.g. 0.001
	StepPct    decimal.Decimal // max move per step as a fraction of the current price
	MaxSteps   int
	Epsilon    decimal.Decimal // gaps at or below this are ignored
	PriceFloor decimal.Decimal // the target never goes below this
	Budget     time.Duration   // total time the steps are spread across
	MinTrade   decimal.Decimal // synthetic trade size range
	MaxTrade   decimal.Decimal
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Margin:     decimal.RequireFromString("0.001"),
		StepPct:    decimal.RequireFromString("0.0005"),
		MaxSteps:   defaultMaxSteps,
		Epsilon:    decimal.RequireFromString("0.00000001"),
		PriceFloor: decimal.RequireFromString("0.0001"),
		Budget:     2 * time.Second,
		MinTrade:   decimal.NewFromInt(10),
		MaxTrade:   decimal.NewFromInt(250),
	}
}

// Manipulator nudges the oracle toward a price that realizes a target outcome.
type Manipulator struct {
	oracle  ports.PriceOracle
	trades  ports.TradeRecorder
	wallets *WalletPool
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// New creates a Manipulator.
func New(oracle ports.PriceOracle, trades ports.TradeRecorder, wallets *WalletPool, cfg Config) *Manipulator {
	def := DefaultConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if !cfg.StepPct.IsPositive() {
		cfg.StepPct = def.StepPct
	}
	if !cfg.PriceFloor.IsPositive() {
		cfg.PriceFloor = def.PriceFloor
	}
	if !cfg.Epsilon.IsPositive() {
		cfg.Epsilon = def.Epsilon
	}
	if !cfg.MaxTrade.IsPositive() {
		cfg.MinTrade, cfg.MaxTrade = def.MinTrade, def.MaxTrade
	}
	return &Manipulator{
		oracle:  oracle,
		trades:  trades,
		wallets: wallets,
		cfg:     cfg,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// TargetPrice returns the price that realizes target given the current and start prices.
func (m *Manipulator) TargetPrice(target domain.Direction, current, start decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	var p decimal.Decimal
	if target == domain.DirectionUp {
		p = decimal.Max(current, start).Mul(one.Add(m.cfg.Margin))
	} else {
		p = decimal.Min(current, start).Mul(one.Sub(m.cfg.Margin))
	}
	p = p.Round(pricePlaces)
	if p.LessThan(m.cfg.PriceFloor) {
		p = m.cfg.PriceFloor
	}
	return p
}

// Steps returns how many writes a move of gap from current takes.
func (m *Manipulator) Steps(current, gap decimal.Decimal) int {
	per := current.Mul(m.cfg.StepPct)
	if !per.IsPositive() {
		return 1
	}
	n := int(gap.Abs().Div(per).Ceil().IntPart())
	if n < 1 {
		n = 1
	}
	if n > m.cfg.MaxSteps {
		n = m.cfg.MaxSteps
	}
	return n
}

// Drive moves the oracle price so that the round ends with target.
// Every step writes an absolute price and records a synthetic trade.
func (m *Manipulator) Drive(ctx context.Context, roundID string, target domain.Direction, start decimal.Decimal) (domain.Manipulation, error) {
	current, err := m.oracle.GetPrice(ctx)
	if err != nil {
		return domain.Manipulation{Target: target}, fmt.Errorf("manipulator.Drive: read price: %w", err)
	}

	goal := m.TargetPrice(target, current, start)
	res := domain.Manipulation{Target: target, FromPrice: current, TargetPrice: goal}

	gap := goal.Sub(current)
	if gap.Abs().LessThanOrEqual(m.cfg.Epsilon) {
		res.Skipped = true
		return res, nil
	}

	n := m.Steps(current, gap)
	interval := m.cfg.Budget / time.Duration(n)
	slog.Info("manipulator: driving price",
		"round", roundID,
		"target", target.String(),
		"from", current.String(),
		"to", goal.String(),
		"steps", n)

	for i := 1; i <= n; i++ {
		price := goal
		if i < n {
			frac := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(int64(n)))
			price = current.Add(gap.Mul(frac)).Round(pricePlaces)
		}

		reason := fmt.Sprintf("round %s step %d/%d toward %s", roundID, i, n, target)
		if err := m.oracle.SetPrice(ctx, price, "manipulator", reason); err != nil {
			return res, fmt.Errorf("manipulator.Drive: step %d: %w", i, err)
		}
		res.Steps = i

		if err := m.record(ctx, roundID, target, price, i); err != nil {
			// la auditoría no bloquea el movimiento
			slog.Warn("manipulator: synthetic trade not recorded", "round", roundID, "step", i, "err", err)
		}

		if i < n && interval > 0 {
			if err := m.sleep(ctx, interval); err != nil {
				return res, fmt.Errorf("manipulator.Drive: %w", err)
			}
		}
	}
	return res, nil
}

func (m *Manipulator) record(ctx context.Context, roundID string, side domain.Direction, price decimal.Decimal, step int) error {
	idx := rand.IntN(m.wallets.Size())
	wallet := m.wallets.Address(idx)
	amount := m.tradeAmount()
	now := m.now().UTC()

	digest := crypto.Keccak256Hash(
		[]byte(roundID),
		wallet.Bytes(),
		[]byte(price.String()),
		[]byte(amount.String()),
		[]byte(fmt.Sprintf("%d:%d", step, now.UnixNano())),
	)
	if _, err := m.wallets.Sign(idx, digest); err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	return m.trades.SaveSyntheticTrade(ctx, domain.SyntheticTrade{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		Wallet:    wallet.Hex(),
		Side:      side,
		Price:     price,
		Amount:    amount,
		TxHash:    digest.Hex(),
		CreatedAt: now,
	})
}

func (m *Manipulator) tradeAmount() decimal.Decimal {
	span := m.cfg.MaxTrade.Sub(m.cfg.MinTrade)
	if !span.IsPositive() {
		return m.cfg.MaxTrade
	}
	return m.cfg.MinTrade.Add(span.Mul(decimal.NewFromFloat(rand.Float64()))).Round(2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
