package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Config tunes the random walk.
type Config struct {
	Interval     time.Duration   // how often a step is attempted
	Volatility   float64         // std deviation of each relative step, e.g. 0.0004
	AnchorWeight decimal.Decimal // pull toward the reference feed per step (0..1)
	Symbol       string          // reference feed symbol
	Floor        decimal.Decimal
	MaxPerMinute int // hard cap on oracle writes
}

// DefaultConfig returns a slow walk, one write every 5s at most.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		Volatility:   0.0004,
		AnchorWeight: decimal.RequireFromString("0.2"),
		Symbol:       "ETHUSDT",
		Floor:        decimal.RequireFromString("0.0001"),
		MaxPerMinute: 12,
	}
}

// Simulator moves the oracle price while no round is settling.
type Simulator struct {
	oracle  ports.PriceOracle
	feed    ports.ReferenceFeed // optional
	paused  func() bool
	cfg     Config
	limiter *rate.Limiter
	rng     *rand.Rand
}

// New creates a Simulator. feed may be nil; paused reports when writes must stop.
func New(oracle ports.PriceOracle, feed ports.ReferenceFeed, paused func() bool, cfg Config) *Simulator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = def.Volatility
	}
	if !cfg.Floor.IsPositive() {
		cfg.Floor = def.Floor
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = def.MaxPerMinute
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Simulator{
		oracle:  oracle,
		feed:    feed,
		paused:  paused,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), 1),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Run steps the price until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.Info("drift: simulator started", "interval", s.cfg.Interval, "anchored", s.feed != nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.paused() || !s.limiter.Allow() {
				continue
			}
			if _, err := s.Step(ctx); err != nil {
				slog.Warn("drift: step failed", "err", err)
			}
		}
	}
}

// Step performs one random-walk move and writes it to the oracle.
func (s *Simulator) Step(ctx context.Context) (decimal.Decimal, error) {
	cur, err := s.oracle.GetPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("drift.Step: read: %w", err)
	}

	shock := decimal.NewFromFloat(s.rng.NormFloat64() * s.cfg.Volatility)
	next := cur.Mul(decimal.NewFromInt(1).Add(shock))

	if s.feed != nil && s.cfg.AnchorWeight.IsPositive() {
		ref, err := s.feed.FetchPrice(ctx, s.cfg.Symbol)
		if err != nil {
			slog.Debug("drift: reference feed unavailable", "err", err)
		} else if ref.IsPositive() {
			next = next.Add(ref.Sub(next).Mul(s.cfg.AnchorWeight))
		}
	}

	next = next.Round(8)
	if next.LessThan(s.cfg.Floor) {
		next = s.cfg.Floor
	}

	if s.paused() {
		// una liquidación empezó mientras leíamos el feed
		return cur, nil
	}
	if err := s.oracle.SetPrice(ctx, next, "drift", "random walk"); err != nil {
		return cur, fmt.Errorf("drift.Step: write: %w", err)
	}
	return next, nil
}
