package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/alejandrodnm/roundbot/config"
	"github.com/alejandrodnm/roundbot/internal/adapters/onchain"
	"github.com/alejandrodnm/roundbot/internal/application/manipulator"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// demoStore es lo que el bettor necesita del storage.
type demoStore interface {
	GetActive(ctx context.Context) (domain.Round, error)
	PlaceBet(ctx context.Context, b domain.Bet) error
}

// demoBettor coloca apuestas aleatorias durante la ventana de apuestas,
// haciendo de API de apuestas para correr el pipeline completo sin clientes.
type demoBettor struct {
	store    demoStore
	oracle   ports.PriceOracle
	sim      *onchain.Simulated // registra el stake en la tesorería simulada, nil con contrato real
	bettors  []string
	interval time.Duration
	minStake float64
	maxStake float64
	ratio    decimal.Decimal
	rng      *rand.Rand
	nextID   uint64
}

func newDemoBettor(cfg *config.Config, store demoStore, oracle ports.PriceOracle, sim *onchain.Simulated) (*demoBettor, error) {
	pool, err := manipulator.NewWalletPool("roundbot-demo-bettors", cfg.Demo.BettorCount)
	if err != nil {
		return nil, fmt.Errorf("demo bettors: %w", err)
	}

	window := cfg.RoundDuration() - cfg.LockBefore()
	interval := window / time.Duration(cfg.Demo.BetsPerRound)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	return &demoBettor{
		store:    store,
		oracle:   oracle,
		sim:      sim,
		bettors:  pool.Addresses(),
		interval: interval,
		minStake: cfg.Demo.MinStake,
		maxStake: cfg.Demo.MaxStake,
		ratio:    decimal.NewFromFloat(cfg.Demo.PayoutRatio),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0xde70)),
		nextID:   uint64(time.Now().UnixMilli()),
	}, nil
}

// Run coloca una apuesta por intervalo mientras haya una ronda aceptando apuestas.
func (d *demoBettor) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("demo: bettor started", "bettors", len(d.bettors), "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := d.place(ctx); err != nil {
			slog.Warn("demo: bet not placed", "err", err)
		}
	}
}

func (d *demoBettor) place(ctx context.Context) error {
	r, err := d.store.GetActive(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !r.Status.AcceptsBets() {
		return nil
	}

	price, err := d.oracle.GetPrice(ctx)
	if err != nil {
		return fmt.Errorf("entry price: %w", err)
	}

	dir := domain.DirectionUp
	if d.rng.IntN(2) == 1 {
		dir = domain.DirectionDown
	}
	stake := decimal.NewFromFloat(d.minStake + d.rng.Float64()*(d.maxStake-d.minStake)).Round(2)

	d.nextID++
	b := domain.Bet{
		ID:            uuid.NewString(),
		RoundID:       r.ID,
		Bettor:        d.bettors[d.rng.IntN(len(d.bettors))],
		Direction:     dir,
		Stake:         stake,
		EntryPrice:    price,
		PayoutRatio:   d.ratio,
		ContractBetID: strconv.FormatUint(d.nextID, 10),
		PlacedAt:      time.Now().UTC(),
	}

	// el lock puede llegar entre GetActive y el insert
	if err := d.store.PlaceBet(ctx, b); errors.Is(err, domain.ErrBettingClosed) {
		slog.Debug("demo: betting closed before placement", "round", r.ID)
		return nil
	} else if err != nil {
		return fmt.Errorf("place bet: %w", err)
	}
	if d.sim != nil {
		if err := d.sim.PlaceBet(b.ContractBetID, b.Stake, b.PayoutRatio); err != nil {
			return err
		}
	}

	slog.Debug("demo: bet placed",
		"round", r.ID, "bettor", b.Bettor, "direction", dir.String(), "stake", stake.String(), "entry", price.String())
	return nil
}
