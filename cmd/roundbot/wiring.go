package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/roundbot/config"
	"github.com/alejandrodnm/roundbot/internal/adapters/notify"
	"github.com/alejandrodnm/roundbot/internal/adapters/onchain"
	"github.com/alejandrodnm/roundbot/internal/adapters/oracle"
	"github.com/alejandrodnm/roundbot/internal/adapters/pricefeed"
	"github.com/alejandrodnm/roundbot/internal/adapters/storage"
	"github.com/alejandrodnm/roundbot/internal/application/decision"
	"github.com/alejandrodnm/roundbot/internal/application/drift"
	"github.com/alejandrodnm/roundbot/internal/application/manipulator"
	"github.com/alejandrodnm/roundbot/internal/application/payout"
	"github.com/alejandrodnm/roundbot/internal/application/profit"
	"github.com/alejandrodnm/roundbot/internal/application/reputation"
	"github.com/alejandrodnm/roundbot/internal/application/round"
	"github.com/alejandrodnm/roundbot/internal/application/settlement"
	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
)

// components agrupa los componentes ya cableados.
type components struct {
	oracle    *oracle.Cached
	queue     *payout.Queue
	sim       *onchain.Simulated // nil con contrato real
	settler   *settlement.Processor
	scheduler *round.Scheduler
	drift     *drift.Simulator // nil si está deshabilitado
}

func build(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console) (*components, error) {
	a := &components{}

	a.oracle = oracle.NewCached(store, time.Duration(cfg.Oracle.CacheMillis)*time.Millisecond)

	var feed ports.ReferenceFeed
	if cfg.Feed.Enabled {
		feed = pricefeed.NewClient(cfg.Feed.BaseURL, decimal.NewFromFloat(cfg.Feed.Scale))
	}
	if err := a.oracle.Seed(ctx, initialPrice(ctx, cfg, feed)); err != nil {
		return nil, fmt.Errorf("seed oracle: %w", err)
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}
	if sim, ok := gateway.(*onchain.Simulated); ok {
		a.sim = sim
	}
	a.queue = payout.NewQueue(gateway, cfg.Settlement.QueueBacklog)

	wallets, err := manipulator.NewWalletPool(cfg.Manipulator.WalletSeed, cfg.Manipulator.Wallets)
	if err != nil {
		return nil, fmt.Errorf("wallet pool: %w", err)
	}

	tracker := reputation.NewTracker(store, domain.ReputationThresholds{
		WinStreak:  cfg.Reputation.WinStreak,
		LossStreak: cfg.Reputation.LossStreak,
		Cooldown:   time.Duration(cfg.Reputation.CooldownMinutes) * time.Minute,
	})

	engine := decision.NewEngine(tracker, a.queue, decision.Config{
		AcceptableLoss: decimal.NewFromFloat(cfg.Decision.AcceptableLoss),
		LossCapPct:     decimal.NewFromFloat(cfg.Decision.LossCapPct),
	})

	manip := manipulator.New(a.oracle, store, wallets, manipulator.Config{
		Margin:     decimal.NewFromFloat(cfg.Manipulator.Margin),
		StepPct:    decimal.NewFromFloat(cfg.Manipulator.StepPct),
		MaxSteps:   cfg.Manipulator.MaxSteps,
		Epsilon:    decimal.NewFromFloat(cfg.Manipulator.Epsilon),
		PriceFloor: decimal.NewFromFloat(cfg.Manipulator.PriceFloor),
		Budget:     time.Duration(cfg.Manipulator.BudgetMillis) * time.Millisecond,
		MinTrade:   decimal.NewFromFloat(cfg.Manipulator.MinTrade),
		MaxTrade:   decimal.NewFromFloat(cfg.Manipulator.MaxTrade),
	})

	a.settler = settlement.NewProcessor(store, a.queue, settlement.Config{
		StatsAttempts: cfg.Settlement.StatsAttempts,
		StatsDelay:    time.Duration(cfg.Settlement.StatsDelaySeconds) * time.Second,
	}).WithReputation(tracker)

	a.scheduler = round.New(round.Deps{
		Rounds:      store,
		Daily:       store,
		Oracle:      a.oracle,
		Treasury:    a.queue,
		Broadcaster: console,
		Analyzer:    profit.NewAnalyzer(store, store),
		Decider:     engine,
		Manipulator: manip,
		Settler:     a.settler,
		Reputation:  tracker,
	}, round.Config{
		RoundDuration: cfg.RoundDuration(),
		LockBefore:    cfg.LockBefore(),
		Tick:          time.Duration(cfg.Round.TickMillis) * time.Millisecond,
		ErrorBackoff:  time.Duration(cfg.Round.ErrorBackoffSeconds) * time.Second,
		Continuous:    cfg.Continuous(),
	})

	if cfg.Drift.Enabled {
		a.drift = drift.New(a.oracle, feed, a.scheduler.Settling, drift.Config{
			Interval:     time.Duration(cfg.Drift.IntervalSeconds) * time.Second,
			Volatility:   cfg.Drift.Volatility,
			AnchorWeight: decimal.NewFromFloat(cfg.Drift.AnchorWeight),
			Symbol:       cfg.Feed.Symbol,
			Floor:        decimal.NewFromFloat(cfg.Manipulator.PriceFloor),
			MaxPerMinute: cfg.Drift.MaxPerMinute,
		})
	}

	return a, nil
}

// newGateway devuelve el contrato real si hay RPC configurado, si no la tesorería simulada.
func newGateway(cfg *config.Config) (ports.PayoutGateway, error) {
	if !cfg.OnChain() {
		slog.Warn("no chain configured, using simulated treasury",
			"balance", cfg.Chain.SimBalance, "daily_goal", cfg.Chain.SimDailyGoal)
		return onchain.NewSimulated(
			decimal.NewFromFloat(cfg.Chain.SimBalance),
			decimal.NewFromFloat(cfg.Chain.SimDailyGoal),
		), nil
	}

	gw, err := onchain.NewGateway(onchain.Config{
		RPCURL:        cfg.Chain.RPCURL,
		PrivateKeyHex: cfg.Chain.PrivateKey,
		Contract:      cfg.Chain.Contract,
		ChainID:       cfg.Chain.ChainID,
		TokenDecimals: cfg.Chain.TokenDecimals,
	})
	if err != nil {
		return nil, fmt.Errorf("onchain gateway: %w", err)
	}
	slog.Info("on-chain gateway ready", "signer", gw.Address(), "contract", cfg.Chain.Contract)
	return gw, nil
}

// initialPrice usa el feed si está disponible; si falla, el precio configurado.
func initialPrice(ctx context.Context, cfg *config.Config, feed ports.ReferenceFeed) decimal.Decimal {
	fallback := decimal.NewFromFloat(cfg.Oracle.InitialPrice)
	if feed == nil {
		return fallback
	}
	p, err := feed.FetchPrice(ctx, cfg.Feed.Symbol)
	if err != nil {
		slog.Warn("reference feed unavailable, using configured initial price", "err", err, "price", fallback.String())
		return fallback
	}
	return p
}
