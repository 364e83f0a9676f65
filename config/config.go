package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio de rondas.
type Config struct {
	Round       RoundConfig       `yaml:"round"`
	Decision    DecisionConfig    `yaml:"decision"`
	Reputation  ReputationConfig  `yaml:"reputation"`
	Manipulator ManipulatorConfig `yaml:"manipulator"`
	Settlement  SettlementConfig  `yaml:"settlement"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Drift       DriftConfig       `yaml:"drift"`
	Feed        FeedConfig        `yaml:"feed"`
	Chain       ChainConfig       `yaml:"chain"`
	Demo        DemoConfig        `yaml:"demo"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// RoundConfig controla el ciclo de vida de cada ronda.
type RoundConfig struct {
	DurationSeconds     int   `yaml:"duration_seconds"`
	LockBeforeSeconds   int   `yaml:"lock_before_seconds"` // segundos restantes en que se cierran apuestas
	TickMillis          int   `yaml:"tick_millis"`
	ErrorBackoffSeconds int   `yaml:"error_backoff_seconds"`
	Continuous          *bool `yaml:"continuous"` // nil = true
}

// DecisionConfig controla la cascada de reglas del resultado.
type DecisionConfig struct {
	AcceptableLoss float64 `yaml:"acceptable_loss"` // negativo; peor profit que se acepta por whitelist
	LossCapPct     float64 `yaml:"loss_cap_pct"`    // fracción del balance de tesorería
}

// ReputationConfig controla las rachas que mueven a un usuario entre listas.
type ReputationConfig struct {
	WinStreak       int `yaml:"win_streak"`
	LossStreak      int `yaml:"loss_streak"`
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// ManipulatorConfig controla cómo se empuja el precio hacia el objetivo.
type ManipulatorConfig struct {
	Margin       float64 `yaml:"margin"`
	StepPct      float64 `yaml:"step_pct"`
	MaxSteps     int     `yaml:"max_steps"`
	Epsilon      float64 `yaml:"epsilon"`
	PriceFloor   float64 `yaml:"price_floor"`
	BudgetMillis int     `yaml:"budget_millis"`
	MinTrade     float64 `yaml:"min_trade"`
	MaxTrade     float64 `yaml:"max_trade"`
	WalletSeed   string  `yaml:"wallet_seed"`
	Wallets      int     `yaml:"wallets"`
}

// SettlementConfig controla los reintentos de las estadísticas on-chain.
type SettlementConfig struct {
	StatsAttempts     int `yaml:"stats_attempts"`
	StatsDelaySeconds int `yaml:"stats_delay_seconds"`
	QueueBacklog      int `yaml:"queue_backlog"`
}

// OracleConfig controla el precio de referencia compartido.
type OracleConfig struct {
	InitialPrice float64 `yaml:"initial_price"`
	CacheMillis  int     `yaml:"cache_millis"`
}

// DriftConfig controla el simulador de deriva del precio.
type DriftConfig struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	Volatility      float64 `yaml:"volatility"`
	AnchorWeight    float64 `yaml:"anchor_weight"`
	MaxPerMinute    int     `yaml:"max_per_minute"`
}

// FeedConfig contiene el exchange usado como ancla de precio.
type FeedConfig struct {
	Enabled bool    `yaml:"enabled"`
	BaseURL string  `yaml:"base_url"`
	Symbol  string  `yaml:"symbol"`
	Scale   float64 `yaml:"scale"` // factor aplicado al precio del exchange
}

// ChainConfig contiene el contrato de apuestas. Sin RPC se usa la tesorería simulada.
type ChainConfig struct {
	RPCURL        string  `yaml:"rpc_url"`
	PrivateKey    string  `yaml:"-"` // solo desde CHAIN_PRIVATE_KEY
	Contract      string  `yaml:"contract"`
	ChainID       int64   `yaml:"chain_id"`
	TokenDecimals int32   `yaml:"token_decimals"`
	SimBalance    float64 `yaml:"sim_balance"`
	SimDailyGoal  float64 `yaml:"sim_daily_goal"`
}

// DemoConfig controla el generador de apuestas de demo.
type DemoConfig struct {
	BettorCount  int     `yaml:"bettors"`
	BetsPerRound int     `yaml:"bets_per_round"`
	MinStake     float64 `yaml:"min_stake"`
	MaxStake     float64 `yaml:"max_stake"`
	PayoutRatio  float64 `yaml:"payout_ratio"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// RoundDuration devuelve la duración de la ronda como time.Duration.
func (c *Config) RoundDuration() time.Duration {
	return time.Duration(c.Round.DurationSeconds) * time.Second
}

// LockBefore devuelve cuánto antes del final se cierran las apuestas.
func (c *Config) LockBefore() time.Duration {
	return time.Duration(c.Round.LockBeforeSeconds) * time.Second
}

// Continuous indica si se abre una ronda nueva al terminar la anterior.
func (c *Config) Continuous() bool {
	return c.Round.Continuous == nil || *c.Round.Continuous
}

// OnChain indica si hay un contrato real configurado.
func (c *Config) OnChain() bool {
	return c.Chain.RPCURL != "" && c.Chain.Contract != ""
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Round.DurationSeconds <= 0 {
		cfg.Round.DurationSeconds = 60
	}
	if cfg.Round.LockBeforeSeconds <= 0 {
		cfg.Round.LockBeforeSeconds = 30
	}
	if cfg.Round.TickMillis <= 0 {
		cfg.Round.TickMillis = 1000
	}
	if cfg.Round.ErrorBackoffSeconds <= 0 {
		cfg.Round.ErrorBackoffSeconds = 5
	}

	if cfg.Decision.AcceptableLoss == 0 {
		cfg.Decision.AcceptableLoss = -10000
	}
	if cfg.Decision.LossCapPct <= 0 {
		cfg.Decision.LossCapPct = 0.01
	}

	if cfg.Reputation.WinStreak <= 0 {
		cfg.Reputation.WinStreak = 3
	}
	if cfg.Reputation.LossStreak <= 0 {
		cfg.Reputation.LossStreak = 5
	}
	if cfg.Reputation.CooldownMinutes <= 0 {
		cfg.Reputation.CooldownMinutes = 15
	}

	if cfg.Manipulator.Margin <= 0 {
		cfg.Manipulator.Margin = 0.001
	}
	if cfg.Manipulator.StepPct <= 0 {
		cfg.Manipulator.StepPct = 0.0005
	}
	if cfg.Manipulator.MaxSteps <= 0 {
		cfg.Manipulator.MaxSteps = 5
	}
	if cfg.Manipulator.Epsilon <= 0 {
		cfg.Manipulator.Epsilon = 1e-8
	}
	if cfg.Manipulator.PriceFloor <= 0 {
		cfg.Manipulator.PriceFloor = 0.0001
	}
	if cfg.Manipulator.BudgetMillis <= 0 {
		cfg.Manipulator.BudgetMillis = 2000
	}
	if cfg.Manipulator.MinTrade <= 0 {
		cfg.Manipulator.MinTrade = 10
	}
	if cfg.Manipulator.MaxTrade <= 0 {
		cfg.Manipulator.MaxTrade = 250
	}
	if cfg.Manipulator.WalletSeed == "" {
		cfg.Manipulator.WalletSeed = "roundbot-bots"
	}
	if cfg.Manipulator.Wallets <= 0 {
		cfg.Manipulator.Wallets = 8
	}

	if cfg.Settlement.StatsAttempts <= 0 {
		cfg.Settlement.StatsAttempts = 3
	}
	if cfg.Settlement.StatsDelaySeconds <= 0 {
		cfg.Settlement.StatsDelaySeconds = 2
	}
	if cfg.Settlement.QueueBacklog <= 0 {
		cfg.Settlement.QueueBacklog = 64
	}

	if cfg.Oracle.InitialPrice <= 0 {
		cfg.Oracle.InitialPrice = 2.0
	}
	if cfg.Oracle.CacheMillis <= 0 {
		cfg.Oracle.CacheMillis = 3000
	}

	if cfg.Drift.IntervalSeconds <= 0 {
		cfg.Drift.IntervalSeconds = 5
	}
	if cfg.Drift.Volatility <= 0 {
		cfg.Drift.Volatility = 0.0004
	}
	if cfg.Drift.AnchorWeight <= 0 {
		cfg.Drift.AnchorWeight = 0.2
	}
	if cfg.Drift.MaxPerMinute <= 0 {
		cfg.Drift.MaxPerMinute = 12
	}

	if cfg.Feed.Symbol == "" {
		cfg.Feed.Symbol = "ETHUSDT"
	}
	if cfg.Feed.Scale <= 0 {
		cfg.Feed.Scale = 0.001
	}

	if cfg.Chain.ChainID <= 0 {
		cfg.Chain.ChainID = 137
	}
	if cfg.Chain.TokenDecimals <= 0 {
		cfg.Chain.TokenDecimals = 6
	}
	if cfg.Chain.SimBalance <= 0 {
		cfg.Chain.SimBalance = 100_000
	}
	if cfg.Chain.SimDailyGoal <= 0 {
		cfg.Chain.SimDailyGoal = 1_000
	}

	if cfg.Demo.BettorCount <= 0 {
		cfg.Demo.BettorCount = 6
	}
	if cfg.Demo.BetsPerRound <= 0 {
		cfg.Demo.BetsPerRound = 8
	}
	if cfg.Demo.MinStake <= 0 {
		cfg.Demo.MinStake = 10
	}
	if cfg.Demo.MaxStake <= 0 {
		cfg.Demo.MaxStake = 500
	}
	if cfg.Demo.PayoutRatio <= 0 {
		cfg.Demo.PayoutRatio = 1.9
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "roundbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Round.LockBeforeSeconds >= c.Round.DurationSeconds {
		return fmt.Errorf("round.lock_before_seconds (%d) must be below duration_seconds (%d)",
			c.Round.LockBeforeSeconds, c.Round.DurationSeconds)
	}
	if c.Decision.AcceptableLoss > 0 {
		return fmt.Errorf("decision.acceptable_loss must be <= 0, got %v", c.Decision.AcceptableLoss)
	}
	if c.Manipulator.MinTrade > c.Manipulator.MaxTrade {
		return fmt.Errorf("manipulator.min_trade (%v) above max_trade (%v)", c.Manipulator.MinTrade, c.Manipulator.MaxTrade)
	}
	if c.Demo.MinStake > c.Demo.MaxStake {
		return fmt.Errorf("demo.min_stake (%v) above max_stake (%v)", c.Demo.MinStake, c.Demo.MaxStake)
	}
	if c.OnChain() && c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain.rpc_url is set but CHAIN_PRIVATE_KEY is empty")
	}
	return nil
}
