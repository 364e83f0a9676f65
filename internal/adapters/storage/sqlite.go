package storage

// sqlite.go: persistencia de rondas, apuestas y estado del house.
//
// Tablas:
//   rounds           : historial de rondas; `active` = 1 solo en la ronda no terminal
//   bets             : ledger append-only; settled nunca vuelve a 0
//   profit_analyses  : un análisis vivo por ronda abierta (UPSERT)
//   user_reputations : una fila por bettor
//   daily_targets    : una fila por día UTC
//   price_ticks      : cada escritura del oráculo
//   synthetic_trades : auditoría de los pasos del manipulador

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
    id            TEXT PRIMARY KEY,
    start_at      DATETIME NOT NULL,
    lock_at       DATETIME NOT NULL,
    end_at        DATETIME NOT NULL,
    start_price   TEXT NOT NULL,
    current_price TEXT NOT NULL,
    final_price   TEXT,
    status        TEXT NOT NULL DEFAULT 'BETTING',
    outcome       TEXT NOT NULL DEFAULT '',
    active        INTEGER UNIQUE,          -- 1 while non-terminal, NULL once completed
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status);
CREATE INDEX IF NOT EXISTS idx_rounds_start  ON rounds(start_at DESC);

CREATE TABLE IF NOT EXISTS bets (
    id              TEXT PRIMARY KEY,
    round_id        TEXT NOT NULL,
    bettor          TEXT NOT NULL,
    direction       TEXT NOT NULL,      -- UP / DOWN
    stake           TEXT NOT NULL,
    entry_price     TEXT NOT NULL,
    payout_ratio    TEXT NOT NULL,
    settled         INTEGER NOT NULL DEFAULT 0,
    result          TEXT NOT NULL DEFAULT '',
    payout_amount   TEXT NOT NULL DEFAULT '0',
    contract_bet_id TEXT NOT NULL DEFAULT '',
    tx_hash         TEXT NOT NULL DEFAULT '',
    payout_status   TEXT NOT NULL DEFAULT '',
    payout_error    TEXT NOT NULL DEFAULT '',
    placed_at       DATETIME NOT NULL,
    settled_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_bets_round   ON bets(round_id);
CREATE INDEX IF NOT EXISTS idx_bets_bettor  ON bets(bettor);
CREATE INDEX IF NOT EXISTS idx_bets_payout  ON bets(payout_status);

CREATE TABLE IF NOT EXISTS profit_analyses (
    round_id        TEXT PRIMARY KEY,
    total_up        TEXT NOT NULL,
    total_down      TEXT NOT NULL,
    up_win_profit   TEXT NOT NULL,
    down_win_profit TEXT NOT NULL,
    recommended     TEXT NOT NULL,
    bet_count       INTEGER NOT NULL DEFAULT 0,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_reputations (
    address            TEXT PRIMARY KEY,
    consecutive_wins   INTEGER NOT NULL DEFAULT 0,
    consecutive_losses INTEGER NOT NULL DEFAULT 0,
    blacklisted        INTEGER NOT NULL DEFAULT 0,
    blacklisted_at     DATETIME,
    whitelisted        INTEGER NOT NULL DEFAULT 0,
    whitelisted_at     DATETIME,
    cooldown_until     DATETIME,
    updated_at         DATETIME NOT NULL,
    CHECK (NOT (blacklisted = 1 AND whitelisted = 1))
);

CREATE TABLE IF NOT EXISTS daily_targets (
    date             DATE PRIMARY KEY,
    starting_balance TEXT NOT NULL,
    current_balance  TEXT NOT NULL,
    target_amount    TEXT NOT NULL,
    achieved         INTEGER NOT NULL DEFAULT 0,
    rounds_played    INTEGER NOT NULL DEFAULT 0,
    house_wins       INTEGER NOT NULL DEFAULT 0,
    house_losses     INTEGER NOT NULL DEFAULT 0,
    total_volume     TEXT NOT NULL DEFAULT '0',
    total_payout     TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS price_ticks (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    price     TEXT NOT NULL,
    source    TEXT NOT NULL,
    reason    TEXT NOT NULL DEFAULT '',
    timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS synthetic_trades (
    id         TEXT PRIMARY KEY,
    round_id   TEXT NOT NULL,
    wallet     TEXT NOT NULL,
    side       TEXT NOT NULL,
    price      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    tx_hash    TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_round ON synthetic_trades(round_id);
`

const retentionPriceTicks = 7 * 24 * time.Hour // price_ticks: 7 días

// SQLiteStorage implementa todos los stores de ports usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer; además mantiene viva la DB :memory:
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina ticks de precio antiguos; el resto es historial permanente.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionPriceTicks)
	s.db.ExecContext(ctx, `DELETE FROM price_ticks WHERE timestamp < ?`, cutoff)
}

// --- helpers internos ---

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime acepta tanto RFC3339 como el formato que usa el driver al serializar time.Time.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
