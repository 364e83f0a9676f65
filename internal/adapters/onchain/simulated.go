package onchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Simulated es un PayoutGateway en memoria para demo y para correr sin RPC.
// Lleva el balance de la tesorería y el profit diario como lo haría el contrato.
type Simulated struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	target      decimal.Decimal
	dailyProfit decimal.Decimal
	day         time.Time
	nonce       uint64
	bets        map[string]*simBet
	now         func() time.Time
}

// NewSimulated crea la tesorería simulada con el balance y objetivo diario dados.
func NewSimulated(balance, dailyTarget decimal.Decimal) *Simulated {
	return &Simulated{
		balance:     balance,
		target:      dailyTarget,
		dailyProfit: decimal.Zero,
		day:         domain.Day(time.Now()),
		bets:        make(map[string]*simBet),
		now:         time.Now,
	}
}

// simBet es la vista que el contrato tiene de una apuesta.
type simBet struct {
	stake    decimal.Decimal
	ratio    decimal.Decimal
	resolved bool
}

// PlaceBet registra una apuesta como lo haría el contrato al recibir el stake.
func (s *Simulated) PlaceBet(contractBetID string, stake, ratio decimal.Decimal) error {
	if _, ok := parseBetID(contractBetID); !ok {
		return fmt.Errorf("onchain.Simulated.PlaceBet: invalid bet id %q", contractBetID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.bets[contractBetID]; dup {
		return fmt.Errorf("onchain.Simulated.PlaceBet: bet %s already exists", contractBetID)
	}
	s.bets[contractBetID] = &simBet{stake: stake, ratio: ratio}
	s.balance = s.balance.Add(stake)
	return nil
}

// ResolveBet paga al apostador desde la tesorería. Una apuesta ya resuelta o
// desconocida se rechaza como lo haría el contrato.
func (s *Simulated) ResolveBet(_ context.Context, contractBetID string, result domain.BetResult) (domain.PayoutReceipt, error) {
	if _, err := resultCode(result); err != nil {
		return domain.PayoutReceipt{}, fmt.Errorf("onchain.Simulated.ResolveBet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[contractBetID]
	if !ok {
		return domain.PayoutReceipt{}, fmt.Errorf("onchain.Simulated.ResolveBet: unknown bet %q", contractBetID)
	}
	if b.resolved {
		return domain.PayoutReceipt{}, fmt.Errorf("onchain.Simulated.ResolveBet: bet %s already resolved", contractBetID)
	}

	payout := decimal.Zero
	switch result {
	case domain.ResultWin:
		payout = b.stake.Mul(b.ratio)
	case domain.ResultDraw:
		payout = b.stake
	}
	if s.balance.LessThan(payout) {
		return domain.PayoutReceipt{}, fmt.Errorf("onchain.Simulated.ResolveBet: %w", domain.ErrInsufficientTreasury)
	}
	s.balance = s.balance.Sub(payout)
	b.resolved = true

	tx := s.txHash("resolve", contractBetID)
	slog.Debug("simulated: bet resolved",
		"contract_bet", contractBetID, "result", result.String(), "payout", payout.String(), "tx", tx)
	return domain.PayoutReceipt{
		ContractBetID: contractBetID,
		TxHash:        tx,
		BlockNumber:   s.nonce,
		GasUsed:       resolveGasLimit,
		ConfirmedAt:   s.now().UTC(),
	}, nil
}

// ManualPayout transfiere amount a recipient desde la tesorería.
func (s *Simulated) ManualPayout(_ context.Context, amount decimal.Decimal, recipient string) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("onchain.Simulated.ManualPayout: amount must be positive, got %s", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance.LessThan(amount) {
		return "", fmt.Errorf("onchain.Simulated.ManualPayout: %w", domain.ErrInsufficientTreasury)
	}
	s.balance = s.balance.Sub(amount)
	return s.txHash("payout", recipient), nil
}

// RecordProfit ajusta el profit diario agregado. Cambiar de día UTC lo reinicia.
func (s *Simulated) RecordProfit(_ context.Context, delta decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay()
	s.dailyProfit = s.dailyProfit.Add(delta)
	return s.txHash("profit", delta.String()), nil
}

// GetTreasuryStats devuelve el snapshot actual.
func (s *Simulated) GetTreasuryStats(_ context.Context) (domain.TreasuryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay()
	return domain.TreasuryStats{
		Balance:            s.balance,
		DailyProfitTarget:  s.target,
		CurrentDailyProfit: s.dailyProfit,
	}, nil
}

func (s *Simulated) rollDay() {
	if d := domain.Day(s.now()); d.After(s.day) {
		s.day = d
		s.dailyProfit = decimal.Zero
	}
}

// txHash genera un hash determinista por operación. Llamar con mu tomado.
func (s *Simulated) txHash(kind, ref string) string {
	s.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], s.nonce)
	return crypto.Keccak256Hash([]byte(kind), []byte(ref), n[:]).Hex()
}
