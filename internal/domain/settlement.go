package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutReceipt is the gateway's confirmation of an on-chain bet resolution.
type PayoutReceipt struct {
	ContractBetID string
	TxHash        string
	BlockNumber   uint64
	GasUsed       uint64
	ConfirmedAt   time.Time
}

// TreasuryStats is the on-chain treasury snapshot reported by the gateway.
type TreasuryStats struct {
	Balance            decimal.Decimal
	DailyProfitTarget  decimal.Decimal
	CurrentDailyProfit decimal.Decimal
}

// TargetMet reports whether today's on-chain profit reached the target.
func (t TreasuryStats) TargetMet() bool {
	return t.DailyProfitTarget.IsPositive() && t.CurrentDailyProfit.GreaterThanOrEqual(t.DailyProfitTarget)
}

// WithinLossCap reports whether adding profit keeps the daily profit at or above
// −capPct × balance.
func (t TreasuryStats) WithinLossCap(profit, capPct decimal.Decimal) bool {
	floor := t.Balance.Mul(capPct).Neg()
	return t.CurrentDailyProfit.Add(profit).GreaterThanOrEqual(floor)
}

// SettlementReport is the realized result of settling a round's bets.
// Totals only count bets that actually settled.
type SettlementReport struct {
	RoundID        string
	FinalPrice     decimal.Decimal
	Settled        []Bet
	Deferred       []Bet
	Wins           int
	Losses         int
	Draws          int
	TotalVolume    decimal.Decimal
	TotalPayout    decimal.Decimal
	RealizedProfit decimal.Decimal
}

// NewSettlementReport returns a report with zeroed totals.
func NewSettlementReport(roundID string, finalPrice decimal.Decimal) SettlementReport {
	return SettlementReport{
		RoundID:        roundID,
		FinalPrice:     finalPrice,
		TotalVolume:    decimal.Zero,
		TotalPayout:    decimal.Zero,
		RealizedProfit: decimal.Zero,
	}
}

// Add folds a settled bet into the totals.
func (r *SettlementReport) Add(b Bet) {
	r.Settled = append(r.Settled, b)
	r.TotalVolume = r.TotalVolume.Add(b.Stake)
	r.TotalPayout = r.TotalPayout.Add(b.PayoutAmount)
	r.RealizedProfit = r.TotalVolume.Sub(r.TotalPayout)
	switch b.Result {
	case ResultWin:
		r.Wins++
	case ResultLose:
		r.Losses++
	case ResultDraw:
		r.Draws++
	}
}

// RoundEvent is broadcast when a round enters settlement.
type RoundEvent struct {
	RoundID   string
	Status    RoundStatus
	StartAt   time.Time
	EndAt     time.Time
	Price     decimal.Decimal
	Timestamp time.Time
}

// RoundSnapshot is broadcast once a round has completed.
type RoundSnapshot struct {
	Round      Round
	FinalPrice decimal.Decimal
	Decision   Decision
	Analysis   ProfitAnalysis
	Report     SettlementReport
	Timestamp  time.Time
}
