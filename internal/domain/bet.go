package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrBetAlreadySettled is returned when a settled bet would be settled again.
var ErrBetAlreadySettled = errors.New("bet already settled")

// PayoutStatus tracks the on-chain side of a bet's settlement.
type PayoutStatus string

const (
	PayoutNone     PayoutStatus = ""
	PayoutPaid     PayoutStatus = "PAID"     // gateway confirmed the payout
	PayoutSkipped  PayoutStatus = "SKIPPED"  // losing bet, nothing to pay
	PayoutDeferred PayoutStatus = "DEFERRED" // will be processed manually
)

// Bet is a single wager on a round. The ledger is append-only.
type Bet struct {
	ID            string
	RoundID       string
	Bettor        string // wallet address
	Direction     Direction
	Stake         decimal.Decimal
	EntryPrice    decimal.Decimal // oracle price at placement, not the round start
	PayoutRatio   decimal.Decimal // e.g. 1.9
	Settled       bool
	Result        BetResult
	PayoutAmount  decimal.Decimal
	ContractBetID string // on-chain reference
	TxHash        string
	PayoutStatus  PayoutStatus
	PayoutError   string
	PlacedAt      time.Time
	SettledAt     *time.Time
}

// Outcome compares the final price with the bet's own entry price.
func (b Bet) Outcome(finalPrice decimal.Decimal) BetResult {
	switch cmp := finalPrice.Cmp(b.EntryPrice); {
	case cmp == 0:
		return ResultDraw
	case cmp > 0 && b.Direction == DirectionUp, cmp < 0 && b.Direction == DirectionDown:
		return ResultWin
	default:
		return ResultLose
	}
}

// PayoutFor returns what the house owes the bettor for result.
// Win pays stake×ratio, Draw refunds the stake, Lose pays nothing.
func (b Bet) PayoutFor(result BetResult) decimal.Decimal {
	switch result {
	case ResultWin:
		return b.Stake.Mul(b.PayoutRatio)
	case ResultDraw:
		return b.Stake
	default:
		return decimal.Zero
	}
}

// WinningCost is the house's net cost if this bet wins: stake × (ratio − 1).
func (b Bet) WinningCost() decimal.Decimal {
	return b.Stake.Mul(b.PayoutRatio.Sub(decimal.NewFromInt(1)))
}

// Settle marks the bet settled with result and payout set together.
func (b *Bet) Settle(result BetResult, payout decimal.Decimal, status PayoutStatus, txHash string, at time.Time) error {
	if b.Settled {
		return ErrBetAlreadySettled
	}
	b.Settled = true
	b.Result = result
	b.PayoutAmount = payout
	b.PayoutStatus = status
	b.TxHash = txHash
	b.PayoutError = ""
	t := at.UTC()
	b.SettledAt = &t
	return nil
}

// Defer flags a bet whose payout could not be dispatched. The bet stays unsettled.
func (b *Bet) Defer(reason string) {
	if b.Settled {
		return
	}
	b.PayoutStatus = PayoutDeferred
	b.PayoutError = reason
}

// HouseProfit is stake − payout for a settled bet.
func (b Bet) HouseProfit() decimal.Decimal {
	return b.Stake.Sub(b.PayoutAmount)
}
