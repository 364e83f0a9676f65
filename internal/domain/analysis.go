package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitAnalysis aggregates a round's bets into per-direction totals and the
// theoretical house profit of each outcome.
type ProfitAnalysis struct {
	RoundID       string
	TotalUp       decimal.Decimal
	TotalDown     decimal.Decimal
	UpWinProfit   decimal.Decimal
	DownWinProfit decimal.Decimal
	Recommended   Direction
	BetCount      int
	UpdatedAt     time.Time
}

// EmptyAnalysis is the seed analysis for a freshly opened round.
func EmptyAnalysis(roundID string, now time.Time) ProfitAnalysis {
	return ProfitAnalysis{
		RoundID:       roundID,
		TotalUp:       decimal.Zero,
		TotalDown:     decimal.Zero,
		UpWinProfit:   decimal.Zero,
		DownWinProfit: decimal.Zero,
		Recommended:   DirectionUp,
		UpdatedAt:     now,
	}
}

// Analyze computes the analysis for bets.
//
// With profitRatio = payoutRatio − 1:
//
//	upWinProfit   = totalDown − totalUp   × profitRatio
//	downWinProfit = totalUp   − totalDown × profitRatio
//
// Each bet contributes its own ratio, so mixed-ratio rounds stay exact.
// Ties recommend Up.
func Analyze(roundID string, bets []Bet, now time.Time) ProfitAnalysis {
	a := EmptyAnalysis(roundID, now)
	upCost, downCost := decimal.Zero, decimal.Zero

	for _, b := range bets {
		switch b.Direction {
		case DirectionUp:
			a.TotalUp = a.TotalUp.Add(b.Stake)
			upCost = upCost.Add(b.WinningCost())
		case DirectionDown:
			a.TotalDown = a.TotalDown.Add(b.Stake)
			downCost = downCost.Add(b.WinningCost())
		default:
			continue
		}
		a.BetCount++
	}

	a.UpWinProfit = a.TotalDown.Sub(upCost)
	a.DownWinProfit = a.TotalUp.Sub(downCost)
	a.Recommended = DirectionUp
	if a.DownWinProfit.GreaterThan(a.UpWinProfit) {
		a.Recommended = DirectionDown
	}
	return a
}

// ProfitIf returns the theoretical house profit when d wins.
func (a ProfitAnalysis) ProfitIf(d Direction) decimal.Decimal {
	if d == DirectionDown {
		return a.DownWinProfit
	}
	return a.UpWinProfit
}
