package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyTarget is the cumulative house-profit goal for one UTC calendar day.
type DailyTarget struct {
	Date            time.Time // truncated to the UTC day
	StartingBalance decimal.Decimal
	CurrentBalance  decimal.Decimal
	TargetAmount    decimal.Decimal
	Achieved        bool
	RoundsPlayed    int
	HouseWins       int // rounds with positive realized profit
	HouseLosses     int // rounds with negative realized profit
	TotalVolume     decimal.Decimal
	TotalPayout     decimal.Decimal
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDailyTarget opens the record for the day containing now.
func NewDailyTarget(now time.Time, startingBalance, target decimal.Decimal) DailyTarget {
	return DailyTarget{
		Date:            Day(now),
		StartingBalance: startingBalance,
		CurrentBalance:  startingBalance,
		TargetAmount:    target,
		TotalVolume:     decimal.Zero,
		TotalPayout:     decimal.Zero,
	}
}

// Profit is the day's realized profit so far.
func (d DailyTarget) Profit() decimal.Decimal {
	return d.CurrentBalance.Sub(d.StartingBalance)
}

// Record folds one round's realized settlement into the day.
func (d *DailyTarget) Record(r SettlementReport) {
	d.RoundsPlayed++
	d.TotalVolume = d.TotalVolume.Add(r.TotalVolume)
	d.TotalPayout = d.TotalPayout.Add(r.TotalPayout)
	d.CurrentBalance = d.CurrentBalance.Add(r.RealizedProfit)

	switch r.RealizedProfit.Sign() {
	case 1:
		d.HouseWins++
	case -1:
		d.HouseLosses++
	}

	if d.TargetAmount.IsPositive() && d.Profit().GreaterThanOrEqual(d.TargetAmount) {
		d.Achieved = true
	}
}
