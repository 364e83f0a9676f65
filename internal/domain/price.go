package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is one absolute write to the reference price.
type PriceTick struct {
	ID        int64
	Price     decimal.Decimal
	Source    string // "manipulator", "drift", "feed", ...
	Reason    string
	Timestamp time.Time
}

// SyntheticTrade is the audit trail of a single manipulation step.
type SyntheticTrade struct {
	ID        string
	RoundID   string
	Wallet    string
	Side      Direction
	Price     decimal.Decimal
	Amount    decimal.Decimal
	TxHash    string
	CreatedAt time.Time
}

// Manipulation summarizes how the price was driven toward a target outcome.
type Manipulation struct {
	Target      Direction
	FromPrice   decimal.Decimal
	TargetPrice decimal.Decimal
	Steps       int
	Skipped     bool // gap was negligible, no writes performed
}
