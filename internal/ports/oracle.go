package ports

import (
	"context"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceOracle is the shared reference price. Writes are absolute sets.
type PriceOracle interface {
	GetPrice(ctx context.Context) (decimal.Decimal, error)
	SetPrice(ctx context.Context, price decimal.Decimal, source, reason string) error
}

// PriceStore is the durable backing of the oracle.
type PriceStore interface {
	LatestPrice(ctx context.Context) (domain.PriceTick, error)
	SavePriceTick(ctx context.Context, t domain.PriceTick) error
}

// TradeRecorder stores the manipulator's synthetic transactions.
type TradeRecorder interface {
	SaveSyntheticTrade(ctx context.Context, t domain.SyntheticTrade) error
	SyntheticTradesByRound(ctx context.Context, roundID string) ([]domain.SyntheticTrade, error)
}

// ReferenceFeed provides an external exchange price used as oracle input.
type ReferenceFeed interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
