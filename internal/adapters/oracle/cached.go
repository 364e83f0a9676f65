package oracle

// cached.go: oráculo de precio con caché TTL corta.
//
// Las lecturas pueden estar obsoletas dentro del TTL; cualquier escritura
// invalida la caché en el acto. Las escrituras son valores absolutos, así que
// varios actores (drift, manipulador, feed) no necesitan más coordinación.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/alejandrodnm/roundbot/internal/ports"
	"github.com/shopspring/decimal"
)

const defaultTTL = 3 * time.Second

// Cached implements ports.PriceOracle over a durable PriceStore.
type Cached struct {
	store ports.PriceStore
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	price     decimal.Decimal
	fetchedAt time.Time
	valid     bool
}

// NewCached creates an oracle. A zero ttl uses 3s.
func NewCached(store ports.PriceStore, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cached{store: store, ttl: ttl, now: time.Now}
}

// Seed writes initial if the store has no price yet.
func (c *Cached) Seed(ctx context.Context, initial decimal.Decimal) error {
	_, err := c.store.LatestPrice(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("oracle.Seed: %w", err)
	}
	return c.SetPrice(ctx, initial, "seed", "initial price")
}

// GetPrice returns the cached price or reloads it from the store once stale.
func (c *Cached) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	c.mu.RLock()
	price, at, ok := c.price, c.fetchedAt, c.valid
	c.mu.RUnlock()

	if ok && c.now().Sub(at) < c.ttl {
		return price, nil
	}

	tick, err := c.store.LatestPrice(ctx)
	if err != nil {
		if ok {
			slog.Warn("oracle: reload failed, serving stale price", "err", err, "age", c.now().Sub(at))
			return price, nil
		}
		return decimal.Zero, fmt.Errorf("oracle.GetPrice: %w", err)
	}

	c.mu.Lock()
	c.price = tick.Price
	c.fetchedAt = c.now()
	c.valid = true
	c.mu.Unlock()
	return tick.Price, nil
}

// SetPrice persists an absolute price and invalidates the cache.
func (c *Cached) SetPrice(ctx context.Context, price decimal.Decimal, source, reason string) error {
	if !price.IsPositive() {
		return fmt.Errorf("oracle.SetPrice %s: %w", price, domain.ErrInvalidPrice)
	}

	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()

	if err := c.store.SavePriceTick(ctx, domain.PriceTick{
		Price:     price,
		Source:    source,
		Reason:    reason,
		Timestamp: c.now().UTC(),
	}); err != nil {
		return fmt.Errorf("oracle.SetPrice: %w", err)
	}

	// Write-through: un lector concurrente pudo recargar el valor previo entre
	// la invalidación y el INSERT.
	c.mu.Lock()
	c.price = price
	c.fetchedAt = c.now()
	c.valid = true
	c.mu.Unlock()

	slog.Debug("oracle: price set", "price", price.String(), "source", source, "reason", reason)
	return nil
}
