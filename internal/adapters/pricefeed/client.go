package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://api.binance.com"

	// /api/v3/ticker/price pesa 2 sobre 6000/min; 5/s deja margen de sobra.
	tickerRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client consulta el precio spot de un exchange con rate limiting y retries.
type Client struct {
	http    *http.Client
	base    string
	scale   decimal.Decimal
	limiter *rate.Limiter
	wait    func(ctx context.Context, attempt int)
}

// NewClient crea un Client. Si base está vacío usa el endpoint de producción.
// scale multiplica el precio recibido para llevarlo a la escala del oracle
// (0 o negativo equivale a 1).
func NewClient(base string, scale decimal.Decimal) *Client {
	if base == "" {
		base = defaultBase
	}
	if !scale.IsPositive() {
		scale = decimal.NewFromInt(1)
	}
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		scale:   scale,
		limiter: rate.NewLimiter(tickerRatePerSec, 2),
	}
	c.wait = c.sleep
	return c
}

type tickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// FetchPrice implementa ports.ReferenceFeed.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := c.base + "/api/v3/ticker/price?symbol=" + url.QueryEscape(symbol)

	var resp tickerResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed.FetchPrice %s: %w", symbol, err)
	}
	if !resp.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("pricefeed.FetchPrice %s: non-positive price %s", symbol, resp.Price)
	}
	return resp.Price.Mul(c.scale), nil
}

// get hace un GET con rate limiting y backoff exponencial.
func (c *Client) get(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.wait(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			resp.Body.Close()
			slog.Warn("pricefeed: rate limited by exchange", "status", resp.StatusCode, "attempt", attempt+1)
			c.wait(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.wait(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
