package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, scale string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, decimal.RequireFromString(scale))
	c.wait = func(context.Context, int) {}
	return c
}

func TestFetchPrice_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2012.34000000"}`))
	}, "0.001")

	p, err := c.FetchPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("2.01234")), p.String())
}

func TestFetchPrice_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.5"}`))
	}, "1")

	p, err := c.FetchPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, p.Equal(decimal.RequireFromString("65000.5")))
}

func TestFetchPrice_ServerErrorExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, "1")

	_, err := c.FetchPrice(context.Background(), "ETHUSDT")
	assert.Error(t, err)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestFetchPrice_ClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}, "1")

	_, err := c.FetchPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPrice_RejectsZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"0"}`))
	}, "1")

	_, err := c.FetchPrice(context.Background(), "ETHUSDT")
	assert.Error(t, err)
}

func TestFetchPrice_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"1"}`))
	}, "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchPrice(ctx, "ETHUSDT")
	assert.Error(t, err)
}
