package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/utils"
)

func newTestPriceClient(baseURL string) *PriceClient {
	return NewPriceClient(&config.EnrichmentConfig{
		PriceAPIURL: baseURL,
		AssetID:     "ethereum",
		Currency:    "USD",
		HTTPTimeout: 5,
	})
}

func TestPriceClient_CurrentPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2345.67}}`))
	}))
	defer server.Close()

	client := newTestPriceClient(server.URL)
	price, err := client.CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(2345.67)))
}

func TestPriceClient_HistoricalPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ethereum/history", r.URL.Path)
		assert.Equal(t, "15-03-2026", r.URL.Query().Get("date"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":1999.5}}}`))
	}))
	defer server.Close()

	client := newTestPriceClient(server.URL)
	day := time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC)
	price, err := client.HistoricalPrice(context.Background(), day)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(1999.5)))
}

func TestPriceClient_MissingCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"eur":100}}`))
	}))
	defer server.Close()

	client := newTestPriceClient(server.URL)
	_, err := client.CurrentPrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing ethereum/usd")
}

func TestPriceClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestPriceClient(server.URL)
	_, err := client.CurrentPrice(context.Background())
	require.Error(t, err)

	rle, ok := utils.AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, rle.RetryAfter)
}

func TestPriceClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestPriceClient(server.URL)
	_, err := client.CurrentPrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("-3"))
	// HTTP-date form degrades to no hint.
	assert.Zero(t, parseRetryAfter("Tue, 03 Mar 2026 10:00:00 GMT"))
}

func TestPriceCacheKey(t *testing.T) {
	assert.Equal(t, "current", PriceCacheKey(nil))

	at := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-15", PriceCacheKey(&at))

	// Distinct days never share a key.
	other := at.AddDate(0, 0, 1)
	assert.NotEqual(t, PriceCacheKey(&at), PriceCacheKey(&other))
}
