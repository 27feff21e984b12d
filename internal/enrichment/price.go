package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mosas2000/sprintfund/internal/config"
)

// PriceClient fetches the asset's reference-currency price, current or
// historical at day granularity.
type PriceClient struct {
	HTTPClient *http.Client
	baseURL    string
	assetID    string
	currency   string
}

// NewPriceClient creates a price API client.
func NewPriceClient(cfg *config.EnrichmentConfig) *PriceClient {
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PriceClient{
		HTTPClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.PriceAPIURL, "/"),
		assetID:    cfg.AssetID,
		currency:   strings.ToLower(cfg.Currency),
	}
}

// CurrentPrice returns the asset's latest price.
func (c *PriceClient) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(c.assetID), url.QueryEscape(c.currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to create price request: %w", err)
	}

	var response map[string]map[string]float64
	if err := doJSON(c.HTTPClient, req, "price API", &response); err != nil {
		return decimal.Decimal{}, err
	}

	price, ok := response[c.assetID][c.currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price API response missing %s/%s", c.assetID, c.currency)
	}
	return decimal.NewFromFloat(price), nil
}

// HistoricalPrice returns the asset's price on a given day.
func (c *PriceClient) HistoricalPrice(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s",
		c.baseURL, url.PathEscape(c.assetID), day.UTC().Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to create historical price request: %w", err)
	}

	var response struct {
		MarketData struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := doJSON(c.HTTPClient, req, "price API", &response); err != nil {
		return decimal.Decimal{}, err
	}

	price, ok := response.MarketData.CurrentPrice[c.currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("historical price response missing currency %s", c.currency)
	}
	return decimal.NewFromFloat(price), nil
}

// PriceCacheKey buckets historical lookups to the day. Current and
// historical prices never share a key, so their staleness is independent.
func PriceCacheKey(at *time.Time) string {
	if at == nil {
		return "current"
	}
	return at.UTC().Format("2006-01-02")
}
