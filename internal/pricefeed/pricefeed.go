package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"minter/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultPath locates the price in a Coinbase spot price document.
const DefaultPath = "data.amount"

var ErrInvalidRate = errors.New("pricefeed: invalid rate")

// HTTPFeed reads the USD price of one unit of the chain's native currency.
type HTTPFeed struct {
	url    string
	path   string
	client *http.Client
}

func NewHTTPFeed(url, path string) *HTTPFeed {
	if path == "" {
		path = DefaultPath
	}
	return &HTTPFeed{
		url:    url,
		path:   path,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFeed) NativeUSDRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("pricefeed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricefeed: read body: %w", err)
	}

	value := gjson.GetBytes(body, f.path)
	if !value.Exists() {
		return decimal.Zero, fmt.Errorf("%w: %q missing", ErrInvalidRate, f.path)
	}

	rate, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}

	logger.Debug("pricefeed: native rate", zap.String("usd", rate.String()))
	return rate, nil
}
