package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// HTTPIndexProvider fetches the broad-market index's daily price
// series from a secondary market-data provider's REST endpoint. It
// shares the retry policy used for broker REST calls since it is
// subject to the same transient-failure profile.
type HTTPIndexProvider struct {
	baseURL string
	symbol  string
	http    *retryablehttp.Client
}

// NewHTTPIndexProvider builds a provider against baseURL for the given
// broad-index symbol (e.g. the primary exchange's benchmark index).
func NewHTTPIndexProvider(baseURL, symbol string) *HTTPIndexProvider {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &HTTPIndexProvider{baseURL: baseURL, symbol: symbol, http: rc}
}

// IndexBars implements IndexProvider.
func (p *HTTPIndexProvider) IndexBars(ctx context.Context, days int) ([]domain.Bar, error) {
	url := fmt.Sprintf("%s/index/%s/history?days=%d", p.baseURL, p.symbol, days)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index series: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		Bars []struct {
			Date  string  `json:"date"`
			Close float64 `json:"close"`
		} `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode index series: %w", err)
	}

	bars := make([]domain.Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		ts, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			continue
		}
		bars = append(bars, domain.Bar{Timestamp: ts, Close: b.Close})
	}
	return bars, nil
}
