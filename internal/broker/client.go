package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

const (
	sessionLifetime  = 8 * time.Hour
	maxQuoteBatch    = 250
	readTimeout      = 15 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	ClientID   string
	PIN        string
	TOTPSeed   string
}

// Client is the REST implementation of Broker. It wraps every call in
// a circuit breaker so Data Ingestion degrades to "skip the batch"
// instead of hammering a broker that is already failing, and retries
// transient (5xx/timeout) failures automatically via retryablehttp.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger

	mu           sync.Mutex
	sessionToken string
	refreshToken string
	feedToken    string
	loginAt      time.Time
}

// NewClient builds a Client. The underlying retryablehttp client
// performs up to 3 bounded retries on transient errors; the circuit
// breaker opens after 5 consecutive failures and half-opens after 30s.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = readTimeout
	rc.Logger = nil // zerolog is the sink of record; silence retryablehttp's own logging

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg:  cfg,
		http: rc,
		cb:   cb,
		log:  log.With().Str("component", "broker").Logger(),
	}
}

// Login performs session login with client-id, PIN and a freshly
// derived TOTP, and stores the returned session/refresh/feed tokens.
// Sessions expire after 8 hours (§6); callers re-login via
// ensureSession before every request.
func (c *Client) Login(ctx context.Context) error {
	code, err := GenerateTOTP(c.cfg.TOTPSeed, time.Now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}

	req := map[string]string{
		"client_id": c.cfg.ClientID,
		"pin":       c.cfg.PIN,
		"totp":      code,
	}

	var resp struct {
		SessionToken string `json:"session_token"`
		RefreshToken string `json:"refresh_token"`
		FeedToken    string `json:"feed_token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session/login", req, &resp); err != nil {
		return fmt.Errorf("session login: %w", err)
	}

	c.mu.Lock()
	c.sessionToken = resp.SessionToken
	c.refreshToken = resp.RefreshToken
	c.feedToken = resp.FeedToken
	c.loginAt = time.Now()
	c.mu.Unlock()

	return nil
}

// ensureSession logs in inline before a request when there is no
// session token yet or the current one is 8 hours old or more. It
// works only from that local clock: a request the broker rejects as
// unauthenticated is returned as an error, and is neither re-logged
// nor retried.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	expired := c.sessionToken == "" || time.Since(c.loginAt) >= sessionLifetime
	c.mu.Unlock()

	if expired {
		return c.Login(ctx)
	}
	return nil
}

// BatchQuote fetches last price and total traded value for up to 250
// tokens on one exchange. Callers (Data Ingestion) are responsible for
// splitting larger symbol sets into ≤250-token batches.
func (c *Client) BatchQuote(ctx context.Context, exchange domain.Exchange, tokens []string) (map[string]Quote, error) {
	if len(tokens) > maxQuoteBatch {
		return nil, fmt.Errorf("batch of %d tokens exceeds max %d", len(tokens), maxQuoteBatch)
	}
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	req := map[string]interface{}{
		"exchange": exchange,
		"tokens":   tokens,
	}
	var resp struct {
		Quotes []Quote `json:"quotes"`
	}
	if err := c.callWithBreaker(ctx, http.MethodPost, "/market/quote/batch", req, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]Quote, len(resp.Quotes))
	for _, q := range resp.Quotes {
		out[q.Token] = q
	}
	return out, nil
}

// HistoricalOHLCV fetches daily candles for one token between from and to.
func (c *Client) HistoricalOHLCV(ctx context.Context, exchange domain.Exchange, token string, from, to time.Time) ([]domain.Bar, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	req := map[string]interface{}{
		"exchange": exchange,
		"token":    token,
		"interval": "ONE_DAY",
		"from":     from.Unix(),
		"to":       to.Unix(),
	}
	var resp struct {
		Candles [][]float64 `json:"candles"` // [ts, o, h, l, c, v]
	}
	if err := c.callWithBreaker(ctx, http.MethodPost, "/market/history", req, &resp); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(resp.Candles))
	for _, candle := range resp.Candles {
		if len(candle) < 6 {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.Unix(int64(candle[0]), 0).UTC(),
			Open:      candle[1],
			High:      candle[2],
			Low:       candle[3],
			Close:     candle[4],
			Volume:    int64(candle[5]),
		})
	}
	return bars, nil
}

// PlaceOrder submits a LIMIT order. The caller is responsible for
// ensuring OrderType never reaches here as MARKET (§4.6 rule 10,
// §4.8, §7 hard config violation).
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (string, error) {
	if err := c.ensureSession(ctx); err != nil {
		return "", err
	}

	req := map[string]interface{}{
		"variety":         OrderVarietyNormal,
		"tradingsymbol":   order.TradingSymbol,
		"symboltoken":     order.SymbolToken,
		"transactiontype": order.TransactionType,
		"exchange":        order.Exchange,
		"ordertype":       OrderTypeLimit,
		"producttype":     ProductTypeDelivery,
		"duration":        OrderDurationDay,
		"price":           order.Price,
		"quantity":        strconv.FormatInt(order.Quantity, 10),
	}
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := c.callWithBreaker(ctx, http.MethodPost, "/order/place", req, &resp); err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

// Positions returns the broker's current intraday position list.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.callWithBreaker(ctx, http.MethodGet, "/portfolio/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// Holdings returns the broker's delivery holdings, used to
// mark-to-market the equity side of the portfolio.
func (c *Client) Holdings(ctx context.Context) ([]Holding, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	var resp struct {
		Holdings []Holding `json:"holdings"`
	}
	if err := c.callWithBreaker(ctx, http.MethodGet, "/portfolio/holdings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Holdings, nil
}

// AvailableCash returns the risk-management (cash) endpoint's
// available-cash figure used for position sizing.
func (c *Client) AvailableCash(ctx context.Context) (float64, error) {
	if err := c.ensureSession(ctx); err != nil {
		return 0, err
	}
	var resp struct {
		AvailableCash float64 `json:"available_cash"`
	}
	if err := c.callWithBreaker(ctx, http.MethodGet, "/portfolio/margin", nil, &resp); err != nil {
		return 0, err
	}
	return resp.AvailableCash, nil
}

// VIX returns the broker's current volatility-index reading, used by
// the macro regime derivation.
func (c *Client) VIX(ctx context.Context) (float64, error) {
	if err := c.ensureSession(ctx); err != nil {
		return 0, err
	}
	var resp struct {
		VIX float64 `json:"vix"`
	}
	if err := c.callWithBreaker(ctx, http.MethodGet, "/market/vix", nil, &resp); err != nil {
		return 0, err
	}
	return resp.VIX, nil
}

// callWithBreaker executes doJSON through the circuit breaker so a
// broker outage trips after consecutive failures instead of every
// caller retrying independently.
func (c *Client) callWithBreaker(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.doJSON(ctx, method, path, body, out)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("broker call failed")
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.sessionToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("broker returned status %d for %s: %s", resp.StatusCode, path, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response %s: %w", path, err)
	}
	return nil
}
