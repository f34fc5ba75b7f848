package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	feedDialTimeout      = 30 * time.Second
	feedWriteWait        = 10 * time.Second
	feedBaseReconnect    = 5 * time.Second
	feedMaxReconnect     = 5 * time.Minute
	feedCacheStaleAfter  = 5 * time.Minute
)

// Tick is one live last-traded-price update for a symbol.
type Tick struct {
	Symbol    string
	LastPrice float64
	UpdatedAt time.Time
}

// FeedClient streams live LTP ticks from the broker's feed-token
// websocket and keeps a thread-safe last-tick cache, so the Position
// Monitor can read a recent price without an extra REST round trip.
// Reconnects automatically with capped exponential backoff; the one
// forced-HTTP/1.1 transport detail exists because some broker edges
// negotiate HTTP/2 via ALPN, which breaks the websocket upgrade.
type FeedClient struct {
	url        string
	feedToken  string
	httpClient *http.Client
	log        zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	cancelFunc context.CancelFunc
	stopCh     chan struct{}
	stopped    bool

	cacheMu sync.RWMutex
	cache   map[string]Tick
}

func http1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewFeedClient builds a FeedClient for url, authenticated with feedToken.
func NewFeedClient(url, feedToken string, log zerolog.Logger) *FeedClient {
	return &FeedClient{
		url:        url,
		feedToken:  feedToken,
		httpClient: http1Client(),
		log:        log.With().Str("component", "broker-feed").Logger(),
		stopCh:     make(chan struct{}),
		cache:      make(map[string]Tick),
	}
}

// Start connects and begins the read loop; on failure it falls back
// to the background reconnect loop rather than returning an error, so
// Position Monitor can still poll REST quotes until the feed recovers.
func (f *FeedClient) Start() {
	if err := f.connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial feed connection failed, retrying in background")
		go f.reconnectLoop()
		return
	}
	go f.readLoop()
}

// Stop closes the connection and halts reconnection attempts.
func (f *FeedClient) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	close(f.stopCh)
	f.mu.Unlock()
	return f.disconnect()
}

func (f *FeedClient) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), feedDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url+"?feed_token="+f.feedToken, &websocket.DialOptions{
		HTTPClient: f.httpClient,
	})
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}

	f.conn = conn
	return nil
}

func (f *FeedClient) disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn = nil
	return err
}

func (f *FeedClient) readLoop() {
	ctx := context.Background()
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.Read(ctx)
		if err != nil {
			f.log.Warn().Err(err).Msg("feed read error")
			return
		}
		if err := f.handleMessage(message); err != nil {
			f.log.Debug().Err(err).Msg("failed to parse feed message")
		}
	}
}

func (f *FeedClient) handleMessage(message []byte) error {
	var tick struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"last_price"`
	}
	if err := json.Unmarshal(message, &tick); err != nil {
		return err
	}

	f.cacheMu.Lock()
	f.cache[tick.Symbol] = Tick{Symbol: tick.Symbol, LastPrice: tick.LastPrice, UpdatedAt: time.Now()}
	f.cacheMu.Unlock()
	return nil
}

func (f *FeedClient) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		attempt++
		delay := backoff(attempt)
		select {
		case <-time.After(delay):
		case <-f.stopCh:
			return
		}

		if err := f.connect(); err != nil {
			f.log.Warn().Err(err).Int("attempt", attempt).Msg("feed reconnect failed")
			continue
		}
		go f.readLoop()
		return
	}
}

func backoff(attempt int) time.Duration {
	delay := float64(feedBaseReconnect) * math.Pow(2, float64(attempt-1))
	if delay > float64(feedMaxReconnect) {
		delay = float64(feedMaxReconnect)
	}
	return time.Duration(delay)
}

// LastTick returns the most recently observed tick for symbol and
// whether it is fresh enough (< 5 minutes old) to trust over a REST
// quote.
func (f *FeedClient) LastTick(symbol string) (Tick, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()

	tick, ok := f.cache[symbol]
	if !ok {
		return Tick{}, false
	}
	return tick, time.Since(tick.UpdatedAt) < feedCacheStaleAfter
}
