// Package instruments owns the symbol↔broker-token map for the
// tradeable NSE/BSE equity universe (§4.1).
package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// excludedSubstrings filters out index funds, ETFs, and liquid/gilt
// vehicles by substring match on both name and symbol (§4.1).
var excludedSubstrings = []string{
	"ETF", "NIFTY", "SENSEX", "LIQUID", "GILT", "INDEX FUND", "BEES",
}

// fallbackInstruments is the built-in ~20-symbol degraded-mode list,
// installed when the remote catalog has never been loaded successfully.
var fallbackInstruments = []domain.Instrument{
	{Symbol: "RELIANCE", Exchange: domain.ExchangeNSE, Token: "2885", DisplayName: "Reliance Industries"},
	{Symbol: "TCS", Exchange: domain.ExchangeNSE, Token: "11536", DisplayName: "Tata Consultancy Services"},
	{Symbol: "HDFCBANK", Exchange: domain.ExchangeNSE, Token: "1333", DisplayName: "HDFC Bank"},
	{Symbol: "INFY", Exchange: domain.ExchangeNSE, Token: "1594", DisplayName: "Infosys"},
	{Symbol: "ICICIBANK", Exchange: domain.ExchangeNSE, Token: "4963", DisplayName: "ICICI Bank"},
	{Symbol: "HINDUNILVR", Exchange: domain.ExchangeNSE, Token: "1394", DisplayName: "Hindustan Unilever"},
	{Symbol: "SBIN", Exchange: domain.ExchangeNSE, Token: "3045", DisplayName: "State Bank of India"},
	{Symbol: "BHARTIARTL", Exchange: domain.ExchangeNSE, Token: "10604", DisplayName: "Bharti Airtel"},
	{Symbol: "ITC", Exchange: domain.ExchangeNSE, Token: "1660", DisplayName: "ITC"},
	{Symbol: "KOTAKBANK", Exchange: domain.ExchangeNSE, Token: "1922", DisplayName: "Kotak Mahindra Bank"},
	{Symbol: "LT", Exchange: domain.ExchangeNSE, Token: "11483", DisplayName: "Larsen & Toubro"},
	{Symbol: "AXISBANK", Exchange: domain.ExchangeNSE, Token: "5900", DisplayName: "Axis Bank"},
	{Symbol: "ASIANPAINT", Exchange: domain.ExchangeNSE, Token: "236", DisplayName: "Asian Paints"},
	{Symbol: "MARUTI", Exchange: domain.ExchangeNSE, Token: "10999", DisplayName: "Maruti Suzuki"},
	{Symbol: "TITAN", Exchange: domain.ExchangeNSE, Token: "3506", DisplayName: "Titan Company"},
	{Symbol: "SUNPHARMA", Exchange: domain.ExchangeNSE, Token: "3351", DisplayName: "Sun Pharmaceutical"},
	{Symbol: "ULTRACEMCO", Exchange: domain.ExchangeNSE, Token: "11532", DisplayName: "UltraTech Cement"},
	{Symbol: "NESTLEIND", Exchange: domain.ExchangeNSE, Token: "17963", DisplayName: "Nestle India"},
	{Symbol: "WIPRO", Exchange: domain.ExchangeNSE, Token: "3787", DisplayName: "Wipro"},
	{Symbol: "TATASTEEL", Exchange: domain.ExchangeNSE, Token: "3499", DisplayName: "Tata Steel"},
}

// Config controls which exchanges are active and where the remote
// catalog is fetched from.
type Config struct {
	CatalogURL              string
	IncludeSecondaryExchange bool
}

// Registry resolves symbols to broker tokens. Reloaded daily at
// midnight and once on start; swaps are atomic so readers always
// observe either the old or the new complete map, never a partial one.
type Registry struct {
	cfg    Config
	http   *http.Client
	log    zerolog.Logger

	mu        sync.RWMutex
	bySymbol  map[key]domain.Instrument
	byExchange map[domain.Exchange][]domain.Instrument
	loaded    bool
}

type key struct {
	symbol   string
	exchange domain.Exchange
}

// New builds an empty registry; call Reload to populate it.
func New(cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
		log:  log.With().Str("component", "instruments").Logger(),
	}
}

// Resolve returns the broker token for symbol on exchange, or ("", false).
func (r *Registry) Resolve(symbol string, exchange domain.Exchange) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.bySymbol[key{strings.ToUpper(symbol), exchange}]
	if !ok {
		return "", false
	}
	return inst.Token, true
}

// SymbolsOn returns every tradeable instrument on exchange.
func (r *Registry) SymbolsOn(exchange domain.Exchange) []domain.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Instrument, len(r.byExchange[exchange]))
	copy(out, r.byExchange[exchange])
	return out
}

// ActiveExchanges returns the exchanges enabled by configuration:
// always the primary (NSE), plus the secondary (BSE) when enabled.
func (r *Registry) ActiveExchanges() []domain.Exchange {
	if r.cfg.IncludeSecondaryExchange {
		return []domain.Exchange{domain.ExchangeNSE, domain.ExchangeBSE}
	}
	return []domain.Exchange{domain.ExchangeNSE}
}

type catalogEntry struct {
	Symbol         string `json:"symbol"`
	Exchange       string `json:"exchange"`
	Token          string `json:"token"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type"`
}

// Reload fetches the remote catalog JSON and installs it atomically.
// On any failure, the previous registry is retained if one exists;
// otherwise the built-in fallback list is installed (§4.1).
func (r *Registry) Reload(ctx context.Context) error {
	entries, err := r.fetchCatalog(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog reload failed")
		r.mu.Lock()
		hadPrevious := r.loaded
		r.mu.Unlock()
		if hadPrevious {
			return nil
		}
		r.installFallback()
		return nil
	}

	bySymbol := make(map[key]domain.Instrument)
	byExchange := make(map[domain.Exchange][]domain.Instrument)
	active := make(map[domain.Exchange]bool)
	for _, ex := range r.ActiveExchanges() {
		active[ex] = true
	}

	for _, e := range entries {
		if !r.eligible(e, active) {
			continue
		}
		inst := domain.Instrument{
			Symbol:      strings.ToUpper(e.Symbol),
			Exchange:    domain.Exchange(e.Exchange),
			Token:       e.Token,
			DisplayName: e.Name,
		}
		k := key{inst.Symbol, inst.Exchange}
		bySymbol[k] = inst
		byExchange[inst.Exchange] = append(byExchange[inst.Exchange], inst)
	}

	r.mu.Lock()
	r.bySymbol = bySymbol
	r.byExchange = byExchange
	r.loaded = true
	r.mu.Unlock()

	r.log.Info().Int("count", len(bySymbol)).Msg("instrument registry reloaded")
	return nil
}

func (r *Registry) eligible(e catalogEntry, active map[domain.Exchange]bool) bool {
	if !active[domain.Exchange(e.Exchange)] {
		return false
	}
	if !strings.HasSuffix(strings.ToUpper(e.Symbol), "-EQ") {
		return false
	}
	if e.InstrumentType != "" && !strings.EqualFold(e.InstrumentType, "equity") {
		return false
	}
	upperName := strings.ToUpper(e.Name)
	upperSymbol := strings.ToUpper(e.Symbol)
	for _, excluded := range excludedSubstrings {
		if strings.Contains(upperName, excluded) || strings.Contains(upperSymbol, excluded) {
			return false
		}
	}
	return true
}

func (r *Registry) fetchCatalog(ctx context.Context) ([]catalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.CatalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}

	var entries []catalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return entries, nil
}

func (r *Registry) installFallback() {
	bySymbol := make(map[key]domain.Instrument, len(fallbackInstruments))
	byExchange := make(map[domain.Exchange][]domain.Instrument)
	for _, inst := range fallbackInstruments {
		bySymbol[key{inst.Symbol, inst.Exchange}] = inst
		byExchange[inst.Exchange] = append(byExchange[inst.Exchange], inst)
	}

	r.mu.Lock()
	r.bySymbol = bySymbol
	r.byExchange = byExchange
	r.loaded = true
	r.mu.Unlock()

	r.log.Warn().Int("count", len(fallbackInstruments)).Msg("installed fallback instrument list")
}
