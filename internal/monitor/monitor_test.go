package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
)

type fakeResolver struct {
	tokens map[string]string
}

func (f *fakeResolver) Resolve(symbol string, exchange domain.Exchange) (string, bool) {
	token, ok := f.tokens[symbol+":"+string(exchange)]
	return token, ok
}

type fakeBroker struct {
	prices map[string]float64 // token -> last price
}

func (f *fakeBroker) Login(ctx context.Context) error { return nil }
func (f *fakeBroker) BatchQuote(ctx context.Context, exchange domain.Exchange, tokens []string) (map[string]broker.Quote, error) {
	out := make(map[string]broker.Quote)
	for _, tok := range tokens {
		if p, ok := f.prices[tok]; ok {
			out[tok] = broker.Quote{Token: tok, LastPrice: p}
		}
	}
	return out, nil
}
func (f *fakeBroker) HistoricalOHLCV(ctx context.Context, exchange domain.Exchange, token string, from, to time.Time) ([]domain.Bar, error) {
	return nil, nil
}
func (f *fakeBroker) PlaceOrder(ctx context.Context, order broker.OrderRequest) (string, error) {
	return "BROKER-1", nil
}
func (f *fakeBroker) Positions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakeBroker) Holdings(ctx context.Context) ([]broker.Holding, error)   { return nil, nil }
func (f *fakeBroker) AvailableCash(ctx context.Context) (float64, error)      { return 0, nil }
func (f *fakeBroker) VIX(ctx context.Context) (float64, error)                { return 15, nil }

type fakeSell struct {
	calls []string
	err   error
}

func (f *fakeSell) PlaceSell(ctx context.Context, symbol string, exchange domain.Exchange, qty int64, price float64, reason domain.ExitReason) (string, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return "", f.err
	}
	return "BROKER-SELL-1", nil
}

type fakeStore struct {
	mu        sync.Mutex
	positions map[string]domain.OpenPosition
	closed    []domain.TradeRecord
}

func newFakeStore(positions ...domain.OpenPosition) *fakeStore {
	s := &fakeStore{positions: make(map[string]domain.OpenPosition)}
	for _, p := range positions {
		s.positions[p.ProposalID] = p
	}
	return s
}

func (s *fakeStore) UpsertTrade(ctx context.Context, r domain.TradeRecord) error { return nil }
func (s *fakeStore) GetTrade(ctx context.Context, id string) (*domain.TradeRecord, error) {
	return nil, nil
}
func (s *fakeStore) ListTradesSince(ctx context.Context, since time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}
func (s *fakeStore) ListClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	return s.closed, nil
}
func (s *fakeStore) UpsertPosition(ctx context.Context, pos domain.OpenPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ProposalID] = pos
	return nil
}
func (s *fakeStore) GetPosition(ctx context.Context, proposalID string) (*domain.OpenPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.positions[proposalID]; ok {
		return &p, nil
	}
	return nil, nil
}
func (s *fakeStore) ListOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OpenPosition
	for _, p := range s.positions {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *fakeStore) LoadChatOffset(ctx context.Context) (int64, error)      { return 0, nil }
func (s *fakeStore) SaveChatOffset(ctx context.Context, offset int64) error { return nil }

type fakeChat struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeChat) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeChat) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]chat.Update, error) {
	return nil, nil
}

func defaultConfig() Config {
	return Config{
		MaxSingleTradeDrawdownPct: 8,
		TrailingStopActivatePct:   5,
		PrimaryExchange:           domain.ExchangeNSE,
		SecondaryExchange:         domain.ExchangeBSE,
	}
}

func testPosition() domain.OpenPosition {
	return domain.OpenPosition{
		ProposalID:  "TRD-AAAAAAAAAAAA",
		Symbol:      "TCS",
		Exchange:    domain.ExchangeNSE,
		EntryPrice:  100,
		Quantity:    10,
		InitialStop: 95,
		CurrentStop: 95,
		Target:      120,
		Active:      true,
		EntryTime:   time.Now().Add(-time.Hour),
	}
}

func TestTick_StopLossHitClosesPositionWithoutApproval(t *testing.T) {
	pos := testPosition()
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{"TCS:NSE": "11536"}}
	brk := &fakeBroker{prices: map[string]float64{"11536": 94}}
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))

	assert.Len(t, sell.calls, 1)
	stored, err := st.GetPosition(context.Background(), pos.ProposalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Active)
	assert.Equal(t, domain.ExitStopLossHit, stored.ExitReason)
}

func TestTick_DrawdownExceededClosesPosition(t *testing.T) {
	pos := testPosition()
	pos.CurrentStop = 80 // below drawdown trigger price so stop-loss doesn't fire first
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{"TCS:NSE": "11536"}}
	brk := &fakeBroker{prices: map[string]float64{"11536": 91}} // 9% drawdown, >= 8% threshold
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))

	stored, err := st.GetPosition(context.Background(), pos.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitMaxDrawdown, stored.ExitReason)
}

func TestTick_TargetReachedNotifiesWithoutAutoSell(t *testing.T) {
	pos := testPosition()
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{"TCS:NSE": "11536"}}
	brk := &fakeBroker{prices: map[string]float64{"11536": 125}}
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))

	assert.Empty(t, sell.calls, "target reached must not auto-sell")
	stored, err := st.GetPosition(context.Background(), pos.ProposalID)
	require.NoError(t, err)
	assert.True(t, stored.Active)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.NotEmpty(t, ch.sent)
	assert.Contains(t, ch.sent[0], "TARGET_HIT")
}

func TestTick_PartialProfitSuggestionFiresOnce(t *testing.T) {
	pos := testPosition() // entry 100, target 120, midpoint 110
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{"TCS:NSE": "11536"}}
	brk := &fakeBroker{prices: map[string]float64{"11536": 112}}
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))
	require.NoError(t, m.Tick(context.Background()))

	ch.mu.Lock()
	defer ch.mu.Unlock()
	partialProfitCount := 0
	for _, msg := range ch.sent {
		if strings.Contains(msg, "halfway point") {
			partialProfitCount++
		}
	}
	assert.Equal(t, 1, partialProfitCount)
}

func TestTick_TrailingStopOnlyAppliesGenuineIncrease(t *testing.T) {
	pos := testPosition() // entry 100, initial stop 95, activates at 5% gain
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{"TCS:NSE": "11536"}}
	brk := &fakeBroker{prices: map[string]float64{"11536": 108}} // 8% gain, new_stop = 108-(100-95) = 103
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))

	stored, err := st.GetPosition(context.Background(), pos.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, 103.0, stored.CurrentStop)

	// price retreats: trailing stop must never move down
	brk.prices["11536"] = 101
	require.NoError(t, m.Tick(context.Background()))
	stored, err = st.GetPosition(context.Background(), pos.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, 103.0, stored.CurrentStop)
}

func TestTick_LivePriceUnavailableSkipsPosition(t *testing.T) {
	pos := testPosition()
	st := newFakeStore(pos)
	resolver := &fakeResolver{tokens: map[string]string{}}
	brk := &fakeBroker{prices: map[string]float64{}}
	sell := &fakeSell{}
	ch := &fakeChat{}
	m := New(defaultConfig(), brk, resolver, sell, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.Tick(context.Background()))
	assert.Empty(t, sell.calls)
}

func TestFetchLivePrice_FallsBackToSecondaryExchange(t *testing.T) {
	resolver := &fakeResolver{tokens: map[string]string{"TCS:BSE": "99"}}
	brk := &fakeBroker{prices: map[string]float64{"99": 150}}
	cfg := defaultConfig()
	cfg.SecondaryEnabled = true
	m := New(cfg, brk, resolver, &fakeSell{}, newFakeStore(), &fakeChat{}, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	price, ok := m.fetchLivePrice(context.Background(), "TCS", domain.ExchangeNSE)
	require.True(t, ok)
	assert.Equal(t, 150.0, price)
}

func TestEndOfDaySummary_ReportsOpenAndClosedCounts(t *testing.T) {
	st := newFakeStore(testPosition())
	now := time.Now()
	st.closed = []domain.TradeRecord{
		{ID: "TRD-X", ClosedAt: now, RealisedPnL: 500},
		{ID: "TRD-Y", ClosedAt: now.AddDate(0, 0, -1), RealisedPnL: -200},
	}
	ch := &fakeChat{}
	m := New(defaultConfig(), &fakeBroker{}, &fakeResolver{}, &fakeSell{}, st, ch, "123", events.NewManager(events.NewBus(), zerolog.Nop()), zerolog.Nop())

	require.NoError(t, m.EndOfDaySummary(context.Background(), now))

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0], "open positions: 1")
	assert.Contains(t, ch.sent[0], "closed today: 1")
	assert.Contains(t, ch.sent[0], "500.00")
}
