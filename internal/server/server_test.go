package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/approval"
	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/ingestion"
	"github.com/jayanthsaib/stock-agent/internal/instruments"
	"github.com/jayanthsaib/stock-agent/internal/portfolio"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

type fakeStore struct {
	open   []domain.OpenPosition
	trades []domain.TradeRecord
	since  time.Time
}

func (s *fakeStore) UpsertTrade(ctx context.Context, r domain.TradeRecord) error { return nil }
func (s *fakeStore) GetTrade(ctx context.Context, id string) (*domain.TradeRecord, error) {
	return nil, nil
}
func (s *fakeStore) ListTradesSince(ctx context.Context, since time.Time) ([]domain.TradeRecord, error) {
	s.since = since
	return s.trades, nil
}
func (s *fakeStore) ListClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	return s.trades, nil
}
func (s *fakeStore) UpsertPosition(ctx context.Context, pos domain.OpenPosition) error { return nil }
func (s *fakeStore) GetPosition(ctx context.Context, proposalID string) (*domain.OpenPosition, error) {
	return nil, nil
}
func (s *fakeStore) ListOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	return s.open, nil
}
func (s *fakeStore) LoadChatOffset(ctx context.Context) (int64, error)      { return 0, nil }
func (s *fakeStore) SaveChatOffset(ctx context.Context, offset int64) error { return nil }

var _ store.TradeStore = (*fakeStore)(nil)

type fakeChat struct {
	sent []string
	err  error
}

func (f *fakeChat) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeChat) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]chat.Update, error) {
	return nil, nil
}

var _ chat.Chat = (*fakeChat)(nil)

type fakeBroker struct{ loginErr error }

func (f *fakeBroker) Login(ctx context.Context) error { return f.loginErr }
func (f *fakeBroker) BatchQuote(ctx context.Context, exchange domain.Exchange, tokens []string) (map[string]broker.Quote, error) {
	return nil, nil
}
func (f *fakeBroker) HistoricalOHLCV(ctx context.Context, exchange domain.Exchange, token string, from, to time.Time) ([]domain.Bar, error) {
	return nil, nil
}
func (f *fakeBroker) PlaceOrder(ctx context.Context, order broker.OrderRequest) (string, error) {
	return "", nil
}
func (f *fakeBroker) Positions(ctx context.Context) ([]broker.Position, error) { return nil, nil }
func (f *fakeBroker) Holdings(ctx context.Context) ([]broker.Holding, error)   { return nil, nil }
func (f *fakeBroker) AvailableCash(ctx context.Context) (float64, error)      { return 0, nil }
func (f *fakeBroker) VIX(ctx context.Context) (float64, error)                { return 15, nil }

var _ broker.Broker = (*fakeBroker)(nil)

type fakeFundamentalProvider struct{}

func (fakeFundamentalProvider) Fundamentals(symbol string) (analysis.FundamentalInput, error) {
	return analysis.FundamentalInput{DebtToEquity: 0.5, PromoterHoldingPct: 60, PromoterPledgingPct: 0}, nil
}

var _ analysis.FundamentalProvider = fakeFundamentalProvider{}

func testServer(t *testing.T, tradeStore store.TradeStore, chatClient chat.Chat, brk broker.Broker) *Server {
	t.Helper()
	log := zerolog.Nop()

	registry := instruments.New(instruments.Config{}, log)
	valuator := portfolio.New(portfolio.Config{SimulationEnabled: true, VirtualBalance: 100000}, brk, log)
	bus := events.NewBus()
	eventsMgr := events.NewManager(bus, log)
	ingestor := ingestion.New(ingestion.Config{}, registry, brk, valuator, nil, eventsMgr, log)
	gateway := approval.New(chatClient, tradeStore, eventsMgr, nil, "chat-1", true, log)

	return New(Config{
		Port:           0,
		Log:            log,
		DevMode:        true,
		Store:          tradeStore,
		Registry:       registry,
		Ingestor:       ingestor,
		Gateway:        gateway,
		Chat:           chatClient,
		ChatID:         "chat-1",
		Broker:         brk,
		Fundamental:    fakeFundamentalProvider{},
		FundamentalCfg: analysis.FundamentalConfig{},
		TechnicalCfg:   analysis.TechnicalConfig{},
		MacroCfg:       analysis.MacroConfig{},
	})
}

func TestHandleHealth_ReturnsHealthy(t *testing.T) {
	s := testServer(t, &fakeStore{}, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleStatus_ReportsOpenPositionsAndPendingSignals(t *testing.T) {
	tradeStore := &fakeStore{open: []domain.OpenPosition{{ProposalID: "p1"}}}
	s := testServer(t, tradeStore, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["open_positions"])
	assert.Equal(t, float64(0), body["pending_signals"])
}

func TestHandlePositions_ReturnsOpenPositions(t *testing.T) {
	tradeStore := &fakeStore{open: []domain.OpenPosition{{ProposalID: "p1", Symbol: "RELIANCE"}}}
	s := testServer(t, tradeStore, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []domain.OpenPosition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "RELIANCE", body[0].Symbol)
}

func TestHandleSignalsHistory_DefaultsToThirtyDays(t *testing.T) {
	tradeStore := &fakeStore{trades: []domain.TradeRecord{{ID: "t1"}}}
	s := testServer(t, tradeStore, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodGet, "/api/signals/history", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []domain.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), tradeStore.since, time.Minute)
}

func TestHandleAnalyse_UnknownSymbolIsNotFound(t *testing.T) {
	s := testServer(t, &fakeStore{}, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodGet, "/api/analyse/UNKNOWN", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTelegramTest_SendsProbeMessage(t *testing.T) {
	chatClient := &fakeChat{}
	s := testServer(t, &fakeStore{}, chatClient, &fakeBroker{})
	req := httptest.NewRequest(http.MethodPost, "/api/telegram/test", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, chatClient.sent, 1)
}

func TestHandleTelegramTest_ChatFailureIsBadGateway(t *testing.T) {
	chatClient := &fakeChat{err: assertErr("boom")}
	s := testServer(t, &fakeStore{}, chatClient, &fakeBroker{})
	req := httptest.NewRequest(http.MethodPost, "/api/telegram/test", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleBrokerLogin_Success(t *testing.T) {
	s := testServer(t, &fakeStore{}, &fakeChat{}, &fakeBroker{})
	req := httptest.NewRequest(http.MethodPost, "/api/broker/login", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleBrokerLogin_FailureIsBadGateway(t *testing.T) {
	s := testServer(t, &fakeStore{}, &fakeChat{}, &fakeBroker{loginErr: assertErr("auth failed")})
	req := httptest.NewRequest(http.MethodPost, "/api/broker/login", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
