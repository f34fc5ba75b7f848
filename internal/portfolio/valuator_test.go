package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/domain"
)

type fakeBroker struct {
	cash         float64
	cashErr      error
	holdings     []broker.Holding
	holdingsErr  error
}

func (f *fakeBroker) Login(ctx context.Context) error { return nil }
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
func (f *fakeBroker) Holdings(ctx context.Context) ([]broker.Holding, error) {
	return f.holdings, f.holdingsErr
}
func (f *fakeBroker) AvailableCash(ctx context.Context) (float64, error) {
	return f.cash, f.cashErr
}
func (f *fakeBroker) VIX(ctx context.Context) (float64, error) { return 15, nil }

func TestValuator_SimulationModeAlwaysReturnsVirtualBalance(t *testing.T) {
	fb := &fakeBroker{cash: 999999}
	v := New(Config{SimulationEnabled: true, VirtualBalance: 500000}, fb, zerolog.Nop())

	value, err := v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500000.0, value)
}

func TestValuator_LiveModeSumsCashAndHoldings(t *testing.T) {
	fb := &fakeBroker{
		cash: 100000,
		holdings: []broker.Holding{
			{Symbol: "TCS", Quantity: 10, LastPrice: 3500},
		},
	}
	v := New(Config{SimulationEnabled: false, VirtualBalance: 500000}, fb, zerolog.Nop())

	value, err := v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 135000.0, value)
}

func TestValuator_FallsBackToCachedValueOnFailure(t *testing.T) {
	fb := &fakeBroker{cash: 100000, holdings: []broker.Holding{{Quantity: 1, LastPrice: 50000}}}
	v := New(Config{SimulationEnabled: false, VirtualBalance: 500000}, fb, zerolog.Nop())

	value, err := v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150000.0, value)

	fb.cashErr = errors.New("broker unavailable")
	value, err = v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150000.0, value, "should retain prior cached value")
}

func TestValuator_FallsBackToConfiguredValueWhenNoCache(t *testing.T) {
	fb := &fakeBroker{cashErr: errors.New("broker unavailable")}
	v := New(Config{SimulationEnabled: false, VirtualBalance: 500000}, fb, zerolog.Nop())

	value, err := v.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500000.0, value)
}
