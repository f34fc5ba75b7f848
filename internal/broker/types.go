package broker

import (
	"context"
	"time"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// Broker is the narrow contract the rest of the pipeline depends on.
// Production code talks to the exchange's REST API through Client;
// tests substitute a fake that implements this interface directly.
type Broker interface {
	Login(ctx context.Context) error
	BatchQuote(ctx context.Context, exchange domain.Exchange, tokens []string) (map[string]Quote, error)
	HistoricalOHLCV(ctx context.Context, exchange domain.Exchange, token string, from, to time.Time) ([]domain.Bar, error)
	PlaceOrder(ctx context.Context, order OrderRequest) (string, error)
	Positions(ctx context.Context) ([]Position, error)
	Holdings(ctx context.Context) ([]Holding, error)
	AvailableCash(ctx context.Context) (float64, error)
	VIX(ctx context.Context) (float64, error)
}

// Quote is the per-token result of a batch quote call.
type Quote struct {
	Token            string
	LastPrice        float64
	TotalTradedValue float64
}

// OrderVariety, order type and product type are fixed by the spec;
// the only variable fields are symbol, side, price and quantity.
const (
	OrderVarietyNormal    = "NORMAL"
	OrderTypeLimit        = "LIMIT"
	ProductTypeDelivery   = "DELIVERY"
	OrderDurationDay      = "DAY"
)

// OrderRequest is a place-order call. OrderType is always LIMIT;
// MARKET orders are rejected before a request is ever built (§4.6,
// §4.8, §7 "Hard config violation").
type OrderRequest struct {
	TradingSymbol   string
	SymbolToken     string
	Exchange        domain.Exchange
	TransactionType domain.Side
	Price           float64
	Quantity        int64
}

// Position is a broker-reported open position.
type Position struct {
	Symbol       string
	Exchange     domain.Exchange
	Quantity     int64
	AveragePrice float64
	LastPrice    float64
}

// Holding is a broker-reported delivery holding, used by the
// Portfolio Valuator to mark-to-market the portfolio's equity side.
type Holding struct {
	Symbol    string
	Exchange  domain.Exchange
	Quantity  int64
	LastPrice float64
}
