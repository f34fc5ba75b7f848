// Package store is the local persistence layer: the sqlite-backed
// implementation of the narrow TradeStore contract (trade records and
// open positions) plus the chat long-poll offset.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/database"
	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// TradeStore is the narrow persistence contract the rest of the
// pipeline depends on (§9 "Cycle breaks").
type TradeStore interface {
	UpsertTrade(ctx context.Context, record domain.TradeRecord) error
	GetTrade(ctx context.Context, id string) (*domain.TradeRecord, error)
	ListTradesSince(ctx context.Context, since time.Time) ([]domain.TradeRecord, error)
	ListClosedTrades(ctx context.Context) ([]domain.TradeRecord, error)

	UpsertPosition(ctx context.Context, pos domain.OpenPosition) error
	GetPosition(ctx context.Context, proposalID string) (*domain.OpenPosition, error)
	ListOpenPositions(ctx context.Context) ([]domain.OpenPosition, error)

	LoadChatOffset(ctx context.Context) (int64, error)
	SaveChatOffset(ctx context.Context, offset int64) error
}

// SQLStore is the modernc.org/sqlite-backed TradeStore implementation.
type SQLStore struct {
	db  *database.DB
	log zerolog.Logger
}

// New opens (or creates) the sqlite trade database at path and applies
// the schema.
func New(path string, log zerolog.Logger) (*SQLStore, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileLedger,
		Name:    "trades",
	})
	if err != nil {
		return nil, fmt.Errorf("open trade store: %w", err)
	}
	if err := db.Migrate(schema); err != nil {
		return nil, fmt.Errorf("migrate trade store: %w", err)
	}
	return &SQLStore{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// UpsertTrade inserts or replaces a trade record keyed by its id,
// matching the "upserted at each status transition" lifecycle (§3).
func (s *SQLStore) UpsertTrade(ctx context.Context, r domain.TradeRecord) error {
	const q = `
INSERT INTO trades (
	id, symbol, exchange, side, sector, status, entry, target, stop,
	risk_reward_ratio, fundamental_score, technical_score, macro_score,
	risk_reward_score, composite_score, capital_allocation,
	narrative_summary, rejection_reason, generated_at, expires_at,
	decided_at, executed_at, closed_at, broker_order_id, exit_price,
	exit_reason, realised_pnl, realised_pnl_pct
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	stop = excluded.stop,
	composite_score = excluded.composite_score,
	rejection_reason = excluded.rejection_reason,
	decided_at = excluded.decided_at,
	executed_at = excluded.executed_at,
	closed_at = excluded.closed_at,
	broker_order_id = excluded.broker_order_id,
	exit_price = excluded.exit_price,
	exit_reason = excluded.exit_reason,
	realised_pnl = excluded.realised_pnl,
	realised_pnl_pct = excluded.realised_pnl_pct
`
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.Symbol, r.Exchange, r.Side, r.Sector, r.Status, r.Entry, r.Target, r.Stop,
		r.RiskRewardRatio, r.FundamentalScore, r.TechnicalScore, r.MacroScore,
		r.RiskRewardScore, r.CompositeScore, r.CapitalAllocation,
		domain.TruncateNarrative(r.NarrativeSummary), domain.TruncateRejectionReason(r.RejectionReason),
		r.GeneratedAt, r.ExpiresAt,
		nullableTime(r.DecidedAt), nullableTime(r.ExecutedAt), nullableTime(r.ClosedAt),
		r.BrokerOrderID, r.ExitPrice, r.ExitReason, r.RealisedPnL, r.RealisedPnLPct,
	)
	if err != nil {
		return fmt.Errorf("upsert trade %s: %w", r.ID, err)
	}
	return nil
}

const tradeColumns = `
	id, symbol, exchange, side, sector, status, entry, target, stop,
	risk_reward_ratio, fundamental_score, technical_score, macro_score,
	risk_reward_score, composite_score, capital_allocation,
	narrative_summary, rejection_reason, generated_at, expires_at,
	decided_at, executed_at, closed_at, broker_order_id, exit_price,
	exit_reason, realised_pnl, realised_pnl_pct
`

func scanTrade(row interface{ Scan(...interface{}) error }) (domain.TradeRecord, error) {
	var r domain.TradeRecord
	var decidedAt, executedAt, closedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.Symbol, &r.Exchange, &r.Side, &r.Sector, &r.Status, &r.Entry, &r.Target, &r.Stop,
		&r.RiskRewardRatio, &r.FundamentalScore, &r.TechnicalScore, &r.MacroScore,
		&r.RiskRewardScore, &r.CompositeScore, &r.CapitalAllocation,
		&r.NarrativeSummary, &r.RejectionReason, &r.GeneratedAt, &r.ExpiresAt,
		&decidedAt, &executedAt, &closedAt, &r.BrokerOrderID, &r.ExitPrice,
		&r.ExitReason, &r.RealisedPnL, &r.RealisedPnLPct,
	)
	if err != nil {
		return r, err
	}
	r.DecidedAt = decidedAt.Time
	r.ExecutedAt = executedAt.Time
	r.ClosedAt = closedAt.Time
	return r, nil
}

// GetTrade fetches one trade record by id, or nil if not found.
func (s *SQLStore) GetTrade(ctx context.Context, id string) (*domain.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	r, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return &r, nil
}

// ListTradesSince returns every trade generated at or after since, for
// the signals-history HTTP endpoint.
func (s *SQLStore) ListTradesSince(ctx context.Context, since time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE generated_at >= ? ORDER BY generated_at DESC", since)
	if err != nil {
		return nil, fmt.Errorf("list trades since %s: %w", since, err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		r, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListClosedTrades returns every trade that reached a terminal status
// with a realised P&L, for the Learning Summary reducer.
func (s *SQLStore) ListClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE closed_at IS NOT NULL ORDER BY closed_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		r, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const positionColumns = `
	proposal_id, symbol, exchange, sector, entry_price, quantity, invested_amount,
	initial_stop, current_stop, target, current_price, active, entry_time,
	partial_profit_notified, exit_price, exit_time, exit_reason,
	realised_pnl, realised_pnl_pct
`

// UpsertPosition inserts or replaces an open position keyed by its
// proposal id. The Position Monitor is the exclusive caller that
// mutates current_stop (§3 ownership).
func (s *SQLStore) UpsertPosition(ctx context.Context, p domain.OpenPosition) error {
	const q = `
INSERT INTO open_positions (` + positionColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(proposal_id) DO UPDATE SET
	current_stop = excluded.current_stop,
	current_price = excluded.current_price,
	active = excluded.active,
	partial_profit_notified = excluded.partial_profit_notified,
	exit_price = excluded.exit_price,
	exit_time = excluded.exit_time,
	exit_reason = excluded.exit_reason,
	realised_pnl = excluded.realised_pnl,
	realised_pnl_pct = excluded.realised_pnl_pct
`
	_, err := s.db.ExecContext(ctx, q,
		p.ProposalID, p.Symbol, p.Exchange, p.Sector, p.EntryPrice, p.Quantity, p.InvestedAmount,
		p.InitialStop, p.CurrentStop, p.Target, p.CurrentPrice, p.Active, p.EntryTime,
		p.PartialProfitNotified, nullableFloat(p.ExitPrice, p.Active), nullableTime(p.ExitTime),
		nullableString(string(p.ExitReason)), nullableFloat(p.RealisedPnL, p.Active), nullableFloat(p.RealisedPnLPct, p.Active),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ProposalID, err)
	}
	return nil
}

func scanPosition(row interface{ Scan(...interface{}) error }) (domain.OpenPosition, error) {
	var p domain.OpenPosition
	var exitTime sql.NullTime
	var exitPrice, realisedPnL, realisedPnLPct sql.NullFloat64
	var exitReason sql.NullString
	err := row.Scan(
		&p.ProposalID, &p.Symbol, &p.Exchange, &p.Sector, &p.EntryPrice, &p.Quantity, &p.InvestedAmount,
		&p.InitialStop, &p.CurrentStop, &p.Target, &p.CurrentPrice, &p.Active, &p.EntryTime,
		&p.PartialProfitNotified, &exitPrice, &exitTime, &exitReason, &realisedPnL, &realisedPnLPct,
	)
	if err != nil {
		return p, err
	}
	p.ExitPrice = exitPrice.Float64
	p.ExitTime = exitTime.Time
	p.ExitReason = domain.ExitReason(exitReason.String)
	p.RealisedPnL = realisedPnL.Float64
	p.RealisedPnLPct = realisedPnLPct.Float64
	return p, nil
}

// GetPosition fetches one open position by proposal id, or nil if not found.
func (s *SQLStore) GetPosition(ctx context.Context, proposalID string) (*domain.OpenPosition, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM open_positions WHERE proposal_id = ?", proposalID)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", proposalID, err)
	}
	return &p, nil
}

// ListOpenPositions returns every position with active = true.
func (s *SQLStore) ListOpenPositions(ctx context.Context) ([]domain.OpenPosition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+positionColumns+" FROM open_positions WHERE active = 1")
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.OpenPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadChatOffset restores the persisted chat offset (the highest
// update id already handled, plus one), or 0 if none has ever been
// saved. ChatPollJob passes it unchanged to GetUpdates, so an update
// handled before a restart is not fetched again (§5 "Exactly-once
// reply handling").
func (s *SQLStore) LoadChatOffset(ctx context.Context) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx, "SELECT last_update_id FROM chat_offset WHERE id = 1").Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load chat offset: %w", err)
	}
	return offset, nil
}

// SaveChatOffset persists the next offset to request; ChatPollJob
// calls it after every poll that returned updates.
func (s *SQLStore) SaveChatOffset(ctx context.Context, offset int64) error {
	const q = `
INSERT INTO chat_offset (id, last_update_id) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET last_update_id = excluded.last_update_id
`
	if _, err := s.db.ExecContext(ctx, q, offset); err != nil {
		return fmt.Errorf("save chat offset: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableFloat(f float64, active bool) interface{} {
	if active {
		return nil
	}
	return f
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
