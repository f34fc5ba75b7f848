package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/learning"
	"github.com/jayanthsaib/stock-agent/internal/scheduler"
)

// handleHealth is the liveness probe; it never touches trading state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "stock-agent",
	})
}

// handleStatus answers `GET /api/status` (§6): process health plus a
// snapshot of universe size and pending-proposal count.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	health := scheduler.ReadHealth()

	positions, err := s.cfg.Store.ListOpenPositions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	universe := 0
	for _, ex := range s.cfg.Registry.ActiveExchanges() {
		universe += len(s.cfg.Registry.SymbolsOn(ex))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "running",
		"cpu_percent":      health.CPUPercent,
		"memory_percent":   health.MemoryPercent,
		"universe_size":    universe,
		"open_positions":   len(positions),
		"pending_signals":  len(s.cfg.Gateway.Pending()),
		"ingestion_active": s.cfg.Ingestor.Refreshing(),
	})
}

// handlePositions answers `GET /api/positions`.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.cfg.Store.ListOpenPositions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

// handleSignalsPending answers `GET /api/signals/pending`: every
// proposal currently awaiting an operator reply.
func (s *Server) handleSignalsPending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Gateway.Pending())
}

// handleSignalsHistory answers `GET /api/signals/history?days=N`
// (defaulting to 30 days when the query param is absent or invalid).
func (s *Server) handleSignalsHistory(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	since := time.Now().AddDate(0, 0, -days)
	trades, err := s.cfg.Store.ListTradesSince(r.Context(), since)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handlePerformance answers `GET /api/performance`: the same reducer
// the monthly Learning Summary job sends to chat, computed on demand.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	closed, err := s.cfg.Store.ListClosedTrades(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	trades, err := s.cfg.Store.ListTradesSince(r.Context(), time.Time{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var rejected []domain.TradeRecord
	for _, t := range trades {
		if t.Status == domain.StatusRejected {
			rejected = append(rejected, t)
		}
	}

	summary := learning.Build(closed, rejected)
	s.writeJSON(w, http.StatusOK, summary)
}

// analysisBundle is the `/api/analyse/<symbol>` response: every scorer
// output with no threshold filtering applied (§6 "no threshold
// filtering").
type analysisBundle struct {
	Symbol      string                     `json:"symbol"`
	Snapshot    domain.StockSnapshot       `json:"snapshot"`
	Fundamental analysis.FundamentalResult `json:"fundamental"`
	Technical   *analysis.TechnicalResult  `json:"technical,omitempty"`
	TechnicalErr string                    `json:"technical_error,omitempty"`
	Macro       analysis.MacroResult       `json:"macro"`
}

// handleAnalyse answers `GET /api/analyse/<symbol>`.
func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	snap, ok := s.cfg.Ingestor.Store().Snapshot(symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no ingested snapshot for symbol "+symbol)
		return
	}

	fundamentalInput, err := s.cfg.Fundamental.Fundamentals(symbol)
	bundle := analysisBundle{Symbol: symbol, Snapshot: snap}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "fundamental provider: "+err.Error())
		return
	}
	bundle.Fundamental = analysis.ScoreFundamental(fundamentalInput, s.cfg.FundamentalCfg)

	technical, err := analysis.ScoreTechnical(snap, s.cfg.TechnicalCfg)
	if err != nil {
		bundle.TechnicalErr = err.Error()
	} else {
		bundle.Technical = &technical
	}

	bundle.Macro = analysis.ScoreMacro(s.cfg.Ingestor.Store().Macro(), s.cfg.ForeignFlow, s.cfg.MacroCfg)

	s.writeJSON(w, http.StatusOK, bundle)
}

// handleTelegramTest answers `POST /api/telegram/test`: sends a fixed
// probe message to confirm the chat channel credentials work.
func (s *Server) handleTelegramTest(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Chat.SendMessage(r.Context(), s.cfg.ChatID, "Test message from the trading agent.", "HTML"); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleBrokerLogin answers `POST /api/broker/login`: forces a fresh
// broker session outside the lazy ensureSession path so an operator
// can confirm credentials without waiting for the next quote call.
func (s *Server) handleBrokerLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Broker.Login(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged in"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
