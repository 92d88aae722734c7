package api

import (
	"net/http"

	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/performance"
)

// handleTrades returns the most recent in-memory trade records, oldest first.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades := filterTrades(s.engine.Trades(), mode)
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTradesByDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !validateDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.tradeRepo == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history requires a database")
		return
	}

	trades, err := s.tradeRepo.GetByDay(r.Context(), date, mode)
	if err != nil {
		s.log.WithError(err).WithField("date", date).Error("fetch trades by day")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.OpenPositions())
}

// handleClosedPositions serves this process's closed positions, or the
// persisted history with ?source=db.
func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	if r.URL.Query().Get("source") == "db" {
		if s.posRepo == nil {
			writeError(w, http.StatusServiceUnavailable, "position history requires a database")
			return
		}
		closed, err := s.posRepo.GetClosed(r.Context(), limit)
		if err != nil {
			s.log.WithError(err).Error("fetch closed positions")
			writeError(w, http.StatusInternalServerError, "failed to fetch positions")
			return
		}
		if closed == nil {
			closed = []models.Position{}
		}
		writeJSON(w, http.StatusOK, closed)
		return
	}

	closed := s.engine.ClosedPositions()
	if len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}
	writeJSON(w, http.StatusOK, closed)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == nil {
		writeJSON(w, http.StatusOK, s.engine.Performance())
		return
	}
	writeJSON(w, http.StatusOK, performance.Compute(filterTrades(s.engine.Trades(), mode)))
}

func filterTrades(trades []models.TradeRecord, paperMode *bool) []models.TradeRecord {
	out := make([]models.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if paperMode == nil || t.IsPaperTrade == *paperMode {
			out = append(out, t)
		}
	}
	return out
}
