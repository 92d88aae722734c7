package api

import (
	"net/http"
	"time"
)

// TradesToday is only reported while the database is reachable.
type healthResponse struct {
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	Services    healthServices `json:"services"`
	TradesToday *int           `json:"tradesToday,omitempty"`
}

type healthServices struct {
	Database string `json:"database"`
	Engine   string `json:"engine"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	resp := healthResponse{Status: "ok", Timestamp: now.UTC().Format(time.RFC3339)}

	resp.Services.Database = "disabled"
	if s.pool != nil {
		resp.Services.Database = "connected"
		if err := s.pool.Ping(r.Context()); err != nil {
			resp.Services.Database = "disconnected"
		} else if s.tradeRepo != nil {
			if n, err := s.tradeRepo.CountDay(r.Context(), now); err == nil {
				resp.TradesToday = &n
			} else {
				s.log.WithError(err).Warn("count today's trades")
			}
		}
	}

	resp.Services.Engine = "stopped"
	if s.engine.Running() {
		resp.Services.Engine = "running"
	}

	writeJSON(w, http.StatusOK, resp)
}
