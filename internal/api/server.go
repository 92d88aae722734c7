// Package api serves a read-only JSON view of the engine's trades, positions
// and performance.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/repository"
)

const maxQueryLimit = 1000

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// EngineView is the read side of trader.Engine.
type EngineView interface {
	Trades() []models.TradeRecord
	OpenPositions() []models.Position
	ClosedPositions() []models.Position
	Performance() models.PerformanceStats
	Running() bool
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
	// Pool and the repos are optional; history routes answer 503 without them.
	Pool      *pgxpool.Pool
	Trades    *repository.TradeRepo
	Positions *repository.PositionRepo
	Metrics   http.Handler
	Log       *logrus.Entry
}

type Server struct {
	engine     EngineView
	pool       *pgxpool.Pool
	tradeRepo  *repository.TradeRepo
	posRepo    *repository.PositionRepo
	httpServer *http.Server
	apiKey     string
	log        *logrus.Entry
}

func NewServer(engine EngineView, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		engine:    engine,
		pool:      opts.Pool,
		tradeRepo: opts.Trades,
		posRepo:   opts.Positions,
		apiKey:    opts.APIKey,
		log:       opts.Log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.routes(opts.Metrics, opts.CORSOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(metrics http.Handler, corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Trade routes
	mux.HandleFunc("GET /v1/trades", s.handleTrades)
	mux.HandleFunc("GET /v1/trades/day/{date}", s.handleTradesByDay)

	// Position routes
	mux.HandleFunc("GET /v1/positions", s.handleOpenPositions)
	mux.HandleFunc("GET /v1/positions/closed", s.handleClosedPositions)

	mux.HandleFunc("GET /v1/performance", s.handlePerformance)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.authMiddleware(corsMiddleware(mux, corsOrigin))
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"addr": s.httpServer.Addr,
		"auth": s.apiKey != "",
	}).Info("REST API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// parseTradeMode extracts the ?mode= query parameter.
// Returns a *bool: nil = all, true = paper, false = live.
func parseTradeMode(r *http.Request) (*bool, error) {
	v := r.URL.Query().Get("mode")
	switch v {
	case "", "all":
		return nil, nil
	case "paper":
		b := true
		return &b, nil
	case "live":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid mode %q, expected paper|live|all", v)
	}
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
