// Package api exposes the trading service over HTTP: status and earnings
// queries, flash-loan execution, treasury withdrawals, and a websocket
// stream of live stats.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"apex-trader/internal/observability"
	"apex-trader/internal/trading"
	"apex-trader/internal/treasury"
)

// Options configures a Server.
type Options struct {
	Session      *treasury.Session
	Executor     *treasury.Executor
	Book         *trading.Book
	FeeRecipient string
	Logger       *log.Logger
}

// Server holds the HTTP handlers over the trading book and the treasury.
type Server struct {
	session      *treasury.Session
	executor     *treasury.Executor
	book         *trading.Book
	feeRecipient string
	logger       *log.Logger
	started      time.Time

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	return &Server{
		session:      opts.Session,
		executor:     opts.Executor,
		book:         opts.Book,
		feeRecipient: opts.FeeRecipient,
		logger:       opts.Logger,
		started:      time.Now(),
	}
}

// Handler builds the route table. Alias routes forward to the same handler
// the dashboard's primary route uses.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.instrument("/status", s.handleStatus))
	mux.HandleFunc("GET /health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("GET /balance", s.instrument("/balance", s.handleBalance))
	mux.HandleFunc("GET /earnings", s.instrument("/earnings", s.handleEarnings))
	mux.HandleFunc("GET /strategies", s.instrument("/strategies", s.handleStrategies))
	mux.HandleFunc("GET /api/apex/strategies/live", s.instrument("/strategies", s.handleStrategies))

	mux.HandleFunc("POST /execute", s.instrument("/execute", s.handleExecute))
	mux.HandleFunc("POST /withdraw", s.instrument("/withdraw", s.handleWithdraw))
	mux.HandleFunc("POST /send-eth", s.instrument("/withdraw", s.handleWithdraw))
	mux.HandleFunc("POST /transfer", s.instrument("/withdraw", s.handleWithdraw))
	mux.HandleFunc("POST /coinbase-withdraw", s.instrument("/withdraw", s.handleWithdraw))

	mux.HandleFunc("GET /transfers/{hash}", s.instrument("/transfers", s.handleTransferStatus))
	mux.HandleFunc("GET /ws/live", s.handleLiveStream)

	mux.Handle("GET /metrics", observability.Handler())

	return corsMiddleware(mux)
}

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logf("listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting for in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows cross-origin calls from the browser dashboard.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request duration and status code per route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		observability.RecordRequest(route, strconv.Itoa(rec.code), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logf("encode response: %v", err)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// eth formats an ETH amount with the six decimal places the dashboard
// expects.
func eth(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// usd formats a dollar amount with two decimal places.
func usd(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
