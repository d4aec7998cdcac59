// Package backoffice serves the read-only operator API over the ledger and
// streams the audit trail.
package backoffice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundcore/crypto"
	"fundcore/native/breaker"
	"fundcore/native/credit"
	"fundcore/native/escrow"
	"fundcore/native/fees"
	"fundcore/native/funds"
	"fundcore/native/governance"
	"fundcore/native/oracle"
	"fundcore/native/orderbook"
	"fundcore/native/pool"
	"fundcore/native/registry"
	"fundcore/native/revenue"
	"fundcore/observability"
	"fundcore/observability/audit"
)

const moduleName = "backoffice"

// Ledger is the read surface the API serves from.
type Ledger interface {
	Funds() ([]*funds.Fund, error)
	Fund(id string) (*funds.Fund, error)
	NAV(token string) (*big.Int, error)
	NAVRecord(token string) (*oracle.Record, error)
	Profile(addr crypto.Address) (*registry.Profile, error)
	Balance(addr crypto.Address, token string) (*big.Int, error)
	Spendable(addr crypto.Address, token string) (*big.Int, error)
	FeeTotals(domain string) (fees.Totals, error)
	CompartmentBalances() (map[revenue.Compartment]*big.Int, error)
	Locks(holder crypto.Address) ([]*escrow.Lock, error)
	Advance(model credit.Model, id uint64) (*credit.Advance, error)
	Debt(model credit.Model, id uint64) (*big.Int, error)
	LTV(model credit.Model, id uint64) (*big.Int, error)
	Orders(token string) (*orderbook.Snapshot, error)
	Council() (*governance.Council, error)
	Transactions() ([]*governance.Transaction, error)
	BreakerState(token string) (*breaker.State, error)
	PoolReserve(token string) (*pool.Reserve, error)
	ReserveRatio(token string) (*big.Int, error)
}

// AuditFeed is the audit trail the stream endpoint replays and follows.
type AuditFeed interface {
	Since(ctx context.Context, after uint64, limit int) ([]audit.Record, error)
	Hub() *audit.Hub
}

// Server hosts the backoffice API.
type Server struct {
	cfg     Config
	ledger  Ledger
	feed    AuditFeed
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs a server. feed may be nil, in which case the audit stream
// answers 503.
func New(cfg Config, ledger Ledger, feed AuditFeed, logger *slog.Logger) (*Server, error) {
	if ledger == nil {
		return nil, fmt.Errorf("backoffice: ledger required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		ledger:  ledger,
		feed:    feed,
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateBurst),
		logger:  logger.With(slog.String("component", moduleName)),
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)
		v1.Use(s.observe)
		v1.Get("/funds", s.handleFunds)
		v1.Get("/funds/{id}", s.handleFund)
		v1.Get("/nav/{token}", s.handleNAV)
		v1.Get("/reserves/{token}", s.handleReserve)
		v1.Get("/profiles/{address}", s.handleProfile)
		v1.Get("/balances/{address}/{token}", s.handleBalance)
		v1.Get("/fees", s.handleFees)
		v1.Get("/locks/{address}", s.handleLocks)
		v1.Get("/advances/{id}", s.handleAdvance)
		v1.Get("/orders/{token}", s.handleOrders)
		v1.Get("/governance/transactions", s.handleTransactions)
		v1.Get("/breakers/{token}", s.handleBreaker)
		v1.Get("/audit/stream", s.handleAuditStream)
	})
	return otelhttp.NewHandler(r, moduleName)
}

// observe records request counts and latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.ModuleMetrics().Observe(moduleName, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("backoffice: response writer cannot be hijacked")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout.Duration,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("backoffice listening", slog.String("addr", s.cfg.ListenAddress))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("backoffice shutdown: %w", err)
	}
	s.logger.Info("backoffice stopped")
	return nil
}
