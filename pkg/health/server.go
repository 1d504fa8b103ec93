// Package health serves the health, readiness, status and metrics endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/circuitbreaker"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
)

// BlockReader reads the head of a chain
type BlockReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
}

// BalanceReader reads the solver balance of a token
type BalanceReader interface {
	Balance(ctx context.Context, token address.Address) (*big.Int, error)
}

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Chain is the status view of one solver chain
type Chain struct {
	ChainID  uint64
	VM       string
	Endpoint string
	Portal   string
	// Reader is nil until the chain client is connected
	Reader   BlockReader
	Balances BalanceReader
	Targets  []address.Address
}

// Server represents a health check HTTP server
type Server struct {
	port            string
	chains          map[uint64]Chain
	circuitBreakers map[uint64]*circuitbreaker.CircuitBreaker
	checks          map[string]Pinger
	metricsAPIKey   string
	logger          logger.Logger
}

// NewServer creates a new health check server
func NewServer(
	port string,
	chains map[uint64]Chain,
	circuitBreakers map[uint64]*circuitbreaker.CircuitBreaker,
	checks map[string]Pinger,
	log logger.Logger,
) *Server {
	return &Server{
		port:            port,
		chains:          chains,
		circuitBreakers: circuitBreakers,
		checks:          checks,
		metricsAPIKey:   os.Getenv("METRICS_API_KEY"),
		logger:          log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Check if all chain clients are connected
	for chainID, chain := range s.chains {
		if chain.Reader == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Chain %d client not connected", chainID)))
			return
		}
	}
	for name, check := range s.checks {
		if err := check.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("%s not reachable: %v", name, err)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	for chainID, chain := range s.chains {
		circuitStatus := "closed"
		if cb, ok := s.circuitBreakers[chainID]; ok && cb.IsOpen() {
			circuitStatus = "open"
		}

		chainStatus := map[string]interface{}{
			"vm":        chain.VM,
			"endpoint":  chain.Endpoint,
			"portal":    chain.Portal,
			"connected": chain.Reader != nil,
			"circuit":   circuitStatus,
		}

		if chain.Reader != nil {
			if blockNumber, err := chain.Reader.GetLatestBlockNumber(r.Context()); err == nil {
				chainStatus["latest_block"] = blockNumber
			}
		}
		if balances := s.tokenBalances(r.Context(), chain); len(balances) > 0 {
			chainStatus["token_balances"] = balances
		}

		status[fmt.Sprintf("chain_%d", chainID)] = chainStatus
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// tokenBalances reads the target balances of a chain and exports them as gauges
func (s *Server) tokenBalances(ctx context.Context, chain Chain) map[string]string {
	if chain.Balances == nil {
		return nil
	}
	label := strconv.FormatUint(chain.ChainID, 10)
	balances := make(map[string]string, len(chain.Targets))
	for _, token := range chain.Targets {
		balance, err := chain.Balances.Balance(ctx, token)
		if err != nil {
			s.logger.DebugWithChain(chain.ChainID, "Failed to read balance of %s: %v", token.Hex(), err)
			continue
		}
		balances[token.Hex()] = balance.String()
		f, _ := new(big.Float).SetInt(balance).Float64()
		metrics.TokenBalance.WithLabelValues(label, token.Hex()).Set(f)
	}
	return balances
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	chainIDStr := r.URL.Query().Get("chain")
	if chainIDStr == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing chain parameter"))
		return
	}

	chainID, err := strconv.ParseUint(chainIDStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid chain ID"))
		return
	}

	cb, ok := s.circuitBreakers[chainID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for chain %d", chainID)))
		return
	}

	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
}

