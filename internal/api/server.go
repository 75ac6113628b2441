// Package api exposes the settlement engine over HTTP. Wallet identity
// comes from the X-Wallet-Address header; session issuance happens
// upstream.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chefcoin-bridge/internal/observability"
	"chefcoin-bridge/internal/settlement"
)

// Server routes settlement requests to the engine and processor.
type Server struct {
	engine    *settlement.Engine
	processor *settlement.Processor
	metrics   *observability.Metrics
	logger    *log.Logger
}

// NewServer creates a settlement API server.
func NewServer(engine *settlement.Engine, processor *settlement.Processor, metrics *observability.Metrics, logger *log.Logger) *Server {
	return &Server{
		engine:    engine,
		processor: processor,
		metrics:   metrics,
		logger:    logger,
	}
}

// Router builds the chi router with all settlement routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireWallet)

		r.Post("/swap/intent", s.handleCreateSwapIntent)
		r.Post("/swap/confirm", s.handleConfirmSwapIntent)
		r.Post("/swap/redeem", s.handleRedeem)

		r.Post("/purchase/intent", s.handleCreatePurchaseIntent)
		r.Post("/purchase/confirm", s.handleConfirmPurchaseIntent)

		r.Post("/queue/swaps", s.handleEnqueueSwap)
		r.Get("/queue/swaps/{id}", s.handleGetSwapRequest)
		r.Post("/queue/swaps/{id}/refund", s.handleRefundSwapRequest)

		r.Get("/balance", s.handleGetBalance)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// walletHeader carries the authenticated wallet's address.
const walletHeader = "X-Wallet-Address"

type walletKey struct{}

// requireWallet rejects requests without a wallet identity and stashes
// the address in the request context.
func (s *Server) requireWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.Header.Get(walletHeader)
		if wallet == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing "+walletHeader+" header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withWallet(r.Context(), wallet)))
	})
}

// statusForError maps settlement error classes onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, settlement.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrOwnership):
		return http.StatusForbidden
	case errors.Is(err, settlement.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, settlement.ErrOnChainFailure),
		errors.Is(err, settlement.ErrAmountMismatch),
		errors.Is(err, settlement.ErrStaleProof):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, settlement.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
