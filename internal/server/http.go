package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PoolLedger/internal/core"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/query"
)

// Server exposes the operation and query API over HTTP/JSON.
// Mutations go straight to the engine (which serializes them); history
// queries hit the projection tables through the query service.
type Server struct {
	engine   *core.Engine
	queries  *query.Service
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	log      zerolog.Logger
	adminKey string
}

func New(
	engine *core.Engine,
	queries *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
	adminKey string,
) *Server {
	return &Server{
		engine:   engine,
		queries:  queries,
		health:   health,
		metrics:  metrics,
		log:      log,
		adminKey: adminKey,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.instrumentation)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)

		r.Get("/accounts/{id}/deposit", s.handleDepositBalance)
		r.Get("/accounts/{id}/borrow", s.handleBorrowBalance)
		r.Get("/accounts/{id}/history", s.handleHistory)
		r.Get("/rate", s.handleRate)
		r.Get("/stats", s.handleStats)
		r.Get("/tokens/{token}", s.handleTokenInfo)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireOperator)
			r.Put("/tokens/{token}", s.handleSetTokenInfo)
			r.Put("/tokens/{token}/price", s.handleUpdatePrice)
			r.Get("/integrity", s.handleIntegrity)
		})
	})

	return r
}

// instrumentation records per-route request counts and latency, labeled
// by the chi route pattern so account IDs don't explode cardinality.
func (s *Server) instrumentation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// requireOperator gates the admin surface behind a bearer token.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" || r.Header.Get("Authorization") != "Bearer "+s.adminKey {
			s.writeError(w, r, core.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Operation handlers ---

type depositRequest struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, account, ok := s.parseIDs(w, req.OperationID, req.Account)
	if !ok {
		return
	}

	evt, err := s.engine.Deposit(r.Context(), opID, account, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, account, ok := s.parseIDs(w, req.OperationID, req.Account)
	if !ok {
		return
	}

	evt, err := s.engine.Withdraw(r.Context(), opID, account, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

type borrowRequest struct {
	OperationID      string `json:"operation_id"`
	Account          string `json:"account"`
	BorrowAmount     int64  `json:"borrow_amount"`
	CollateralAmount int64  `json:"collateral_amount"`
	CollateralToken  string `json:"collateral_token"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, account, ok := s.parseIDs(w, req.OperationID, req.Account)
	if !ok {
		return
	}

	evt, err := s.engine.Borrow(r.Context(), opID, account,
		req.BorrowAmount, req.CollateralAmount, req.CollateralToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, account, ok := s.parseIDs(w, req.OperationID, req.Account)
	if !ok {
		return
	}

	evt, err := s.engine.Repay(r.Context(), opID, account, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

type liquidateRequest struct {
	OperationID string `json:"operation_id"`
	Liquidator  string `json:"liquidator"`
	Borrower    string `json:"borrower"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, liquidator, ok := s.parseIDs(w, req.OperationID, req.Liquidator)
	if !ok {
		return
	}
	borrower, err := uuid.Parse(req.Borrower)
	if err != nil {
		s.writeBadRequest(w, "invalid borrower")
		return
	}

	evt, err := s.engine.Liquidate(r.Context(), opID, liquidator, borrower)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

// --- Query handlers ---

func (s *Server) handleDepositBalance(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, "invalid account")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": s.engine.DepositBalance(account),
	})
}

func (s *Server) handleBorrowBalance(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, "invalid account")
		return
	}
	collateral, token := s.engine.CollateralBalance(account)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":           account,
		"debt":              s.engine.BorrowBalance(account),
		"collateral_amount": collateral,
		"collateral_token":  token,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, "invalid account")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	var after *int64
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			after = &n
		}
	}

	entries, err := s.queries.GetAccountHistory(r.Context(), account, limit, after)
	if err != nil {
		s.log.Error().Err(err).Msg("history query failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"interest_rate_pct": s.engine.CurrentInterestRate(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ProtocolStats())
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.engine.TokenInfo(chi.URLParam(r, "token"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "token not listed"})
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// --- Admin handlers ---

type tokenInfoRequest struct {
	OperationID      string `json:"operation_id"`
	IsSupported      bool   `json:"is_supported"`
	CollateralFactor int64  `json:"collateral_factor"`
	Price            int64  `json:"price"`
}

func (s *Server) handleSetTokenInfo(w http.ResponseWriter, r *http.Request) {
	var req tokenInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, err := uuid.Parse(req.OperationID)
	if err != nil {
		s.writeBadRequest(w, "invalid operation_id")
		return
	}

	evt, err := s.engine.SetTokenInfo(opID, chi.URLParam(r, "token"),
		req.IsSupported, req.CollateralFactor, req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

type priceRequest struct {
	OperationID string `json:"operation_id"`
	Price       int64  `json:"price"`
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	opID, err := uuid.Parse(req.OperationID)
	if err != nil {
		s.writeBadRequest(w, "invalid operation_id")
		return
	}

	evt, err := s.engine.UpdatePrice(opID, chi.URLParam(r, "token"), req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evt)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "integrity check failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

func (s *Server) parseIDs(w http.ResponseWriter, opIDStr, accountStr string) (uuid.UUID, uuid.UUID, bool) {
	opID, err := uuid.Parse(opIDStr)
	if err != nil {
		s.writeBadRequest(w, "invalid operation_id")
		return uuid.Nil, uuid.Nil, false
	}
	account, err := uuid.Parse(accountStr)
	if err != nil {
		s.writeBadRequest(w, "invalid account")
		return uuid.Nil, uuid.Nil, false
	}
	return opID, account, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps engine rejections to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrUnsupportedAsset):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrNoPosition):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrLoanExists),
		errors.Is(err, core.ErrDuplicateOperation):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInsufficientCollateral),
		errors.Is(err, core.ErrInsufficientLiquidity),
		errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrNotLiquidatable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("operation failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
