// Package server exposes the admin HTTP API of the lease engine
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/engine"
	"lease_engine/internal/lease"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LeaseService is the part of the engine the API drives
type LeaseService interface {
	OpenLease(ctx context.Context, p engine.OpenParams) (*lease.Lease, lease.Response, error)
	Repay(ctx context.Context, id string, payment finance.Coin) (lease.RepayResponse, error)
	QueryState(ctx context.Context, id string) (lease.StateView, error)
}

// Config holds listener settings
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg    Config
	leases LeaseService
	hm     core.IHealthMonitor
	logger core.ILogger
	srv    *http.Server
}

func NewServer(cfg Config, leases LeaseService, hm core.IHealthMonitor, logger core.ILogger) *Server {
	return &Server{
		cfg:    cfg,
		leases: leases,
		hm:     hm,
		logger: logger.WithField("component", "api_server"),
	}
}

type openRequest struct {
	ID          string       `json:"id,omitempty"`
	Customer    string       `json:"customer"`
	Downpayment finance.Coin `json:"downpayment"`
	Borrow      finance.Coin `json:"borrow"`
	Asset       finance.Coin `json:"asset"`
}

type openResponse struct {
	ID string `json:"id"`
	lease.Response
}

type repayRequest struct {
	Payment finance.Coin `json:"payment"`
}

// Handler returns the chi router with all routes mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/leases", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/repay", s.handleRepay)
	})
	return r
}

// Start serves in the background until Stop
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		s.logger.Info("Starting API server", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
		"leases": telemetry.GetGlobalMetrics().GetStatusCounts(),
	}
	code := http.StatusOK
	if s.hm != nil {
		health["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			health["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, health)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	l, resp, err := s.leases.OpenLease(r.Context(), engine.OpenParams{
		ID:          req.ID,
		Customer:    req.Customer,
		Downpayment: req.Downpayment,
		Borrow:      req.Borrow,
		Asset:       req.Asset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, openResponse{ID: l.ID, Response: resp})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.leases.QueryState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := s.leases.Repay(r.Context(), chi.URLParam(r, "id"), req.Payment)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, code, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrLeaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrLeaseExists), errors.Is(err, apperrors.ErrLeaseClosed):
		return http.StatusConflict
	case apperrors.IsRetryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrInsufficientPayment),
		errors.Is(err, apperrors.ErrCurrencyMismatch),
		errors.Is(err, apperrors.ErrUnknownCurrency),
		errors.Is(err, apperrors.ErrBrokenInvariant):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
