// Package api exposes the node over HTTP: chain and wallet queries, claim
// submission, marketplace listings, archived block history, and a websocket
// event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/ecl-project/ecl/internal/archive"
	"github.com/ecl-project/ecl/internal/node"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

const defaultRecentBlocks = 20

// Server is the node's HTTP API
type Server struct {
	node        *node.Node
	archive     *archive.BlockRepository
	hub         *Hub
	submitLimit *rate.Limiter
	logger      *log.Logger
	router      *mux.Router
}

// NewServer creates the API server. The archive repository may be nil, in
// which case block history endpoints report the archive as unavailable.
func NewServer(n *node.Node, archiveRepo *archive.BlockRepository, hub *Hub, submitPerSecond float64, logger *log.Logger) *Server {
	if submitPerSecond <= 0 {
		submitPerSecond = 5
	}

	s := &Server{
		node:        n,
		archive:     archiveRepo,
		hub:         hub,
		submitLimit: rate.NewLimiter(rate.Limit(submitPerSecond), int(submitPerSecond)*2),
		logger:      logger.WithComponent("api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/chain", s.handleChain).Methods(http.MethodGet)
	r.HandleFunc("/wallets", s.handleWallets).Methods(http.MethodGet)
	r.HandleFunc("/wallets", s.handleCreateWallet).Methods(http.MethodPost)
	r.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)
	r.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/blocks/recent", s.handleRecentBlocks).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.ServeWS)
	s.router = r

	return s
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the API until the context ends
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("api shutdown failed")
		}
	}()

	s.logger.Info("api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	payload := map[string]string{"error": err.Error()}
	if code := errors.GetCode(err); code != "" {
		payload["code"] = string(code)
	}
	s.writeJSON(w, status, payload)
}

// statusForError maps error codes to HTTP statuses
func statusForError(err error) int {
	switch {
	case errors.IsCode(err, errors.CodeWalletNotFound):
		return http.StatusNotFound
	case errors.IsCode(err, errors.CodeInsufficientStake),
		errors.IsCode(err, errors.CodeDuplicateTask):
		return http.StatusConflict
	case errors.IsType(err, errors.ErrorTypeValidation),
		errors.IsType(err, errors.ErrorTypeWallet):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"node_id":     s.node.NodeID(),
		"subscribers": s.hub.SubscriberCount(),
	})
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.ChainSnapshot())
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.node.Balances(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	gen, err := s.node.CreateWallet(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"address":  gen.Wallet.Address,
		"balance":  gen.Wallet.Balance,
		"mnemonic": gen.Mnemonic,
	})
}

type submitRequest struct {
	Wallet string          `json:"wallet"`
	TaskID string          `json:"task_id"`
	Proof  json.RawMessage `json:"proof"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.submitLimit.Allow() {
		s.writeJSON(w, http.StatusTooManyRequests,
			map[string]string{"error": "submission rate limit exceeded"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "invalid request body"})
		return
	}
	if req.Wallet == "" || req.TaskID == "" || len(req.Proof) == 0 {
		s.writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "wallet, task_id, and proof are required"})
		return
	}

	tx, err := s.node.SubmitClaim(r.Context(), req.Wallet, req.TaskID, req.Proof)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, tx)
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	awaitingValidation, awaitingMining := s.node.PendingPools()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"awaiting_validation": awaitingValidation,
		"awaiting_mining":     awaitingMining,
	})
}

func (s *Server) handleListings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.Listings())
}

func (s *Server) handleRecentBlocks(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentBlocks
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.writeJSON(w, http.StatusBadRequest,
				map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest,
				map[string]string{"error": "offset must be a non-negative integer"})
			return
		}
		offset = parsed
	}

	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "block archive is not configured"})
		return
	}

	blocks, err := s.archive.RecentBlocks(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blocks)
}
