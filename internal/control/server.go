// Package control serves the HTTP control API and UI session WebSocket.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"token-detector/internal/domain"
	"token-detector/internal/logging"
	"token-detector/internal/observability"
	"token-detector/internal/sources"
	"token-detector/internal/storage"
	"token-detector/internal/tokens"
)

// Detector starts detection passes on request.
type Detector interface {
	DetectNow() bool
}

// ActivityGate reports whether detection may run.
type ActivityGate interface {
	Active() bool
}

// Deps are the components the control API drives.
type Deps struct {
	Accounts    *sources.AccountStore
	Network     *sources.NetworkStore
	Preferences *sources.PreferencesStore
	Keyring     *sources.KeyringStore
	Tokens      *tokens.Controller
	Detector    Detector
	Gate        ActivityGate
	Hub         *Hub
	Logger      *zerolog.Logger
}

// Server is the control API.
type Server struct {
	deps   Deps
	router chi.Router
	logger zerolog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: logging.OrNop(deps.Logger).With().Str("component", "control").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler())
	r.Get("/state", s.handleState)
	if deps.Hub != nil {
		r.Handle("/ws", deps.Hub)
	}

	r.Put("/account", s.handleSetAccount)
	r.Put("/network", s.handleSetNetwork)
	r.Put("/preferences", s.handleSetPreferences)

	r.Route("/session", func(r chi.Router) {
		r.Post("/unlock", s.handleUnlock)
		r.Post("/lock", s.handleLock)
	})

	r.Post("/detect", s.handleDetect)
	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", s.handleAddTokens)
		r.Post("/ignore", s.handleIgnoreTokens)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("control api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control api: %w", err)
	case <-ctx.Done():
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown control api: %w", err)
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request done")
	})
}

// stateResponse is the body of GET /state.
type stateResponse struct {
	Account           string      `json:"account"`
	ChainID           string      `json:"chain_id"`
	UseTokenDetection bool        `json:"use_token_detection"`
	Unlocked          bool        `json:"unlocked"`
	Active            bool        `json:"active"`
	Sessions          int         `json:"sessions"`
	Tokens            []tokenJSON `json:"tokens"`
	DetectedTokens    []tokenJSON `json:"detected_tokens"`
	IgnoredTokens     []string    `json:"ignored_tokens"`
}

type tokenJSON struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Symbol   string `json:"symbol" validate:"required,max=32"`
	Decimals int    `json:"decimals" validate:"min=0,max=36"`
}

func toTokenJSON(in []domain.Token) []tokenJSON {
	out := make([]tokenJSON, len(in))
	for i, t := range in {
		out[i] = tokenJSON{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	state := s.deps.Tokens.State()
	resp := stateResponse{
		Account:           s.deps.Accounts.SelectedAddress(),
		ChainID:           s.deps.Network.ChainID(),
		UseTokenDetection: s.deps.Preferences.UseTokenDetection(),
		Unlocked:          s.deps.Keyring.IsUnlocked(),
		Active:            s.deps.Gate.Active(),
		Tokens:            toTokenJSON(state.Tokens),
		DetectedTokens:    toTokenJSON(state.DetectedTokens),
		IgnoredTokens:     append([]string{}, state.IgnoredTokens...),
	}
	if s.deps.Hub != nil {
		resp.Sessions = s.deps.Hub.Sessions()
	}
	writeJSON(w, http.StatusOK, resp)
}

type setAccountRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

func (s *Server) handleSetAccount(w http.ResponseWriter, r *http.Request) {
	var req setAccountRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.Accounts.SetSelectedAddress(req.Address)
	w.WriteHeader(http.StatusNoContent)
}

type setNetworkRequest struct {
	ChainID string `json:"chain_id" validate:"required,startswith=0x,hexadecimal"`
}

func (s *Server) handleSetNetwork(w http.ResponseWriter, r *http.Request) {
	var req setNetworkRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.Network.SetChainID(req.ChainID)
	w.WriteHeader(http.StatusNoContent)
}

type setPreferencesRequest struct {
	UseTokenDetection *bool `json:"use_token_detection" validate:"required"`
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var req setPreferencesRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.Preferences.SetUseTokenDetection(*req.UseTokenDetection)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlock(w http.ResponseWriter, _ *http.Request) {
	s.deps.Keyring.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLock(w http.ResponseWriter, _ *http.Request) {
	s.deps.Keyring.Lock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDetect(w http.ResponseWriter, _ *http.Request) {
	started := s.deps.Detector.DetectNow()
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]bool{"started": started})
}

type addTokensRequest struct {
	Tokens []tokenJSON `json:"tokens" validate:"required,min=1,dive"`
}

func (s *Server) handleAddTokens(w http.ResponseWriter, r *http.Request) {
	var req addTokensRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	toks := make([]domain.Token, len(req.Tokens))
	for i, t := range req.Tokens {
		toks[i] = domain.Token{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
	}
	if err := s.deps.Tokens.AddTokens(r.Context(), toks); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ignoreTokensRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,dive,eth_addr"`
}

func (s *Server) handleIgnoreTokens(w http.ResponseWriter, r *http.Request) {
	var req ignoreTokensRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Tokens.IgnoreTokens(r.Context(), req.Addresses); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrInvalidInput) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.logger.Error().Err(err).Msg("token store write")
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}
