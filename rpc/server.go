package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vaultchain/app"
	"vaultchain/native/common"
	"vaultchain/observability"
	"vaultchain/storage"
)

const maxRequestBytes = 1 << 20 // 1 MiB

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// Config tunes the HTTP API.
type Config struct {
	RateLimit RateLimit
	Logger    *slog.Logger
	// OpTimeout bounds a single state-changing request.
	OpTimeout time.Duration
	// Nonces persists the replay guard for signed requests. Nil keeps it in
	// memory.
	Nonces storage.Database
	Admin  AdminAuth
}

// Server exposes the runtime over a JSON HTTP API.
type Server struct {
	app     *app.App
	logger  *slog.Logger
	limiter *RateLimiter
	nonces  *NonceStore
	admin   *adminGate
	timeout time.Duration
	router  chi.Router
}

func NewServer(a *app.App, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Server{
		app:     a,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit),
		nonces:  NewNonceStore(cfg.Nonces),
		admin:   newAdminGate(cfg.Admin),
		timeout: timeout,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/vaults/{id}", s.getVault)
		r.Get("/vaults/{id}/holdings", s.getHoldings)
		r.Get("/fees/{id}", s.getFees)
		r.Get("/staking/{id}/{addr}", s.getStake)
		r.Get("/proxy/{index}", s.getProxy)
		r.Get("/events", s.getEvents)
		r.Get("/events/stream", s.streamEvents)

		r.Post("/vaults", s.createVault)
		r.Post("/vaults/{id}/mint", s.mint)
		r.Post("/vaults/{id}/redeem", s.redeem)
		r.Post("/vaults/{id}/swap", s.swap)
		r.Post("/fees/{id}/distribute", s.distribute)
		r.Post("/staking/{id}/stake", s.stake)
		r.Post("/staking/{id}/unstake", s.unstake)
		r.Post("/staking/{id}/claim", s.claim)
		r.Post("/zap/mint-and-sell", s.mintAndSell)
		r.Post("/zap/buy-and-redeem", s.buyAndRedeem)
		r.Post("/zap/buy-and-swap", s.buyAndSwap)
		r.Post("/zap/add-liquidity", s.addLiquidity)

		r.Route("/admin", s.adminRoutes)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s, "vaultd.rpc"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("rpc: response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe("rpc", r.Method+" "+route, rec.status, time.Since(start))
	})
}

func (s *Server) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func decode(r *http.Request, out interface{}) error {
	body := io.LimitReader(r.Body, maxRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, errStaleNonce):
		return http.StatusUnauthorized, "StaleNonce"
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, errAdminDisabled):
		return http.StatusNotFound, "AdminDisabled"
	case errors.Is(err, errNotFound), errors.Is(err, common.ErrUnknownVault):
		return http.StatusNotFound, common.Kind(err)
	case errors.Is(err, app.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, "ArchiveDisabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	}
	kind := common.Kind(err)
	switch kind {
	case "Unauthorized":
		return http.StatusForbidden, kind
	case "ModulePaused", "ReentrantCall":
		return http.StatusConflict, kind
	case "Internal":
		return http.StatusInternalServerError, kind
	default:
		return http.StatusUnprocessableEntity, kind
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{Error: &errorBody{Kind: kind, Message: message}})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("rpc request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
	writeError(w, status, kind, err.Error())
}
