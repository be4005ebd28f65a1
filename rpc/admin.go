package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"

	"vaultchain/native/proxy"
)

const defaultAdminScope = "vault:admin"

var (
	errAdminDisabled = errors.New("admin api disabled")
	errForbidden     = errors.New("forbidden")
)

// AdminAuth configures bearer tokens for the operator routes. Tokens are
// HS256 JWTs carrying Scope in their "scope" claim. An empty Secret disables
// the routes.
type AdminAuth struct {
	Secret    string
	Issuer    string
	Audience  string
	Scope     string
	ClockSkew time.Duration
}

// adminGate validates operator bearer tokens.
type adminGate struct {
	cfg    AdminAuth
	secret []byte
}

func newAdminGate(cfg AdminAuth) *adminGate {
	if cfg.Scope == "" {
		cfg.Scope = defaultAdminScope
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &adminGate{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.Secret))}
}

func (g *adminGate) parse(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(g.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if g.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.cfg.Issuer))
	}
	if g.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(g.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, want string) bool {
	switch v := claims["scope"].(type) {
	case string:
		for _, s := range strings.Fields(v) {
			if s == want {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.admin.secret) == 0 {
			s.fail(w, r, errAdminDisabled)
			return
		}
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
			s.fail(w, r, fmt.Errorf("%w: missing bearer token", errUnauthenticated))
			return
		}
		claims, err := s.admin.parse(strings.TrimSpace(raw[7:]))
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errUnauthenticated, err))
			return
		}
		if !hasScope(claims, s.admin.cfg.Scope) {
			s.fail(w, r, fmt.Errorf("%w: scope %q required", errForbidden, s.admin.cfg.Scope))
			return
		}
		subject, _ := claims.GetSubject()
		s.logger.Info("admin request",
			slog.String("path", r.URL.Path),
			slog.String("subject", subject))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminRoutes(r chi.Router) {
	r.Use(s.requireAdmin)
	r.Post("/credit", s.adminCredit)
	r.Post("/fees/pause", s.adminPauseFees)
	r.Post("/fees/split", s.adminSetSplit)
	r.Post("/proxy/{index}/upgrade", s.adminUpgrade)
}

type creditRequest struct {
	Token  string `json:"token"`
	ID     string `json:"id"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type splitRequest struct {
	StakingBps  uint32 `json:"stakingBps"`
	TreasuryBps uint32 `json:"treasuryBps"`
}

type upgradeRequest struct {
	Impl string `json:"impl"`
}

func (s *Server) adminCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := parseInt("id", req.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseInt("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	receipt, err := s.app.Credit(ctx, s.app.Admin(), req.Token, id, to, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{"token": req.Token}, receipt)
}

func (s *Server) adminPauseFees(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	receipt, err := s.app.PauseFeeDistribution(ctx, s.app.Admin(), req.Paused)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]bool{"paused": req.Paused}, receipt)
}

func (s *Server) adminSetSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	receipt, err := s.app.SetSplitRatio(ctx, s.app.Admin(), req.StakingBps, req.TreasuryBps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, req, receipt)
}

func (s *Server) adminUpgrade(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 8)
	if err != nil || int(index) >= len(proxy.Components()) {
		s.fail(w, r, fmt.Errorf("%w: proxy index %q", errNotFound, chi.URLParam(r, "index")))
		return
	}
	var req upgradeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	impl, err := parseAddress("impl", req.Impl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	c := proxy.Component(index)
	receipt, err := s.app.UpgradeComponent(ctx, s.app.Admin(), c, impl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{"component": c.String(), "impl": req.Impl}, receipt)
}
