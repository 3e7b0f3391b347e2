// Package httpapi exposes invitation claiming, entitlement checks and the
// admin grant surface over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-invites/carrier"
	"github.com/goliatone/go-invites/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DefaultIdentityHeader = "X-Authenticated-Identity"
	DefaultAdminHeader    = "X-Admin-Actor"

	defaultRequestTimeout = 30 * time.Second
)

var (
	ErrUnauthenticated = errors.New("httpapi: authenticated identity is required")
	ErrAdminRequired   = errors.New("httpapi: admin actor is required")
)

// Backend is the invitation surface the routes call. The go-command
// InvitationBus satisfies it.
type Backend interface {
	Invite(ctx context.Context, req core.InviteRequest) (core.InviteResult, error)
	IssueToken(ctx context.Context, req core.IssueTokenRequest) (core.InvitationToken, error)
	Claim(ctx context.Context, req core.ClaimRequest) (core.ClaimResult, error)
	ResolveEntitlement(ctx context.Context, identity string, resourceRef string) (core.Decision, error)
	GrantOverride(ctx context.Context, req core.GrantOverrideRequest) (core.EntitlementGrant, error)
	RecordGrant(ctx context.Context, req core.RecordGrantRequest) (core.EntitlementGrant, error)
	RevokeGrant(ctx context.Context, req core.RevokeGrantRequest) (core.EntitlementGrant, error)
	TransitionProfile(ctx context.Context, profileID string, to string) (core.Profile, error)
	ListGrants(ctx context.Context, subject string, includeRevoked bool) ([]core.EntitlementGrant, error)
}

// IdentityResolver returns the authenticated caller, or an empty string when
// the request is anonymous.
type IdentityResolver func(r *http.Request) string

// HeaderIdentity reads the caller from a header set by the auth proxy.
func HeaderIdentity(header string) IdentityResolver {
	header = strings.TrimSpace(header)
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	}
}

type Server struct {
	backend       Backend
	identity      IdentityResolver
	admin         IdentityResolver
	carrier       *carrier.Carrier
	claimRedirect string
	metrics       http.Handler
	logger        glog.Logger
	timeout       time.Duration
}

type Option func(*Server)

func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(s *Server) {
		if resolver != nil {
			s.identity = resolver
		}
	}
}

// WithAdminResolver enables the admin routes. Without it they answer 403 for
// every request. The resolver must only trust input an upstream auth layer
// controls; a header resolver is safe only behind a proxy that strips the
// header from client requests.
func WithAdminResolver(resolver IdentityResolver) Option {
	return func(s *Server) {
		if resolver != nil {
			s.admin = resolver
		}
	}
}

// WithCarrier enables the redirect claim route. claimRedirect is the page
// URL invite links point at; when set, invite responses carry a claim_url.
func WithCarrier(c *carrier.Carrier, claimRedirect string) Option {
	return func(s *Server) {
		s.carrier = c
		s.claimRedirect = strings.TrimSpace(claimRedirect)
	}
}

func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewServer(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("httpapi: backend is required")
	}
	s := &Server{
		backend:  backend,
		identity: HeaderIdentity(DefaultIdentityHeader),
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = glog.Ensure(s.logger)
	if s.admin == nil {
		s.logger.Warn("admin resolver not configured, admin routes will refuse every request")
	}
	return s, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.With(s.requireAdmin).Post("/invites", s.handleInvite)
	r.With(s.requireAdmin).Post("/tokens", s.handleIssueToken)
	r.Post("/claims", s.handleClaim)
	if s.carrier != nil {
		r.Get("/claims/redirect", s.handleClaimRedirect)
	}
	r.Get("/entitlements", s.handleResolve)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/overrides", s.handleGrantOverride)
		r.Post("/grants", s.handleRecordGrant)
		r.Get("/grants", s.handleListGrants)
		r.Delete("/grants/{id}", s.handleRevokeGrant)
		r.Post("/profiles/{id}/transition", s.handleTransition)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

type adminKey struct{}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.admin == nil {
			s.respondError(w, r, ErrAdminRequired)
			return
		}
		actor := strings.TrimSpace(s.admin(r))
		if actor == "" {
			s.respondError(w, r, ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, actor)))
	})
}

func adminActor(ctx context.Context) string {
	actor, _ := ctx.Value(adminKey{}).(string)
	return actor
}
