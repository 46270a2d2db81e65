package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc"

	"workflow-scheme/backend/internal/config"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Principal is the caller identified by a verified access token.
type Principal struct {
	Subject         string
	Email           string
	OrganizationIDs []int64
	Scopes          []string
	// AllOrganizations is set for the development bypass principal.
	AllOrganizations bool
}

// CanAccess reports whether the principal may act inside the organization.
func (p *Principal) CanAccess(orgID int64) bool {
	return p.AllOrganizations || slices.Contains(p.OrganizationIDs, orgID)
}

// HasScope reports whether the token was granted scope.
func (p *Principal) HasScope(scope string) bool {
	return p.AllOrganizations || slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by RequireAuth.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

var devPrincipal = &Principal{Subject: "dev", Email: "dev@localhost", AllOrganizations: true}

// Auth verifies bearer access tokens issued by the configured OpenID provider.
type Auth struct {
	verifier   *oidc.IDTokenVerifier
	logger     Logger
	authBypass bool
}

// New creates a new Auth object using values from the application
// configuration. Outside the development bypass it discovers the provider
// and prepares a token verifier.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	shouldBypass := cfg.IsDev() && cfg.DevModeBypass
	a := &Auth{logger: logger, authBypass: shouldBypass}
	if shouldBypass {
		logger.Info("authentication bypassed in development mode")
		return a, nil
	}
	if cfg.Auth.Issuer == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	// Access tokens often carry an API audience rather than a client id.
	a.verifier = provider.Verifier(&oidc.Config{
		ClientID:          cfg.Auth.Audience,
		SkipClientIDCheck: cfg.Auth.Audience == "",
	})
	return a, nil
}

// NewWithVerifier creates an Auth around an existing verifier.
func NewWithVerifier(verifier *oidc.IDTokenVerifier, logger Logger) *Auth {
	return &Auth{verifier: verifier, logger: logger}
}

type accessClaims struct {
	Email           string  `json:"email"`
	OrganizationIDs []int64 `json:"org_ids"`
	Scope           string  `json:"scope"`
}

// RequireAuth is middleware that rejects requests without a valid bearer token
// and stores the resolved Principal in the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), devPrincipal)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}
		token, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			a.logger.Debug("token verification failed", "error", err)
			unauthorized(w, "invalid token: "+err.Error())
			return
		}

		var claims accessClaims
		if err := token.Claims(&claims); err != nil {
			unauthorized(w, "failed to parse token claims")
			return
		}
		p := &Principal{
			Subject:         token.Subject,
			Email:           claims.Email,
			OrganizationIDs: claims.OrganizationIDs,
			Scopes:          strings.Fields(claims.Scope),
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  "Unauthorized",
		"status": http.StatusUnauthorized,
		"detail": detail,
	})
}
