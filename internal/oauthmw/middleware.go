package oauthmw

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/discoveryd/discoveryd/pkg/logging"
	"github.com/discoveryd/discoveryd/pkg/oauth"
)

// exemptPaths lists the paths exempt from bearer enforcement: health,
// root, and the protected-resource-metadata endpoint.
var exemptPaths = map[string]bool{
	"/":       true,
	"/health": true,
	"/.well-known/oauth-protected-resource": true,
}

// Middleware enforces bearer-token authentication and scopes for the
// HTTP transport.
type Middleware struct {
	cfg    Config
	cache  *tokenCache
	ring   *introspector
	limits *attemptLimiter
}

// New constructs a Middleware. When cfg.Enabled is false, Wrap returns
// handlers that pass every request through unauthenticated.
//
// When the operator supplies an authorization server but no explicit
// introspection endpoint, New discovers the endpoint (and the scope
// list, if that is empty too) via RFC 8414 metadata (pkg/oauth.Client, shared with the rest of the OAuth
// stack) before the introspector is built, rather than requiring every
// OAUTH_* variable to be set by hand.
func New(cfg Config) *Middleware {
	if cfg.TokenCacheTTL <= 0 {
		cfg.TokenCacheTTL = 5 * time.Minute
	}
	if cfg.Enabled && cfg.AuthorizationServer != "" && cfg.IntrospectionEndpoint == "" {
		cfg = discoverMetadata(cfg)
	}
	return &Middleware{
		cfg:    cfg,
		cache:  newTokenCache(),
		ring:   newIntrospector(cfg),
		limits: newAttemptLimiter(20, time.Minute),
	}
}

// discoverMetadata fills in IntrospectionEndpoint and, when unset,
// SupportedScopes from the authorization server's published metadata.
// Discovery failures are logged and otherwise ignored: the introspector
// falls back to whatever was explicitly configured, and an empty
// IntrospectionEndpoint still degrades to the demo-token path outside
// production.
func discoverMetadata(cfg Config) Config {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := oauth.NewClient()
	meta, err := client.DiscoverMetadata(ctx, cfg.AuthorizationServer)
	if err != nil {
		logging.Warn("OAuth", "discovering metadata for %s: %v", cfg.AuthorizationServer, err)
		return cfg
	}
	if meta.IntrospectionEndpoint != "" {
		cfg.IntrospectionEndpoint = meta.IntrospectionEndpoint
	}
	if len(cfg.SupportedScopes) == 0 {
		cfg.SupportedScopes = meta.ScopesSupported
	}
	return cfg
}

type subjectKey struct{}

// Subject extracts the authenticated token's subject claim from ctx,
// if any.
func Subject(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// Wrap enforces bearer-token validation (and, when requiredScope is
// non-empty, scope membership) on next, exempting the fixed
// exemptPaths set.
func (m *Middleware) Wrap(next http.Handler, requiredScope string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.Enabled || exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			m.challenge(w, http.StatusUnauthorized, "invalid_request", err.Error(), "")
			return
		}

		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		result, err := m.validate(r.Context(), token, client)
		if err != nil || !result.Active {
			m.challenge(w, http.StatusUnauthorized, "invalid_token", "the access token is invalid or expired", "")
			return
		}

		if requiredScope != "" && !hasScope(result.Scope, requiredScope) {
			m.challenge(w, http.StatusForbidden, "insufficient_scope", "the request requires higher privileges", requiredScope)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, result.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) validate(ctx context.Context, token, remoteAddr string) (introspectionResult, error) {
	if cached, ok := m.cache.get(token); ok {
		return cached, nil
	}

	if m.cfg.IntrospectionEndpoint == "" {
		if !m.cfg.Production && token == demoToken {
			return introspectionResult{Active: true, Scope: strings.Join(m.cfg.SupportedScopes, " "), Subject: "demo"}, nil
		}
		return introspectionResult{}, fmt.Errorf("oauthmw: no introspection endpoint configured")
	}

	if !m.limits.allow(remoteAddr) {
		return introspectionResult{}, fmt.Errorf("oauthmw: rate limited")
	}

	result, err := m.ring.introspect(ctx, token)
	if err != nil {
		return introspectionResult{}, err
	}
	m.cache.put(token, result, m.cfg.TokenCacheTTL)
	return result, nil
}

func (m *Middleware) challenge(w http.ResponseWriter, status int, errCode, desc, scope string) {
	var b strings.Builder
	fmt.Fprintf(&b, `Bearer realm=%q`, m.cfg.Realm)
	if errCode != "" {
		fmt.Fprintf(&b, `, error=%q`, errCode)
	}
	if desc != "" {
		fmt.Fprintf(&b, `, error_description=%q`, desc)
	}
	if scope != "" {
		fmt.Fprintf(&b, `, scope=%q`, scope)
	}
	w.Header().Set("WWW-Authenticate", b.String())
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCode + `"}`))
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("missing or malformed Authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}

func hasScope(scopeClaim, required string) bool {
	for _, s := range strings.Fields(scopeClaim) {
		if s == required {
			return true
		}
	}
	return false
}

