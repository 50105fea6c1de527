package oauthmw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// introspector calls the configured RFC 7662 token-introspection
// endpoint. When ClientID, ClientSecret and AuthorizationServer are all
// configured it authenticates
// the introspection call itself via the OAuth2 client-credentials
// grant (golang.org/x/oauth2/clientcredentials); otherwise it posts
// unauthenticated, matching servers
// that scope introspection access by network policy instead.
type introspector struct {
	cfg    Config
	client *http.Client
}

func newIntrospector(cfg Config) *introspector {
	client := http.DefaultClient
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.AuthorizationServer != "" {
		ccCfg := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     strings.TrimRight(cfg.AuthorizationServer, "/") + "/token",
		}
		client = ccCfg.Client(context.Background())
	}
	return &introspector{cfg: cfg, client: client}
}

type introspectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope"`
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// introspect calls the configured endpoint with an
// application/x-www-form-urlencoded body, per RFC 7662.
func (i *introspector) introspect(ctx context.Context, token string) (introspectionResult, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return introspectionResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return introspectionResult{}, fmt.Errorf("oauthmw: introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return introspectionResult{}, fmt.Errorf("oauthmw: introspection endpoint returned %d", resp.StatusCode)
	}

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return introspectionResult{}, fmt.Errorf("oauthmw: decoding introspection response: %w", err)
	}

	result := introspectionResult{Active: body.Active, Scope: body.Scope, Subject: body.Subject}
	if body.ExpiresAt > 0 {
		result.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	} else {
		result.ExpiresAt = time.Now().Add(i.cfg.TokenCacheTTL)
	}
	logging.Debug("OAuth", "introspected token for subject %s active=%v", body.Subject, body.Active)
	return result, nil
}
