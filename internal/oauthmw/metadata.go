package oauthmw

import (
	"encoding/json"
	"net/http"
)

// protectedResourceMetadata is the RFC 9728 OAuth 2.0 Protected
// Resource Metadata document.
type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
	BearerMethods        []string `json:"bearer_methods_supported"`
}

// MetadataHandler serves /.well-known/oauth-protected-resource with a
// 3600s cache lifetime.
func (m *Middleware) MetadataHandler() http.Handler {
	doc := protectedResourceMetadata{
		Resource:        m.cfg.ResourceServerURI,
		ScopesSupported: m.cfg.SupportedScopes,
		BearerMethods:   []string{"header"},
	}
	if m.cfg.AuthorizationServer != "" {
		doc.AuthorizationServers = []string{m.cfg.AuthorizationServer}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=3600")
		_ = json.NewEncoder(w).Encode(doc)
	})
}

// HealthHandler serves the exempt /health liveness endpoint.
func (m *Middleware) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
