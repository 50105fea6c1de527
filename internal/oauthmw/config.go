package oauthmw

import "time"

// Config mirrors the OAUTH_* environment variables.
type Config struct {
	Enabled bool

	ResourceServerURI     string
	Realm                 string
	AuthorizationServer   string
	IntrospectionEndpoint string
	ClientID              string
	ClientSecret          string
	TokenCacheTTL         time.Duration
	SupportedScopes       []string

	// Production gates the demo-token fallback: a fixed demo token is
	// accepted only when no introspection endpoint is configured and
	// the process is not in production mode.
	Production bool
}

const demoToken = "demo-token-unsafe-for-production"
