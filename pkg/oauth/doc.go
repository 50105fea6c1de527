// Package oauth implements OAuth 2.0 Authorization Server Metadata
// discovery (RFC 8414), with an OpenID Connect discovery fallback.
//
// The resource-server middleware (internal/oauthmw) uses it at startup
// to locate the token-introspection endpoint and supported scopes of a
// configured authorization server, so operators only have to set
// OAUTH_AUTHORIZATION_SERVER rather than every OAUTH_* variable by
// hand.
//
// Discovered metadata is cached per issuer with a TTL, and concurrent
// fetches for the same issuer are collapsed onto a single request via
// singleflight:
//
//	client := oauth.NewClient()
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
package oauth
