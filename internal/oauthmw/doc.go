// Package oauthmw implements the OAuth 2.1 resource-server middleware:
// bearer-token validation backed by a token-introspection cache, scope
// enforcement, and the protected-resource-metadata endpoint (RFC 9728).
// discoveryd only validates tokens issued elsewhere; it never acts as
// an authorization server itself.
package oauthmw
