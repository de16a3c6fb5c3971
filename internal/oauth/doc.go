// Package oauth implements the provider side of the authorization-code flow:
// CSRF state minting and comparison, consent URLs, and the code-for-token
// exchange for each supported provider.
//
// Exchange and verification calls go through golang.org/x/oauth2 and a
// per-provider circuit breaker. Upstream response bodies are never returned to
// callers; errors carry only the operation and the upstream status.
package oauth
