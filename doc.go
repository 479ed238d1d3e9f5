// Package tokenauth is a dual-token session authentication engine: short-lived
// access tokens verified locally on every request, and long-lived refresh tokens
// that travel only in a signed HttpOnly cookie and are checked against an external
// RevocationGateway on every rotation.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator contracts [IdentityProvider] and [RevocationGateway], and the
// [AuthError] taxonomy. Token signing lives in package jwt, cookie transport in
// package cookie, and flow orchestration under internal/.
//
// # What this package must NOT do
//
//   - Hold cross-request state. Refresh validity is owned by the RevocationGateway.
//   - Hold a lock across gateway or provider calls.
//   - Return internal causes to clients. Every failure carries a fixed public message.
//   - Accept a refresh token from anywhere but the refresh cookie.
package tokenauth
