// Package middleware exposes the HTTP authorization guard built on top of
// tokenauth.Engine.
//
// # Guards
//
//   - [Guard]: resolves auto-refresh from a route policy.
//   - [RequireAccessOnly]: rejects expired access tokens outright.
//   - [RequireAutoRefresh]: always rotates from the refresh cookie on failure.
//
// A request moves Unauthenticated → Verifying → Authenticated, or through
// AutoRefreshing when the access token fails and auto-refresh applies. Every
// rejection is terminal and written as the JSON error envelope.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Read a refresh token from anywhere but the Engine's cookie codec.
package middleware
