// Package jwt signs and verifies the two token kinds used by tokenauth: short-lived
// access tokens and long-lived refresh tokens. Each kind lives in its own signing
// namespace with an independent key, algorithm, and TTL, so a token minted in one
// namespace never verifies in the other.
package jwt
