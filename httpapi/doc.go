// Package httpapi mounts the signup, login, refresh and logout endpoints of a
// tokenauth.Engine on an http.ServeMux.
//
// All endpoints are POST under a configurable prefix (default "/auth"). Success
// bodies carry the access token and identity; the refresh token only ever
// travels in the signed cookie. Failures use the tokenauth error envelope.
//
// RequestLogger and RateLimit are the ambient middleware used by cmd/tokenauth.
package httpapi
