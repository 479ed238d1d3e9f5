// Package throttle provides a Redis-backed failed-login budget for
// [tokenauth.Builder.WithLoginThrottle].
//
// Counters use fixed windows: the first failure in a window sets the key TTL and
// later failures only increment. A successful login clears the identifier
// counter but never the IP counter.
package throttle
