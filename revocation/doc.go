// Package revocation provides reference RevocationGateway implementations.
//
// Every gateway enforces single-use refresh identifiers: the first successful
// Refresh for a jti consumes it, and any later Refresh for the same jti, or for a
// jti recorded by Logout, answers false. The check and the consume happen in one
// atomic step, so concurrent rotations of the same token have exactly one winner.
//
//   - [Redis]: Lua script over SET NX, shared across processes.
//   - [SQLite]: primary-key insert, shared across processes on one host.
//   - [Memory]: mutex-guarded maps for a single process and tests.
package revocation

import "errors"

// ErrUnavailable wraps backend failures so callers can tell them apart from a
// refused jti.
var ErrUnavailable = errors.New("revocation backend unavailable")

// ErrEmptyJTI is returned for an empty refresh identifier.
var ErrEmptyJTI = errors.New("empty jti")
