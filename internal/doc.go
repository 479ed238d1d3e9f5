// Package internal groups the engine's private packages.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestration of issue, rotate, revoke and verify
//
// Nothing here appears in the public tokenauth API.
package internal
