// Package flows contains pure-function orchestrators for the session lifecycle:
// issuance, rotation, revocation and access verification.
//
// Each flow function (RunIssue, RunRotate, RunRevoke, RunVerify) accepts a typed
// dependency struct and returns a classified result. Flows never touch HTTP
// requests or cookies; the Engine extracts the refresh token before calling in
// and attaches the outcome afterwards.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenauth (to avoid import cycles).
//   - Hold a lock across a gateway call.
package flows
