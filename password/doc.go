// Package password hashes and verifies credentials for identity providers.
//
// Two [Hasher] implementations are provided. [Argon2] encodes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] wraps golang.org/x/crypto/bcrypt. Both reject passwords shorter than
// [MinPasswordBytes] or longer than their configured maximum, and [Hasher.NeedsUpgrade]
// reports when a stored hash was produced with weaker parameters.
//
// Plaintext passwords are never logged or stored by this package.
package password
