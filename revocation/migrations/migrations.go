// Package migrations embeds the SQLite schema for the revocation ledger.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
