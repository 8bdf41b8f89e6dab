// Package storage persists tracked targets and authorization sets.
//
// Drivers:
//   - "sqlite": single-file database (default)
//   - "bolt": bbolt key/value file, one JSON record per target
//   - "postgres": shared database, schema managed by golang-migrate
//
// Per-target check state (fingerprint, delivered resource hashes) is only
// ever written through UpdateCheckState, which is atomic and never recreates a
// target that was deleted while a check was in flight.
package storage
