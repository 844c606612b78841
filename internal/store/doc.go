// Package store persists farm accounts.
//
// Two backends share the same table layout:
//   - Postgres (pgx pool), for fleets spread over several hosts
//   - SQLite (modernc, pure Go), for single-host farms
//
// Accounts are keyed by wallet address. Points and the assigned proxy are the
// only columns that change after seeding.
package store
