// Package database provides PostgreSQL connection pool management for the
// account store.
//
// Every worker process opens its own small pool; the supervisor opens one
// for seeding accounts and for maintenance commands.
package database
