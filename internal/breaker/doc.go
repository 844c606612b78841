// Package breaker implements the per-session error tracker.
//
// A Tracker keeps, for every error kind, the timestamps of occurrences inside a
// trailing time window. Once a kind reaches the configured count the tracker
// trips and the owning session must stop reconnecting.
package breaker
