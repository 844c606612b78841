// Package counter provides the live-connection counter shared by every worker
// process.
//
// Backends:
//   - Mapped: an 8-byte file mapped MAP_SHARED into each process and updated
//     with sync/atomic
//   - Redis: INCR/DECR on a single key
//   - Local: an in-process atomic, for tests and single-process runs
package counter
