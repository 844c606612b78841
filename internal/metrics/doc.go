// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session attempts, transport errors by kind, breaker trips
//   - Inbound messages by type, heartbeats, point updates
//   - Account restarts, retirements, proxy rotations
//   - Live connections (this process and farm-wide)
//
// Workers and the supervisor each expose the default registry over HTTP.
package metrics
