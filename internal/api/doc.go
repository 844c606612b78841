// Package api provides the leader's client for the scoring service's token
// refresh endpoint.
//
// Only worker 0 runs a Refresher. When it gives up after too many consecutive
// failures, the worker terminates and the supervisor tears down the fleet.
package api
