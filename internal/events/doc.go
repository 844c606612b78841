// Package events publishes point updates for downstream consumers.
//
// Updates are JSON-encoded and keyed by wallet address so every update of
// one account lands on the same partition in order.
package events
