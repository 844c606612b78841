// Package connection implements one account's session against the scoring
// service.
//
// A Session repeatedly:
//   - signs (or reuses) the login message
//   - dials the WebSocket endpoint through the account's proxy
//   - sends extension_auth and waits for the session token
//   - marks itself live in the shared counter and starts the heartbeat
//   - dispatches inbound messages until the socket fails
//
// Failures are classified by kind and fed to a breaker.Tracker. When the
// tracker trips, Run returns and the account loop decides what happens next.
package connection
