// Package supervisor splits the account and proxy lists across worker
// processes, starts the workers, and watches the leader.
//
// Worker 0 is the leader: it also runs the token refresher, so when it exits
// the supervisor stops the remaining workers and returns ErrLeaderExited.
// Workers receive their Input as JSON on stdin.
package supervisor
