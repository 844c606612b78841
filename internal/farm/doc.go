// Package farm runs one worker process's share of accounts.
//
// Each account gets a long-running loop that looks the account up, makes
// sure it has a proxy, runs connection sessions back to back, and rotates the
// proxy after every failed session (unless rotation is disabled). The Pool
// owns those loops: it staggers their start, restarts loops that died, logs
// process stats once a minute, and stops everything when the leader's token
// refresher gives up.
package farm
