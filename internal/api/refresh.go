package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRefreshExhausted is returned by Refresher.Run after too many consecutive failures.
var ErrRefreshExhausted = errors.New("token refresh failed too many times")

// ErrEmptyToken is returned when the endpoint answers without an access token.
var ErrEmptyToken = errors.New("refresh response has no access token")

// TokenResponse is the refresh endpoint's reply.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the current refresh token for a new access token.
// A rotated refresh token replaces the current one.
func (c *Client) Refresh(ctx context.Context) (TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, refreshRequest{RefreshToken: c.currentRefreshToken()}, &resp); err != nil {
		return TokenResponse{}, err
	}
	if resp.AccessToken == "" {
		return TokenResponse{}, ErrEmptyToken
	}
	if resp.RefreshToken != "" {
		c.setRefreshToken(resp.RefreshToken)
	}
	return resp, nil
}

// defaultRefreshInterval applies when NewRefresher is given a non-positive interval.
const defaultRefreshInterval = 10 * time.Minute

// Refresher keeps the leader's access token fresh. Sessions authenticate
// with signed messages and never read this token; the refresher acts as the
// fleet's liveness gate, and a Run that returns ends the whole farm.
type Refresher struct {
	client      *Client
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewRefresher creates a refresher that calls client every interval.
func NewRefresher(client *Client, interval time.Duration, maxFailures int, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFailures < 1 {
		maxFailures = 1
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Refresher{
		client:      client,
		interval:    interval,
		maxFailures: maxFailures,
		logger:      logger.With("component", "refresher"),
	}
}

// Token returns the latest access token ("" before the first success).
// It is kept for inspection; nothing in the farm consumes it.
func (r *Refresher) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Run refreshes immediately and then every interval. It returns nil when ctx
// is cancelled and ErrRefreshExhausted after maxFailures consecutive failures.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	failures := 0
	for {
		resp, err := r.client.Refresh(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			failures++
			r.logger.Warn("token refresh failed",
				"error", err,
				"consecutive_failures", failures,
				"max_failures", r.maxFailures,
			)
			if failures >= r.maxFailures {
				return fmt.Errorf("%w: %w", ErrRefreshExhausted, err)
			}
		default:
			if failures > 0 {
				r.logger.Info("token refresh recovered", "after_failures", failures)
			}
			failures = 0
			r.mu.Lock()
			r.token = resp.AccessToken
			r.mu.Unlock()
			r.logger.Debug("token refreshed", "expires_in", resp.ExpiresIn)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
