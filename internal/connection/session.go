package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/pointfarm/internal/breaker"
	"github.com/rickgao/pointfarm/internal/counter"
	"github.com/rickgao/pointfarm/internal/metrics"
	"github.com/rickgao/pointfarm/internal/model"
)

// Signer signs login messages for one wallet.
type Signer interface {
	Sign(ctx context.Context, message string) (string, error)
	Address() string
}

// PointsStore persists point balances.
type PointsStore interface {
	Update(ctx context.Context, address string, upd model.AccountUpdate) error
}

// Publisher receives point updates for downstream consumers.
type Publisher interface {
	PublishPoints(ctx context.Context, upd model.PointsUpdate) error
}

// Deps are a session's collaborators.
type Deps struct {
	Signer  Signer
	Store   PointsStore
	Events  Publisher      // optional
	Counter counter.Counter // optional
}

// authCache is the last signed login message.
type authCache struct {
	message   string
	signature string
	signedAt  time.Time
}

// Session keeps one account connected until its breaker trips or ctx ends.
// A Session is single-use: call Run once.
type Session struct {
	cfg     SessionConfig
	proxy   string
	deps    Deps
	tracker *breaker.Tracker
	logger  *slog.Logger

	now   func() time.Time
	auth  authCache
	state atomic.Int32
}

// NewSession creates a session for the signer's wallet using proxy.
func NewSession(cfg SessionConfig, proxy string, deps Deps, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Counter == nil {
		deps.Counter = counter.NewLocal()
	}

	return &Session{
		cfg:   cfg,
		proxy: proxy,
		deps:  deps,
		tracker: breaker.NewTracker(breaker.Settings{
			MaxErrors:  cfg.MaxErrors,
			TimeWindow: cfg.ErrorWindow,
		}),
		logger: logger.With("session", uuid.NewString()),
		now:    time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run connects, reconnects after failures, and returns when the breaker
// trips (*breaker.TooManyErrorsError) or ctx is done (ctx.Err()).
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	for {
		err := s.attempt(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case errors.Is(err, ErrTokenTimeout):
			metrics.TokenTimeouts.Inc()
			delay := randomDelay(s.cfg.RestartDelayMin, s.cfg.RestartDelayMax)
			s.logger.Warn("session token not received, restarting connection",
				"timeout", s.cfg.AuthTimeout,
				"restart_in", delay,
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}

		case err != nil:
			if tripErr := s.record(err); tripErr != nil {
				return tripErr
			}
		}

		if err := sleepCtx(ctx, s.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

// record classifies err and feeds it to the tracker.
func (s *Session) record(err error) error {
	kind := Classify(err)
	metrics.TransportErrors.WithLabelValues(kind).Inc()

	common := IsCommon(err)
	if common {
		s.logger.Debug("websocket error", "kind", kind, "error", err)
		if !s.cfg.CountCommonErrors {
			return nil
		}
	} else {
		s.logger.Warn("websocket error", "kind", kind, "error", err)
	}

	if tripErr := s.tracker.Record(kind, err, s.now()); tripErr != nil {
		metrics.BreakerTrips.WithLabelValues(kind).Inc()
		s.logger.Error("too many websocket errors, ending session", "error", tripErr)
		return tripErr
	}
	return nil
}

// credentials returns the cached login message while it is younger than the
// TTL, otherwise signs a new one.
func (s *Session) credentials(ctx context.Context) (message, signature string, err error) {
	now := s.now()
	if s.auth.signature != "" && now.Sub(s.auth.signedAt) < s.cfg.AuthCacheTTL {
		return s.auth.message, s.auth.signature, nil
	}

	message = strings.NewReplacer(
		"{address}", s.deps.Signer.Address(),
		"{timestamp}", strconv.FormatInt(now.UnixMilli(), 10),
	).Replace(s.cfg.AuthMessage)

	signature, err = s.deps.Signer.Sign(ctx, message)
	if err != nil {
		return "", "", err
	}

	s.auth = authCache{message: message, signature: signature, signedAt: now}
	return message, signature, nil
}

// attempt runs one connection from dial to teardown and returns the error
// that ended it.
func (s *Session) attempt(ctx context.Context) error {
	metrics.SessionAttempts.Inc()
	s.setState(StateHandshaking)
	defer s.setState(StateIdle)

	message, signature, err := s.credentials(ctx)
	if err != nil {
		return fmt.Errorf("sign auth message: %w", err)
	}

	clientCfg := s.cfg.Client
	clientCfg.Proxy = s.proxy
	client := NewClient(clientCfg, s.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	run := newAttempt()
	live := &liveMark{counter: s.deps.Counter, logger: s.logger}
	var wg sync.WaitGroup

	defer func() {
		s.setState(StateDraining)
		live.unmark(ctx)
		cancel()
		client.Interrupt()
		wg.Wait()
		if err := client.Close(); err != nil {
			s.logger.Debug("error closing websocket", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(attemptCtx, client, run)
	}()

	s.setState(StateAuthenticating)
	if err := client.WriteJSON(authRequest{
		Type: typeAuth,
		Data: authData{
			UserID:    s.deps.Signer.Address(),
			Message:   message,
			Signature: signature,
		},
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	s.logger.Debug("waiting for session token")
	timer := time.NewTimer(s.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case <-run.tokenReady:
	case err := <-run.shutdown:
		return err
	case <-timer.C:
		return ErrTokenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	live.mark(ctx)
	s.setState(StateLive)
	s.logger.Info("session token received, websocket connection established")

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeatLoop(attemptCtx, client, run)
	}()

	select {
	case err := <-run.shutdown:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attemptState is shared between an attempt and its child goroutines.
type attemptState struct {
	mu         sync.Mutex
	token      string
	tokenOnce  sync.Once
	tokenReady chan struct{}
	shutdown   chan error
}

func newAttempt() *attemptState {
	return &attemptState{
		tokenReady: make(chan struct{}),
		shutdown:   make(chan error, 1),
	}
}

func (a *attemptState) setToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
	a.tokenOnce.Do(func() { close(a.tokenReady) })
}

func (a *attemptState) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// raise signals shutdown. Only the first error is kept.
func (a *attemptState) raise(err error) {
	select {
	case a.shutdown <- err:
	default:
	}
}

func (s *Session) readLoop(ctx context.Context, client *Client, run *attemptState) {
	for {
		data, err := client.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				run.raise(fmt.Errorf("read: %w", err))
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			metrics.InboundMessages.WithLabelValues("invalid").Inc()
			s.logger.Warn("undecodable message", "error", err, "data", string(data))
			continue
		}

		switch m := msg.(type) {
		case AuthAck:
			metrics.InboundMessages.WithLabelValues(typeAuth).Inc()
			run.setToken(m.Token)
		case UserUpdate:
			metrics.InboundMessages.WithLabelValues(typeUserMsg).Inc()
			s.handlePoints(ctx, m)
		case Unknown:
			metrics.InboundMessages.WithLabelValues("unknown").Inc()
			s.logger.Warn("unknown message type received", "type", m.Type, "data", string(m.Raw))
		}
	}
}

func (s *Session) handlePoints(ctx context.Context, m UserUpdate) {
	address := s.deps.Signer.Address()
	daily := model.RoundPoints(m.DailyPoints)
	total := model.RoundPoints(m.TotalPoints)

	if err := s.deps.Store.Update(ctx, address, model.WithPoints(daily, total)); err != nil {
		s.logger.Warn("failed to persist points", "error", err)
	} else {
		metrics.PointUpdates.Inc()
	}

	if s.deps.Events != nil {
		upd := model.PointsUpdate{
			WalletAddress: address,
			DailyPoints:   daily,
			TotalPoints:   total,
			ReceivedAt:    s.now().UTC(),
		}
		if err := s.deps.Events.PublishPoints(ctx, upd); err != nil {
			s.logger.Warn("failed to publish points", "error", err)
		}
	}

	s.logger.Info("points updated", "daily_points", daily, "total_points", total)
}

func (s *Session) heartbeatLoop(ctx context.Context, client *Client, run *attemptState) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	address := s.deps.Signer.Address()
	for {
		err := client.WriteJSON(heartbeat{
			Type:       typeHeartbeat,
			Token:      run.currentToken(),
			Address:    address,
			TaskEnable: false,
		})
		if err != nil {
			if ctx.Err() == nil {
				run.raise(fmt.Errorf("heartbeat: %w", err))
			}
			return
		}
		metrics.HeartbeatsSent.Inc()
		s.logger.Debug("heartbeat sent, account is alive and farming")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
