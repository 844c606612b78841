package farm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/pointfarm/internal/breaker"
	"github.com/rickgao/pointfarm/internal/connection"
	"github.com/rickgao/pointfarm/internal/model"
	"github.com/rickgao/pointfarm/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory AccountStore.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	getErrs  map[string]map[int]error // error for the nth Get of an address
	gets     map[string]int
	updates  []string
}

func newMemStore(accounts ...model.Account) *memStore {
	s := &memStore{
		accounts: make(map[string]model.Account),
		getErrs:  make(map[string]map[int]error),
		gets:     make(map[string]int),
	}
	for _, a := range accounts {
		s.accounts[a.WalletAddress] = a
	}
	return s
}

func (s *memStore) Get(ctx context.Context, address string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[address]++
	if err := s.getErrs[address][s.gets[address]]; err != nil {
		return model.Account{}, err
	}
	acc, ok := s.accounts[address]
	if !ok {
		return model.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (s *memStore) Update(ctx context.Context, address string, upd model.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[address]
	if !ok {
		return store.ErrNotFound
	}
	if upd.Proxy != nil {
		acc.Proxy = *upd.Proxy
		s.updates = append(s.updates, *upd.Proxy)
	}
	s.accounts[address] = acc
	return nil
}

func (s *memStore) remove(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, address)
}

func (s *memStore) proxyOf(address string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[address].Proxy
}

func (s *memStore) getCount(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[address]
}

// fakeProxies hands out proxy-1, proxy-2, ...
type fakeProxies struct {
	mu       sync.Mutex
	next     int
	released []string
	claimed  []string
}

func (f *fakeProxies) Acquire(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("http://proxy-%d:8080", f.next), nil
}

func (f *fakeProxies) Release(proxy string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, proxy)
}

func (f *fakeProxies) Claim(proxy string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, proxy)
}

func (f *fakeProxies) snapshot() (released, claimed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...), append([]string(nil), f.claimed...)
}

// runnerFunc adapts a function to Runner.
type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

// blockUntilCancel is a session that stays live until shutdown.
func blockUntilCancel(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingFactory counts sessions per account and runs behave for each.
type recordingFactory struct {
	mu      sync.Mutex
	calls   map[string]int
	proxies map[string][]string
	behave  func(acc model.Account, call int) Runner
}

func newRecordingFactory(behave func(acc model.Account, call int) Runner) *recordingFactory {
	return &recordingFactory{
		calls:   make(map[string]int),
		proxies: make(map[string][]string),
		behave:  behave,
	}
}

func (f *recordingFactory) factory(acc model.Account, logger *slog.Logger) (Runner, error) {
	f.mu.Lock()
	f.calls[acc.WalletAddress]++
	call := f.calls[acc.WalletAddress]
	f.proxies[acc.WalletAddress] = append(f.proxies[acc.WalletAddress], acc.Proxy)
	f.mu.Unlock()
	return f.behave(acc, call), nil
}

func (f *recordingFactory) count(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *recordingFactory) seenProxies(address string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.proxies[address]...)
}

func fastConfig() Config {
	return Config{
		MonitorInterval:    10 * time.Millisecond,
		RotationDelay:      time.Millisecond,
		DrainTimeout:       time.Second,
		ResolveConcurrency: 4,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// runPool starts p.Run in the background and returns a stop function that
// cancels it and returns its error.
func runPool(t *testing.T, p *Pool, addresses []string) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, addresses) }()

	var once sync.Once
	var result error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-errCh:
			case <-time.After(3 * time.Second):
				t.Fatal("pool did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		r    Result
		want string
		ok   bool
	}{
		{ResultCancelled, "cancelled", false},
		{ResultFailed, "failed", true},
		{ResultDeleted, "deleted", false},
		{ResultInvalidProxy, "invalid proxy", false},
		{ResultInvalidKey, "invalid key", false},
		{Result(99), "unknown", false},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.r.Restartable(); got != tt.ok {
			t.Errorf("%s.Restartable() = %v, want %v", tt.want, got, tt.ok)
		}
	}
}

func TestPool_SkipsMissingAccounts(t *testing.T) {
	st := newMemStore(
		model.Account{WalletAddress: "0xa", Proxy: "http://a:1"},
		model.Account{WalletAddress: "0xb", Proxy: "http://b:1"},
	)
	px := &fakeProxies{}
	rf := newRecordingFactory(func(model.Account, int) Runner { return runnerFunc(blockUntilCancel) })

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	stop := runPool(t, p, []string{"0xa", "0xb", "0xmissing"})

	waitFor(t, "both sessions", func() bool { return rf.count("0xa") == 1 && rf.count("0xb") == 1 })

	if s := p.Stats(); s.Tasks != 2 {
		t.Errorf("Tasks = %d, want 2", s.Tasks)
	}
	_, claimed := px.snapshot()
	if len(claimed) != 2 {
		t.Errorf("claimed %v, want the two persisted proxies", claimed)
	}
	if rf.count("0xmissing") != 0 {
		t.Error("missing account should not get a session")
	}

	if err := stop(); err != nil {
		t.Errorf("Run() = %v, want nil on cancel", err)
	}
}

func TestPool_AssignsProxyWhenMissing(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa"})
	px := &fakeProxies{}
	rf := newRecordingFactory(func(model.Account, int) Runner { return runnerFunc(blockUntilCancel) })

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "session", func() bool { return rf.count("0xa") == 1 })

	if got := st.proxyOf("0xa"); got != "http://proxy-1:8080" {
		t.Errorf("persisted proxy = %q", got)
	}
	if got := rf.seenProxies("0xa"); len(got) != 1 || got[0] != "http://proxy-1:8080" {
		t.Errorf("session proxies = %v", got)
	}
}

func TestPool_RotatesProxyAfterFailure(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://old:1"})
	px := &fakeProxies{}
	trip := &breaker.TooManyErrorsError{Kind: "generic", Count: 3, Window: time.Minute}
	rf := newRecordingFactory(func(_ model.Account, call int) Runner {
		if call == 1 {
			return runnerFunc(func(context.Context) error { return trip })
		}
		return runnerFunc(blockUntilCancel)
	})

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "second session", func() bool { return rf.count("0xa") == 2 })

	released, _ := px.snapshot()
	if len(released) != 1 || released[0] != "http://old:1" {
		t.Errorf("released = %v, want the old proxy", released)
	}
	if got := rf.seenProxies("0xa"); got[1] != "http://proxy-1:8080" {
		t.Errorf("second session proxy = %q", got[1])
	}
	if got := st.proxyOf("0xa"); got != "http://proxy-1:8080" {
		t.Errorf("persisted proxy = %q", got)
	}
}

func TestPool_InvalidProxyRetiresWhenRotationDisabled(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://bad:1"})
	px := &fakeProxies{}
	authErr := &breaker.TooManyErrorsError{
		Kind:   "proxy_auth",
		Count:  3,
		Window: time.Minute,
		Last:   fmt.Errorf("dial: 407 %s", connection.ProxyAuthRequired),
	}
	rf := newRecordingFactory(func(model.Account, int) Runner {
		return runnerFunc(func(context.Context) error { return authErr })
	})

	cfg := fastConfig()
	cfg.DisableAutoProxyChange = true
	p := NewPool(cfg, Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "retirement", func() bool { return p.Stats().Retired == 1 })
	// Several monitor ticks later the loop must not have been restarted.
	time.Sleep(50 * time.Millisecond)

	if n := rf.count("0xa"); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
	released, _ := px.snapshot()
	if len(released) != 0 {
		t.Errorf("released = %v, want none with rotation disabled", released)
	}
}

func TestPool_RotationDisabledRetriesOtherErrors(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	rf := newRecordingFactory(func(_ model.Account, call int) Runner {
		if call < 3 {
			return runnerFunc(func(context.Context) error { return errors.New("connection reset by peer") })
		}
		return runnerFunc(blockUntilCancel)
	})

	cfg := fastConfig()
	cfg.DisableAutoProxyChange = true
	p := NewPool(cfg, Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "third session", func() bool { return rf.count("0xa") == 3 })

	for _, got := range rf.seenProxies("0xa") {
		if got != "http://p:1" {
			t.Errorf("proxy changed to %q with rotation disabled", got)
		}
	}
}

func TestPool_DeletedAccountIsNotRestarted(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	rf := newRecordingFactory(func(model.Account, int) Runner {
		return runnerFunc(func(context.Context) error {
			st.remove("0xa")
			return errors.New("session ended")
		})
	})

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "retirement", func() bool { return p.Stats().Retired == 1 })
	time.Sleep(50 * time.Millisecond)

	if n := rf.count("0xa"); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestPool_FailedLoopIsRestarted(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	rf := newRecordingFactory(func(model.Account, int) Runner { return runnerFunc(blockUntilCancel) })

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())

	// The first lookup happens during startup; the second fails inside the
	// account loop, which the monitor then restarts.
	st.getErrs["0xa"] = map[int]error{2: errors.New("database is locked")}

	runPool(t, p, []string{"0xa"})

	waitFor(t, "session after restart", func() bool { return rf.count("0xa") == 1 })

	if got := st.getCount("0xa"); got < 3 {
		t.Errorf("Get called %d times, want startup + failed + restarted lookups", got)
	}
	if s := p.Stats(); s.Retired != 0 || s.Running != 1 {
		t.Errorf("Stats = %+v, want one running loop", s)
	}
}

func TestPool_InvalidKeyRetires(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	var calls atomic.Int32
	factory := func(model.Account, *slog.Logger) (Runner, error) {
		calls.Add(1)
		return nil, errors.New("invalid private key")
	}

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: factory}, testLogger())
	runPool(t, p, []string{"0xa"})

	waitFor(t, "retirement", func() bool { return p.Stats().Retired == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("factory calls = %d, want 1", n)
	}
}

type leaderFunc func(ctx context.Context) error

func (f leaderFunc) Run(ctx context.Context) error { return f(ctx) }

func TestPool_TerminatesWhenLeaderStops(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}

	var cancelled atomic.Bool
	rf := newRecordingFactory(func(model.Account, int) Runner {
		return runnerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		})
	})

	release := make(chan struct{})
	refreshErr := errors.New("refresh exhausted")
	leader := leaderFunc(func(ctx context.Context) error {
		select {
		case <-release:
			return refreshErr
		case <-ctx.Done():
			return nil
		}
	})

	p := NewPool(fastConfig(), Deps{Store: st, Proxies: px, NewSession: rf.factory, Leader: leader}, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background(), []string{"0xa"}) }()

	waitFor(t, "session", func() bool { return rf.count("0xa") == 1 })
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTerminate) {
			t.Errorf("Run() = %v, want ErrTerminate", err)
		}
		if !errors.Is(err, refreshErr) {
			t.Errorf("Run() = %v, want the refresher error wrapped", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not terminate")
	}
	if !cancelled.Load() {
		t.Error("account session was not cancelled")
	}
}

func TestPool_DrainTimeout(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	rf := newRecordingFactory(func(model.Account, int) Runner {
		return runnerFunc(func(context.Context) error {
			<-stuck
			return nil
		})
	})

	cfg := fastConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	p := NewPool(cfg, Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, []string{"0xa"}) }()

	waitFor(t, "session", func() bool { return rf.count("0xa") == 1 })
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not time out")
	}
}

func TestPool_InitialDelay(t *testing.T) {
	st := newMemStore(model.Account{WalletAddress: "0xa", Proxy: "http://p:1"})
	px := &fakeProxies{}
	rf := newRecordingFactory(func(model.Account, int) Runner { return runnerFunc(blockUntilCancel) })

	cfg := fastConfig()
	cfg.InitialDelayMin = time.Hour
	cfg.InitialDelayMax = time.Hour
	p := NewPool(cfg, Deps{Store: st, Proxies: px, NewSession: rf.factory}, testLogger())
	stop := runPool(t, p, []string{"0xa"})

	time.Sleep(50 * time.Millisecond)
	if n := rf.count("0xa"); n != 0 {
		t.Errorf("sessions = %d before the initial delay elapsed", n)
	}
	if s := p.Stats(); s.Running != 1 {
		t.Errorf("Running = %d, want the delayed loop counted", s.Running)
	}
	if err := stop(); err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestRandomDelay(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := randomDelay(30*time.Second, 60*time.Second)
		if d < 30*time.Second || d > 60*time.Second {
			t.Fatalf("randomDelay = %v, out of range", d)
		}
	}
	if d := randomDelay(5*time.Second, time.Second); d != 5*time.Second {
		t.Errorf("randomDelay with hi < lo = %v, want lo", d)
	}
}
