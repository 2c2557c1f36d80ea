package pairing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/actor/actortest"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/pairing"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/mrarosh/Pear-code/internal/protocol/protocoltest"
	"github.com/mrarosh/Pear-code/internal/sessionstore"
	"github.com/stretchr/testify/require"
)

const number = "15551234567"

type result struct {
	outcome pairing.Outcome
	err     error
}

type harness struct {
	t     *testing.T
	clock *actortest.FakeClock
	store *sessionstore.Store
	gw    *protocoltest.Gateway
	orch  *pairing.Orchestrator
}

func newHarness(t *testing.T, cfg config.PairingConfig) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: actortest.NewFakeClock(time.UnixMilli(1_700_000_000_000)),
		store: sessionstore.New(),
		gw:    protocoltest.NewGateway(),
	}
	var n atomic.Int64
	h.orch = pairing.New(cfg, h.store, h.gw.Factory,
		pairing.WithClock(h.clock),
		pairing.WithSessionIDs(func(time.Time) string {
			return fmt.Sprintf("pair-test-%d", n.Add(1))
		}),
	)
	return h
}

// start runs the orchestrator in the background and waits for the client to
// connect and the initial timers to be armed.
func (h *harness) start(ctx context.Context, wantTimers int) (<-chan result, *protocoltest.FakeClient) {
	h.t.Helper()
	out := make(chan result, 1)
	go func() {
		o, err := h.orch.Run(ctx, pairing.Request{RawNumber: number, Number: number})
		out <- result{outcome: o, err: err}
	}()

	var client *protocoltest.FakeClient
	select {
	case client = <-h.gw.Created():
	case <-time.After(2 * time.Second):
		h.t.Fatal("gateway client was not created")
	}
	select {
	case <-client.Connected():
	case <-time.After(2 * time.Second):
		h.t.Fatal("gateway client did not connect")
	}
	h.waitTimers(wantTimers)
	return out, client
}

func (h *harness) waitTimers(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.clock.Pending() == n },
		2*time.Second, 5*time.Millisecond, "want %d armed timers", n)
}

func (h *harness) result(out <-chan result) result {
	h.t.Helper()
	select {
	case r := <-out:
		return r
	case <-time.After(2 * time.Second):
		h.t.Fatal("orchestrator did not resolve")
		return result{}
	}
}

// finished waits for cleanup and checks that nothing was left behind.
func (h *harness) finished(client *protocoltest.FakeClient) {
	h.t.Helper()
	done := make(chan struct{})
	go func() {
		h.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("cleanup did not finish")
	}
	require.Equal(h.t, 0, h.clock.Pending(), "timers left armed")
	require.Equal(h.t, 0, h.store.Len(), "session left in store")
	require.Equal(h.t, 1, client.Terminations())
}

func TestRunRealCode(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.RequestFn = func(context.Context, string) (string, error) { return "ABCD1234", nil }
	}

	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	h.clock.Advance(1500 * time.Millisecond)

	r := h.result(out)
	require.NoError(t, r.err)
	require.Equal(t, pairing.OutcomeReal, r.outcome.Kind)
	require.Equal(t, "ABCD1234", r.outcome.Code)
	require.Equal(t, number, r.outcome.Number)
	require.Equal(t, "pair-test-1", r.outcome.SessionID)
	require.False(t, r.outcome.IsDemo())
	h.finished(client)

	// No late demo response follows.
	h.clock.Advance(time.Minute)
	select {
	case extra := <-out:
		t.Fatalf("unexpected second outcome: %+v", extra)
	default:
	}
}

func TestRunSilentAdapterTimesOut(t *testing.T) {
	cfg := config.Default().Pairing
	cfg.FallbackTimeout = 0
	h := newHarness(t, cfg)

	out, client := h.start(context.Background(), 1)
	h.clock.Advance(25 * time.Second)

	r := h.result(out)
	require.NoError(t, r.err)
	require.Equal(t, pairing.OutcomeDemo, r.outcome.Kind)
	require.Equal(t, pairing.ReasonTimeout, r.outcome.Reason)
	require.Equal(t, pairing.FallbackCode(number), r.outcome.Code)
	h.finished(client)
}

func TestRunFallbackTimerWinsBeforeTotal(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)

	out, client := h.start(context.Background(), 2)
	h.clock.Advance(15 * time.Second)

	r := h.result(out)
	require.Equal(t, pairing.OutcomeDemo, r.outcome.Kind)
	require.Equal(t, pairing.ReasonFallback, r.outcome.Reason)
	h.finished(client)
}

func TestRunAlreadyRegistered(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.RequestFn = func(context.Context, string) (string, error) {
			return "", protocol.ErrAlreadyRegistered
		}
	}

	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	h.clock.Advance(1500 * time.Millisecond)

	r := h.result(out)
	require.Equal(t, pairing.OutcomeClientError, r.outcome.Kind)
	require.Equal(t, pairing.ErrorAlreadyRegistered, r.outcome.Error)
	h.finished(client)
}

func TestRunCodeRequestTimesOut(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)

	// The default fake request blocks until its context is cancelled.
	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	h.clock.Advance(1500 * time.Millisecond)

	select {
	case <-client.Requested():
	case <-time.After(2 * time.Second):
		t.Fatal("pairing code was not requested")
	}
	h.waitTimers(3)
	h.clock.Advance(10 * time.Second)

	r := h.result(out)
	require.Equal(t, pairing.OutcomeDemo, r.outcome.Kind)
	require.Equal(t, pairing.ReasonCodeTimeout, r.outcome.Reason)
	h.finished(client)
}

func TestRunClosedBeforeOpenDegrades(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)

	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateClosed, "logged out")

	r := h.result(out)
	require.Equal(t, pairing.OutcomeDemo, r.outcome.Kind)
	require.Equal(t, "connection closed: logged out", r.outcome.Reason)
	h.finished(client)
}

func TestRunStrictPolicy(t *testing.T) {
	cfg := config.Default().Pairing
	cfg.FailurePolicy = config.PolicyStrict
	cfg.FallbackTimeout = 0
	h := newHarness(t, cfg)

	out, client := h.start(context.Background(), 1)
	h.clock.Advance(25 * time.Second)

	r := h.result(out)
	require.Equal(t, pairing.OutcomeServiceError, r.outcome.Kind)
	require.Equal(t, pairing.ErrorTimeout, r.outcome.Error)
	h.finished(client)
}

func TestRunConnectErrorDegrades(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.ConnectFn = func(context.Context, protocol.AuthState) error { return errors.New("dial refused") }
	}

	out := make(chan result, 1)
	go func() {
		o, err := h.orch.Run(context.Background(), pairing.Request{Number: number})
		out <- result{o, err}
	}()
	client := <-h.gw.Created()

	r := h.result(out)
	require.Equal(t, pairing.OutcomeDemo, r.outcome.Kind)
	require.Equal(t, "connection failed: dial refused", r.outcome.Reason)
	h.finished(client)
}

func TestRunClientDisconnect(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	ctx, cancel := context.WithCancel(context.Background())

	out, client := h.start(ctx, 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	cancel()

	r := h.result(out)
	require.ErrorIs(t, r.err, context.Canceled)
	require.Equal(t, pairing.OutcomeAbandoned, r.outcome.Kind)
	h.finished(client)
}

func TestRunCredentialsPersistedDuringAttempt(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	seen := make(chan []byte, 1)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.RequestFn = func(context.Context, string) (string, error) {
			c.UpdateCredentials(protocol.Credentials{Creds: []byte("creds")})
			s, ok := h.store.Get(c.SessionID)
			if ok {
				seen <- s.Credentials
			}
			return "ABCD1234", nil
		}
	}

	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	h.clock.Advance(1500 * time.Millisecond)

	require.Equal(t, pairing.OutcomeReal, h.result(out).outcome.Kind)
	require.Equal(t, []byte("creds"), <-seen)
	h.finished(client)
}

func TestRunConcurrentRequestsAreIndependent(t *testing.T) {
	cfg := config.Default().Pairing
	cfg.StabilizeDelay = time.Millisecond

	store := sessionstore.New()
	gw := protocoltest.NewGateway()
	gw.Configure = func(c *protocoltest.FakeClient) {
		c.ConnectFn = func(context.Context, protocol.AuthState) error {
			go c.Update(protocol.StateOpen, "")
			return nil
		}
		c.RequestFn = func(context.Context, string) (string, error) {
			return "CODE-" + c.SessionID, nil
		}
	}
	orch := pairing.New(cfg, store, gw.Factory, pairing.WithClock(actor.RealClock{}))

	const n = 12
	var wg sync.WaitGroup
	outcomes := make([]pairing.Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = orch.Run(context.Background(), pairing.Request{Number: number})
		}(i)
	}
	wg.Wait()
	orch.Wait()

	ids := map[string]bool{}
	for i, o := range outcomes {
		require.NoError(t, errs[i])
		require.Equal(t, pairing.OutcomeReal, o.Kind)
		require.Equal(t, "CODE-"+o.SessionID, o.Code)
		ids[o.SessionID] = true
	}
	require.Len(t, ids, n)
	require.Equal(t, 0, store.Len())
}

func TestRunFactoryFailureIsServiceError(t *testing.T) {
	store := sessionstore.New()
	failing := func(string, protocol.Handlers) (protocol.Client, error) {
		return nil, errors.New("no gateway")
	}
	orch := pairing.New(config.Default().Pairing, store, failing)

	o, err := orch.Run(context.Background(), pairing.Request{Number: number})
	require.NoError(t, err)
	require.Equal(t, pairing.OutcomeServiceError, o.Kind)
	require.Equal(t, pairing.ErrorService, o.Error)
	require.Equal(t, 0, store.Len())
}

func TestRunAdapterPanicDuringCodeRequest(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.RequestFn = func(context.Context, string) (string, error) {
			panic("gateway client exploded")
		}
	}

	out, client := h.start(context.Background(), 2)
	client.Update(protocol.StateOpen, "")
	h.waitTimers(3)
	h.clock.Advance(1500 * time.Millisecond)

	r := h.result(out)
	require.NoError(t, r.err)
	require.Equal(t, pairing.OutcomeServiceError, r.outcome.Kind)
	require.Equal(t, pairing.ErrorService, r.outcome.Error)
	h.finished(client)
}

func TestRunAdapterPanicDuringConnect(t *testing.T) {
	h := newHarness(t, config.Default().Pairing)
	h.gw.Configure = func(c *protocoltest.FakeClient) {
		c.ConnectFn = func(context.Context, protocol.AuthState) error {
			panic("dial exploded")
		}
	}

	out := make(chan result, 1)
	go func() {
		o, err := h.orch.Run(context.Background(), pairing.Request{RawNumber: number, Number: number})
		out <- result{o, err}
	}()
	client := <-h.gw.Created()

	r := h.result(out)
	require.Equal(t, pairing.OutcomeServiceError, r.outcome.Kind)
	require.Equal(t, pairing.ErrorService, r.outcome.Error)
	h.finished(client)
}
