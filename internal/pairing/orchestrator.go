// Package pairing drives one pairing-code handshake per request.
//
// Each request runs on its own actor. The reducer decides, the runtime
// executes: timers, the gateway connection and the code request all report
// back as mailbox inputs, and the first terminal input reduced sets the
// outcome. Cleanup (timer cancellation, transport termination and session
// removal) runs exactly once on every exit path.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/logger"
	"github.com/mrarosh/Pear-code/internal/metrics"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/mrarosh/Pear-code/internal/sessionstore"
)

// SessionStore is the process-wide session map used by the orchestrator.
type SessionStore interface {
	protocol.CredentialStore
	Put(id string, now time.Time) (*sessionstore.Session, error)
	Delete(id string) bool
	Len() int
}

// Orchestrator runs pairing attempts.
type Orchestrator struct {
	cfg     config.PairingConfig
	store   SessionStore
	factory protocol.Factory
	clock   actor.Clock
	newID   func(time.Time) string

	inflight sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock. Tests use actortest.FakeClock.
func WithClock(c actor.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(fn func(time.Time) string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New returns an Orchestrator.
func New(cfg config.PairingConfig, store SessionStore, factory protocol.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		store:   store,
		factory: factory,
		clock:   actor.RealClock{},
		newID:   NewSessionID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sessions returns how many sessions are currently stored.
func (o *Orchestrator) Sessions() int { return o.store.Len() }

// Wait blocks until every started attempt has been cleaned up.
func (o *Orchestrator) Wait() { o.inflight.Wait() }

// Run performs one pairing attempt and returns its outcome.
//
// When ctx is cancelled before resolution the attempt is abandoned: Run
// returns an OutcomeAbandoned outcome together with ctx.Err(). Cleanup may
// still be in progress when Run returns; Wait observes its completion.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Number == "" {
		return Outcome{}, &RequestError{Kind: ErrorInvalidNumber}
	}

	start := o.clock.Now()
	id, err := o.allocate(start)
	if err != nil {
		logger.Errorf("[pair] allocate session: %v", err)
		return Outcome{Kind: OutcomeServiceError, Number: req.Number, Error: ErrorService}, nil
	}

	rt := newRuntime(id, o.clock, o.store.Delete)
	a := actor.New(newState(id, req.Number, o.cfg), Reduce, rt,
		actor.WithHooks(actor.Hooks[State]{
			OnTransition: func(prev, next State, _ actor.Input) {
				if prev.FSM != next.FSM {
					logger.Tracef("[pair] session %s %s -> %s", id, prev.FSM, next.FSM)
				}
			},
			OnPanic: func(r any) {
				logger.Errorf("[pair] session %s panic: %v", id, r)
				rt.deliver(serviceErrorOutcome(State{Number: req.Number, SessionID: id}, ErrorService))
				rt.cleanup()
			},
		}),
	)

	sess, err := protocol.NewSession(id, o.store, o.factory, o.clock.Now, func(u protocol.ConnectionUpdate) {
		a.Send(evConnectionUpdate{State: u.State, Reason: u.Reason})
	})
	if err != nil {
		o.store.Delete(id)
		logger.Errorf("[pair] session %s: %v", id, err)
		return Outcome{Kind: OutcomeServiceError, Number: req.Number, SessionID: id, Error: ErrorService}, nil
	}
	rt.session = sess

	metrics.PairingStarted()
	o.inflight.Add(1)
	go o.reap(a, rt)

	logger.Infof("[pair] session %s started for %s", id, req.Number)
	a.Start()
	a.Enqueue(cmdStart{NowMs: start.UnixMilli()})

	var (
		outcome Outcome
		runErr  error
	)
	select {
	case outcome = <-rt.delivered:
	case <-ctx.Done():
		runErr = ctx.Err()
		if !a.Send(evClientGone{}) {
			rt.deliver(Outcome{Kind: OutcomeAbandoned, Number: req.Number, SessionID: id})
			rt.cleanup()
		}
		outcome = <-rt.delivered
		if outcome.Kind != OutcomeAbandoned {
			// Resolved before the disconnect was reduced.
			runErr = nil
		}
	}

	metrics.RecordPairingOutcome(string(outcome.Kind), string(outcome.Error), o.clock.Now().Sub(start))
	logger.Infof("[pair] session %s resolved: kind=%s error=%s reason=%q",
		id, outcome.Kind, outcome.Error, outcome.Reason)
	return outcome, runErr
}

// allocate stores a fresh session, retrying once on an id collision.
func (o *Orchestrator) allocate(now time.Time) (string, error) {
	var lastErr error
	for i := 0; i < 2; i++ {
		id := o.newID(now)
		if _, err := o.store.Put(id, now); err != nil {
			if errors.Is(err, sessionstore.ErrExists) {
				lastErr = err
				continue
			}
			return "", err
		}
		return id, nil
	}
	return "", fmt.Errorf("session id collision: %w", lastErr)
}

// reap stops the actor once cleanup has run, whichever path triggered it.
func (o *Orchestrator) reap(a *actor.Actor[State], rt *Runtime) {
	defer o.inflight.Done()
	defer metrics.PairingCleaned()

	select {
	case <-rt.cleaned:
	case <-a.Done():
		rt.cleanup()
	}
	a.Stop()
}
