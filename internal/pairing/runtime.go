package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/logger"
)

// adapter is the part of protocol.Session the runtime drives.
type adapter interface {
	Connect(ctx context.Context) error
	RequestPairingCode(ctx context.Context, number string) (string, error)
	Terminate() error
}

// Runtime executes pairing effects for one attempt.
type Runtime struct {
	sessionID string
	clock     actor.Clock
	session   adapter
	remove    func(id string) bool

	// ctx scopes adapter calls. It is cancelled by cleanup.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[string]actor.Timer

	delivered   chan Outcome
	deliverOnce sync.Once

	cleaned     chan struct{}
	cleanupOnce sync.Once
}

var _ actor.Runtime = (*Runtime)(nil)

func newRuntime(sessionID string, clock actor.Clock, remove func(id string) bool) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		sessionID: sessionID,
		clock:     clock,
		remove:    remove,
		ctx:       ctx,
		cancel:    cancel,
		timers:    make(map[string]actor.Timer),
		delivered: make(chan Outcome, 1),
		cleaned:   make(chan struct{}),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effArmTimer:
			r.armTimer(e.Name, time.Duration(e.AfterMs)*time.Millisecond, emit)
		case effCancelTimer:
			r.cancelTimer(e.Name)
		case effConnect:
			r.connect(emit)
		case effRequestCode:
			r.requestCode(e.Number, emit)
		case effDeliver:
			r.deliver(e.Outcome)
		case effCleanup:
			r.cleanup()
			emit(evCleaned{})
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.stopTimers()
	r.cancel()
}

func (r *Runtime) armTimer(name string, d time.Duration, emit func(actor.Input)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.timers[name]; ok {
		old.Stop()
	}
	r.timers[name] = r.clock.AfterFunc(d, func() {
		emit(evTimerFired{Name: name, NowMs: r.clock.Now().UnixMilli()})
	})
}

func (r *Runtime) cancelTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *Runtime) stopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *Runtime) connect(emit func(actor.Input)) {
	go func() {
		defer r.recoverAdapter("connect", emit)
		if err := r.session.Connect(r.ctx); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			emit(evConnectFailed{Err: err})
		}
	}()
}

func (r *Runtime) requestCode(number string, emit func(actor.Input)) {
	go func() {
		defer r.recoverAdapter("pairing code request", emit)
		code, err := r.session.RequestPairingCode(r.ctx, number)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			emit(evCodeFailed{Err: err})
			return
		}
		emit(evCodeReceived{Code: code})
	}()
}

// recoverAdapter turns a panic in an adapter call into evInternalError.
func (r *Runtime) recoverAdapter(op string, emit func(actor.Input)) {
	p := recover()
	if p == nil {
		return
	}
	logger.Errorf("[pair] session %s %s panic: %v", r.sessionID, op, p)
	emit(evInternalError{Err: fmt.Errorf("adapter panic during %s: %v", op, p)})
}

func (r *Runtime) deliver(o Outcome) {
	r.deliverOnce.Do(func() {
		r.delivered <- o
	})
}

// cleanup cancels timers, terminates the transport and removes the session.
// It runs at most once.
func (r *Runtime) cleanup() {
	r.cleanupOnce.Do(func() {
		r.stopTimers()
		r.cancel()
		if r.session != nil {
			if err := r.session.Terminate(); err != nil {
				logger.Warnf("[pair] session %s terminate: %v", r.sessionID, err)
			}
		}
		if r.remove != nil {
			r.remove(r.sessionID)
		}
		logger.Debugf("[pair] session %s cleaned up", r.sessionID)
		close(r.cleaned)
	})
}
