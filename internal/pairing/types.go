package pairing

import (
	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/protocol"
)

// FSMState is the orchestrator state. The only legal order is
// Created, Connecting, Open, PairingRequested, Resolved, Cleaned; states may
// be skipped but never revisited.
type FSMState string

const (
	StateCreated          FSMState = "Created"
	StateConnecting       FSMState = "Connecting"
	StateOpen             FSMState = "Open"
	StatePairingRequested FSMState = "PairingRequested"
	StateResolved         FSMState = "Resolved"
	StateCleaned          FSMState = "Cleaned"
)

// rank orders the states so the reducer can refuse to move backwards.
func (s FSMState) rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateConnecting:
		return 1
	case StateOpen:
		return 2
	case StatePairingRequested:
		return 3
	case StateResolved:
		return 4
	case StateCleaned:
		return 5
	default:
		return -1
	}
}

// Timer names.
const (
	timerTotal     = "total"
	timerFallback  = "fallback"
	timerStabilize = "stabilize"
	timerCode      = "code"
)

// State is the loop-owned state of one pairing attempt.
type State struct {
	FSM       FSMState
	SessionID string
	Number    string

	// DeadlineMs is when the total timer fires, in unix milliseconds.
	DeadlineMs int64

	TotalMs     int64
	FallbackMs  int64
	CodeMs      int64
	StabilizeMs int64
	MarginMs    int64
	Policy      config.FailurePolicy

	// Armed holds the timers the runtime currently has running.
	Armed map[string]bool

	// Outcome is the resolution latch. Once set it never changes.
	Outcome *Outcome
}

func newState(sessionID, number string, cfg config.PairingConfig) State {
	return State{
		FSM:         StateCreated,
		SessionID:   sessionID,
		Number:      number,
		TotalMs:     cfg.TotalTimeout.Milliseconds(),
		FallbackMs:  cfg.FallbackTimeout.Milliseconds(),
		CodeMs:      cfg.CodeTimeout.Milliseconds(),
		StabilizeMs: cfg.StabilizeDelay.Milliseconds(),
		MarginMs:    cfg.SafetyMargin.Milliseconds(),
		Policy:      cfg.FailurePolicy,
		Armed:       map[string]bool{},
	}
}

// Resolved reports whether the latch has been set.
func (s State) Resolved() bool { return s.Outcome != nil }

// Inputs

type cmdStart struct {
	actor.InputBase
	NowMs int64
}

type evConnectionUpdate struct {
	actor.InputBase
	State  protocol.ConnectionState
	Reason string
}

type evConnectFailed struct {
	actor.InputBase
	Err error
}

type evTimerFired struct {
	actor.InputBase
	Name  string
	NowMs int64
}

type evCodeReceived struct {
	actor.InputBase
	Code string
}

type evCodeFailed struct {
	actor.InputBase
	Err error
}

// evClientGone is delivered when the HTTP caller disconnects.
type evClientGone struct {
	actor.InputBase
}

type evInternalError struct {
	actor.InputBase
	Err error
}

type evCleaned struct {
	actor.InputBase
}

// Effects

type effConnect struct {
	actor.EffectBase
}

type effArmTimer struct {
	actor.EffectBase
	Name    string
	AfterMs int64
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effRequestCode struct {
	actor.EffectBase
	Number string
}

type effDeliver struct {
	actor.EffectBase
	Outcome Outcome
}

// effCleanup terminates the transport and removes the session.
type effCleanup struct {
	actor.EffectBase
}
