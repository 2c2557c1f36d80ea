package pairing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/protocol"
)

// Reduce is the pairing reducer.
//
// Every terminal input competes for the same latch (State.Outcome). The first
// one reduced resolves the attempt; later ones are no-ops.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdStart:
		return reduceStart(state, in)
	case evConnectionUpdate:
		return reduceConnectionUpdate(state, in)
	case evConnectFailed:
		return reduceConnectFailed(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evCodeReceived:
		return resolve(state, realOutcome(state, in.Code))
	case evCodeFailed:
		return reduceCodeFailed(state, in)
	case evClientGone:
		return resolve(state, Outcome{Kind: OutcomeAbandoned, Number: state.Number, SessionID: state.SessionID})
	case evInternalError:
		return resolve(state, serviceErrorOutcome(state, ErrorService))
	case evCleaned:
		return advance(state, StateCleaned), nil
	default:
		return state, nil
	}
}

func reduceStart(state State, cmd cmdStart) (State, []actor.Effect) {
	if state.FSM != StateCreated {
		return state, nil
	}
	state = advance(state, StateConnecting)
	state.DeadlineMs = cmd.NowMs + state.TotalMs

	var effects []actor.Effect
	state, effects = arm(state, effects, timerTotal, state.TotalMs)
	if state.FallbackMs > 0 && state.FallbackMs < state.TotalMs {
		state, effects = arm(state, effects, timerFallback, state.FallbackMs)
	}
	effects = append(effects, effConnect{})
	return state, effects
}

func reduceConnectionUpdate(state State, ev evConnectionUpdate) (State, []actor.Effect) {
	if state.Resolved() {
		return state, nil
	}
	switch ev.State {
	case protocol.StateOpen:
		if state.FSM != StateConnecting {
			return state, nil
		}
		state = advance(state, StateOpen)
		return arm(state, nil, timerStabilize, state.StabilizeMs)
	case protocol.StateClosed:
		reason := ReasonConnectionClosed
		if ev.Reason != "" {
			reason = fmt.Sprintf("%s: %s", ReasonConnectionClosed, ev.Reason)
		}
		if state.Policy == config.PolicyStrict {
			return resolve(state, serviceErrorOutcome(state, ErrorConnectionClosed))
		}
		return resolve(state, demoOutcome(state, reason))
	default:
		return state, nil
	}
}

func reduceConnectFailed(state State, ev evConnectFailed) (State, []actor.Effect) {
	if state.Policy == config.PolicyStrict {
		return resolve(state, serviceErrorOutcome(state, ErrorConnectionClosed))
	}
	return resolve(state, demoOutcome(state, withCause(ReasonConnectFailed, ev.Err)))
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	// A timer that was cancelled may still have been queued.
	if !state.Armed[ev.Name] {
		return state, nil
	}
	state = disarm(state, ev.Name)

	switch ev.Name {
	case timerTotal:
		if state.Policy == config.PolicyStrict {
			return resolve(state, serviceErrorOutcome(state, ErrorTimeout))
		}
		return resolve(state, demoOutcome(state, ReasonTimeout))
	case timerFallback:
		return resolve(state, demoOutcome(state, ReasonFallback))
	case timerStabilize:
		return requestCode(state, ev.NowMs)
	case timerCode:
		if state.FSM != StatePairingRequested {
			return state, nil
		}
		return resolve(state, demoOutcome(state, ReasonCodeTimeout))
	default:
		return state, nil
	}
}

// requestCode moves Open to PairingRequested. The per-call timeout is clamped
// so that it expires before the total deadline minus the safety margin.
func requestCode(state State, nowMs int64) (State, []actor.Effect) {
	if state.Resolved() || state.FSM != StateOpen {
		return state, nil
	}
	timeout := state.CodeMs
	if remaining := state.DeadlineMs - nowMs - state.MarginMs; remaining < timeout {
		timeout = remaining
	}
	if timeout <= 0 {
		return resolve(state, demoOutcome(state, ReasonTimeout))
	}

	state = advance(state, StatePairingRequested)
	state, effects := arm(state, nil, timerCode, timeout)
	effects = append(effects, effRequestCode{Number: state.Number})
	return state, effects
}

func reduceCodeFailed(state State, ev evCodeFailed) (State, []actor.Effect) {
	if errors.Is(ev.Err, protocol.ErrAlreadyRegistered) {
		return resolve(state, clientErrorOutcome(state, ErrorAlreadyRegistered))
	}
	return resolve(state, demoOutcome(state, withCause(ReasonCodeFailed, ev.Err)))
}

// resolve sets the latch and schedules cleanup. It is a no-op once the latch
// is set.
func resolve(state State, outcome Outcome) (State, []actor.Effect) {
	if state.Resolved() || state.FSM.rank() >= StateResolved.rank() {
		return state, nil
	}
	state.Outcome = &outcome
	state = advance(state, StateResolved)

	names := make([]string, 0, len(state.Armed))
	for name := range state.Armed {
		names = append(names, name)
	}
	sort.Strings(names)

	effects := make([]actor.Effect, 0, len(names)+2)
	for _, name := range names {
		effects = append(effects, effCancelTimer{Name: name})
	}
	state.Armed = map[string]bool{}

	effects = append(effects, effDeliver{Outcome: outcome}, effCleanup{})
	return state, effects
}

func advance(state State, next FSMState) State {
	if next.rank() > state.FSM.rank() {
		state.FSM = next
	}
	return state
}

func arm(state State, effects []actor.Effect, name string, afterMs int64) (State, []actor.Effect) {
	armed := make(map[string]bool, len(state.Armed)+1)
	for k, v := range state.Armed {
		armed[k] = v
	}
	armed[name] = true
	state.Armed = armed
	return state, append(effects, effArmTimer{Name: name, AfterMs: afterMs})
}

func disarm(state State, name string) State {
	armed := make(map[string]bool, len(state.Armed))
	for k, v := range state.Armed {
		if k != name {
			armed[k] = v
		}
	}
	state.Armed = armed
	return state
}

func withCause(reason string, err error) string {
	if err == nil {
		return reason
	}
	return fmt.Sprintf("%s: %v", reason, err)
}
