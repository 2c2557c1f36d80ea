package pairing

import (
	"errors"
	"testing"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/config"
	"github.com/mrarosh/Pear-code/internal/protocol"
	"github.com/stretchr/testify/require"
)

const testNumber = "15551234567"

func testConfig() config.PairingConfig {
	return config.Default().Pairing
}

func started(t *testing.T, cfg config.PairingConfig) State {
	t.Helper()
	state, _ := actor.Step(newState("pair-1", testNumber, cfg), cmdStart{NowMs: 1_000}, Reduce)
	return state
}

func opened(t *testing.T, cfg config.PairingConfig) State {
	t.Helper()
	state, _ := actor.Step(started(t, cfg), evConnectionUpdate{State: protocol.StateOpen}, Reduce)
	return state
}

func requested(t *testing.T, cfg config.PairingConfig) State {
	t.Helper()
	state, _ := actor.Step(opened(t, cfg), evTimerFired{Name: timerStabilize, NowMs: 2_500}, Reduce)
	require.Equal(t, StatePairingRequested, state.FSM)
	return state
}

func TestReduceStartArmsTimersAndConnects(t *testing.T) {
	state, effects := actor.Step(newState("pair-1", testNumber, testConfig()), cmdStart{NowMs: 1_000}, Reduce)

	require.Equal(t, StateConnecting, state.FSM)
	require.Equal(t, int64(26_000), state.DeadlineMs)
	require.Equal(t, []actor.Effect{
		effArmTimer{Name: timerTotal, AfterMs: 25_000},
		effArmTimer{Name: timerFallback, AfterMs: 15_000},
		effConnect{},
	}, effects)

	// A second start is ignored.
	_, effects = actor.Step(state, cmdStart{NowMs: 5_000}, Reduce)
	require.Empty(t, effects)
}

func TestReduceStartWithoutFallback(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackTimeout = 0

	state, effects := actor.Step(newState("pair-1", testNumber, cfg), cmdStart{NowMs: 0}, Reduce)
	require.Equal(t, []actor.Effect{effArmTimer{Name: timerTotal, AfterMs: 25_000}, effConnect{}}, effects)
	require.Equal(t, map[string]bool{timerTotal: true}, state.Armed)
}

func TestReduceOpenArmsStabilizeDelay(t *testing.T) {
	state, effects := actor.Step(started(t, testConfig()), evConnectionUpdate{State: protocol.StateOpen}, Reduce)

	require.Equal(t, StateOpen, state.FSM)
	require.Equal(t, []actor.Effect{effArmTimer{Name: timerStabilize, AfterMs: 1_500}}, effects)
	require.True(t, state.Armed[timerTotal])
	require.True(t, state.Armed[timerFallback])

	// Connecting updates and a repeated open do nothing.
	_, effects = actor.Step(state, evConnectionUpdate{State: protocol.StateConnecting}, Reduce)
	require.Empty(t, effects)
	_, effects = actor.Step(state, evConnectionUpdate{State: protocol.StateOpen}, Reduce)
	require.Empty(t, effects)
}

func TestReduceStabilizeRequestsCode(t *testing.T) {
	state, effects := actor.Step(opened(t, testConfig()), evTimerFired{Name: timerStabilize, NowMs: 2_500}, Reduce)

	require.Equal(t, StatePairingRequested, state.FSM)
	require.Equal(t, []actor.Effect{
		effArmTimer{Name: timerCode, AfterMs: 10_000},
		effRequestCode{Number: testNumber},
	}, effects)
	require.False(t, state.Armed[timerStabilize])
}

func TestReduceCodeTimeoutClampedToDeadline(t *testing.T) {
	// Deadline is 26_000; with a 500ms margin only 1_500ms remain at 24_000.
	state, effects := actor.Step(opened(t, testConfig()), evTimerFired{Name: timerStabilize, NowMs: 24_000}, Reduce)

	require.Equal(t, StatePairingRequested, state.FSM)
	require.Equal(t, effArmTimer{Name: timerCode, AfterMs: 1_500}, effects[0])
}

func TestReduceNoTimeLeftForCodeRequest(t *testing.T) {
	state, effects := actor.Step(opened(t, testConfig()), evTimerFired{Name: timerStabilize, NowMs: 25_600}, Reduce)

	require.Equal(t, StateResolved, state.FSM)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, ReasonTimeout, state.Outcome.Reason)
	require.Contains(t, effects, effCleanup{})
}

func TestReduceRealCodeCancelsEveryTimer(t *testing.T) {
	state, effects := actor.Step(requested(t, testConfig()), evCodeReceived{Code: "ABCD1234"}, Reduce)

	require.Equal(t, StateResolved, state.FSM)
	require.Empty(t, state.Armed)

	want := Outcome{Kind: OutcomeReal, Code: "ABCD1234", Number: testNumber, SessionID: "pair-1"}
	require.Equal(t, []actor.Effect{
		effCancelTimer{Name: timerCode},
		effCancelTimer{Name: timerFallback},
		effCancelTimer{Name: timerTotal},
		effDeliver{Outcome: want},
		effCleanup{},
	}, effects)
	require.False(t, state.Outcome.IsDemo())
}

func TestReduceLatchIgnoresLaterInputs(t *testing.T) {
	state, _ := actor.Step(requested(t, testConfig()), evCodeReceived{Code: "ABCD1234"}, Reduce)

	late := []actor.Input{
		evTimerFired{Name: timerTotal, NowMs: 26_000},
		evTimerFired{Name: timerFallback, NowMs: 16_000},
		evConnectionUpdate{State: protocol.StateClosed, Reason: "bye"},
		evCodeFailed{Err: errors.New("late")},
		evCodeReceived{Code: "OTHER"},
		evClientGone{},
		evInternalError{Err: errors.New("boom")},
	}
	for _, in := range late {
		next, effects := actor.Step(state, in, Reduce)
		require.Empty(t, effects, "%T", in)
		require.Equal(t, "ABCD1234", next.Outcome.Code)
		state = next
	}
}

func TestReduceStaleTimerIgnored(t *testing.T) {
	state := opened(t, testConfig())
	_, effects := actor.Step(state, evTimerFired{Name: timerCode, NowMs: 3_000}, Reduce)
	require.Empty(t, effects)
}

func TestReduceAlreadyRegisteredIsClientError(t *testing.T) {
	err := errors.Join(errors.New("gateway"), protocol.ErrAlreadyRegistered)
	state, effects := actor.Step(requested(t, testConfig()), evCodeFailed{Err: err}, Reduce)

	require.Equal(t, OutcomeClientError, state.Outcome.Kind)
	require.Equal(t, ErrorAlreadyRegistered, state.Outcome.Error)
	require.Empty(t, state.Outcome.Code)
	require.Contains(t, effects, effCleanup{})
}

func TestReduceCodeFailureDegrades(t *testing.T) {
	state, _ := actor.Step(requested(t, testConfig()), evCodeFailed{Err: errors.New("rate limited")}, Reduce)

	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, "pairing code request failed: rate limited", state.Outcome.Reason)
	require.Equal(t, FallbackCode(testNumber), state.Outcome.Code)
}

func TestReduceTimersUnderDegradePolicy(t *testing.T) {
	state, _ := actor.Step(started(t, testConfig()), evTimerFired{Name: timerFallback, NowMs: 16_000}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, ReasonFallback, state.Outcome.Reason)

	state, _ = actor.Step(started(t, testConfig()), evTimerFired{Name: timerTotal, NowMs: 26_000}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, ReasonTimeout, state.Outcome.Reason)

	state, _ = actor.Step(requested(t, testConfig()), evTimerFired{Name: timerCode, NowMs: 12_500}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, ReasonCodeTimeout, state.Outcome.Reason)
}

func TestReduceClosedBeforeCode(t *testing.T) {
	state, _ := actor.Step(started(t, testConfig()), evConnectionUpdate{State: protocol.StateClosed, Reason: "logged out"}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, "connection closed: logged out", state.Outcome.Reason)

	state, _ = actor.Step(started(t, testConfig()), evConnectFailed{Err: errors.New("dial tcp: refused")}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
	require.Equal(t, "connection failed: dial tcp: refused", state.Outcome.Reason)
}

func TestReduceStrictPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.FailurePolicy = config.PolicyStrict

	state, _ := actor.Step(started(t, cfg), evTimerFired{Name: timerTotal, NowMs: 26_000}, Reduce)
	require.Equal(t, OutcomeServiceError, state.Outcome.Kind)
	require.Equal(t, ErrorTimeout, state.Outcome.Error)

	state, _ = actor.Step(opened(t, cfg), evConnectionUpdate{State: protocol.StateClosed}, Reduce)
	require.Equal(t, OutcomeServiceError, state.Outcome.Kind)
	require.Equal(t, ErrorConnectionClosed, state.Outcome.Error)

	// The fallback timer still degrades.
	state, _ = actor.Step(started(t, cfg), evTimerFired{Name: timerFallback, NowMs: 16_000}, Reduce)
	require.Equal(t, OutcomeDemo, state.Outcome.Kind)
}

func TestReduceClientGone(t *testing.T) {
	state, effects := actor.Step(opened(t, testConfig()), evClientGone{}, Reduce)
	require.Equal(t, OutcomeAbandoned, state.Outcome.Kind)
	require.Contains(t, effects, effCleanup{})
}

func TestReduceNeverMovesBackwards(t *testing.T) {
	state, _ := actor.Step(requested(t, testConfig()), evCodeReceived{Code: "X"}, Reduce)
	state, _ = actor.Step(state, evCleaned{}, Reduce)
	require.Equal(t, StateCleaned, state.FSM)

	state, effects := actor.Step(state, evConnectionUpdate{State: protocol.StateOpen}, Reduce)
	require.Empty(t, effects)
	require.Equal(t, StateCleaned, state.FSM)

	state, effects = actor.Step(state, cmdStart{NowMs: 0}, Reduce)
	require.Empty(t, effects)
	require.Equal(t, StateCleaned, state.FSM)
}

func TestReduceDoesNotMutatePreviousArmedSet(t *testing.T) {
	before := started(t, testConfig())
	after, _ := actor.Step(before, evConnectionUpdate{State: protocol.StateOpen}, Reduce)

	require.False(t, before.Armed[timerStabilize])
	require.True(t, after.Armed[timerStabilize])
}
