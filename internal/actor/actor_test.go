package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/mrarosh/Pear-code/internal/actor"
	"github.com/mrarosh/Pear-code/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

type addEvent struct {
	actor.InputBase
	n int
}

type addedEffect struct {
	actor.EffectBase
	n int
}

type boomEvent struct {
	actor.InputBase
}

func sumReducer(state int, input actor.Input) (int, []actor.Effect) {
	switch in := input.(type) {
	case addEvent:
		return state + in.n, []actor.Effect{addedEffect{n: in.n}}
	case boomEvent:
		panic("boom")
	default:
		return state, nil
	}
}

func TestActorProcessesInputsSequentially(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Start()
	defer a.Stop()

	for i := 1; i <= 5; i++ {
		require.True(t, a.Enqueue(addEvent{n: i}))
	}

	require.Eventually(t, func() bool { return a.State() == 15 }, 2*time.Second, 10*time.Millisecond)
	require.Len(t, rt.Effects(), 5)
}

func TestActorStopIsIdempotentAndRejectsInputs(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Start()

	a.Stop()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor loop did not exit")
	}
	require.False(t, a.Enqueue(addEvent{n: 1}))
	require.Equal(t, 1, rt.Stops())
}

func TestActorPanicHook(t *testing.T) {
	t.Parallel()

	recovered := make(chan any, 1)
	a := actor.New[int](0, sumReducer, nil, actor.WithHooks(actor.Hooks[int]{
		OnPanic: func(r any) { recovered <- r },
	}))
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(boomEvent{}))

	select {
	case r := <-recovered:
		require.Equal(t, "boom", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic hook not called")
	}
	<-a.Done()
}

func TestActorMailboxFullDropsInput(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	// Not started: the single slot fills and the next input is dropped.
	require.True(t, a.Enqueue(addEvent{n: 1}))
	require.False(t, a.Enqueue(addEvent{n: 2}))
	a.Stop()
}

func TestActorSendWaitsForRoom(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, &actortest.FakeRuntime{}, actor.WithMailboxSize[int](1))
	defer a.Stop()
	require.True(t, a.Enqueue(addEvent{n: 1}))

	sent := make(chan bool, 1)
	go func() { sent <- a.Send(addEvent{n: 2}) }()
	select {
	case <-sent:
		t.Fatal("Send returned while the mailbox was full")
	case <-time.After(50 * time.Millisecond):
	}

	a.Start()
	require.True(t, <-sent)
	require.Eventually(t, func() bool { return a.State() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestActorSendFailsAfterStop(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	require.True(t, a.Enqueue(addEvent{n: 1}))

	sent := make(chan bool, 1)
	go func() { sent <- a.Send(addEvent{n: 2}) }()
	a.Stop()
	require.False(t, <-sent)
}

// burstRuntime answers a zero-valued add with a burst of follow-up inputs.
type burstRuntime struct {
	n int
}

func (r *burstRuntime) HandleEffects(_ context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		if e, ok := eff.(addedEffect); ok && e.n == 0 {
			for i := 0; i < r.n; i++ {
				emit(addEvent{n: 1})
			}
		}
	}
}

func (r *burstRuntime) Stop() {}

func TestActorRuntimeInputsSurviveFullMailbox(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, &burstRuntime{n: 20}, actor.WithMailboxSize[int](1))
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(addEvent{n: 0}))
	require.Eventually(t, func() bool { return a.State() == 20 }, 2*time.Second, 5*time.Millisecond)
}

func TestFakeClockFiresTimersInDeadlineOrder(t *testing.T) {
	t.Parallel()

	clock := actortest.NewFakeClock(time.Unix(0, 0))
	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Second, func() { fired = append(fired, "never") })

	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())
	require.Equal(t, 2, clock.Pending())

	clock.Advance(500 * time.Millisecond)
	require.Empty(t, fired)

	clock.Advance(2 * time.Second)
	require.Equal(t, []string{"a", "b"}, fired)
	require.Zero(t, clock.Pending())
}
