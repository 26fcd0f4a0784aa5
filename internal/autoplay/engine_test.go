package autoplay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/actuator/actuatortest"
	"github.com/konkon3660/graduationP/internal/patterns"
)

const waitFor = 2 * time.Second

type harness struct {
	engine *Engine
	rec    *actuatortest.Recorder
	clock  *clockwork.FakeClock
}

func newHarness(t *testing.T, delay time.Duration, routines ...string) *harness {
	t.Helper()
	if len(routines) == 0 {
		routines = []string{patterns.NameCircle}
	}
	lib, err := patterns.Build(routines)
	require.NoError(t, err)

	h := &harness{rec: &actuatortest.Recorder{}, clock: clockwork.NewFakeClock()}
	h.engine, err = New(Options{
		Actuator:      h.rec,
		Library:       lib,
		Clock:         h.clock,
		DebounceDelay: delay,
		DriveSpeed:    DefaultDriveSpeed,
		Seed:          1,
	})
	require.NoError(t, err)
	t.Cleanup(h.engine.Close)
	return h
}

// advance waits until something sleeps on the fake clock, then moves it.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(d)
}

func (h *harness) playing() bool { return h.engine.Status().IsAutoPlaying }

func (h *harness) laserOnCalls() int {
	n := 0
	for _, c := range h.rec.Calls() {
		if c.Op == "laser" && c.On {
			n++
		}
	}
	return n
}

// Scenario: the last client leaves and nobody returns. Play starts at the
// deadline, not before.
func TestEngineStartsAfterDebounce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2*time.Second)
	require.NoError(t, h.engine.Register("a"))
	require.NoError(t, h.engine.Unregister("a"))

	pending := h.engine.Status().PendingDelaySeconds
	require.NotNil(t, pending)
	require.Equal(t, 2, *pending)

	h.advance(t, 1900*time.Millisecond)
	require.Never(t, h.playing, 100*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, h.rec.Len())

	h.clock.Advance(300 * time.Millisecond)
	require.Eventually(t, h.playing, waitFor, 5*time.Millisecond)
	require.Nil(t, h.engine.Status().PendingDelaySeconds)
	require.Equal(t, 1, h.engine.Status().SessionsStarted)
}

// Scenario: a client returns inside the debounce window.
func TestEngineReconnectInsideWindowCancelsStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2*time.Second)
	require.NoError(t, h.engine.Register("a"))
	require.NoError(t, h.engine.Unregister("a"))

	h.advance(t, time.Second)
	require.NoError(t, h.engine.Register("b"))
	require.Nil(t, h.engine.Status().PendingDelaySeconds)

	h.clock.Advance(2 * time.Second)
	require.Never(t, h.playing, 150*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, h.laserOnCalls())
	require.Zero(t, h.engine.Status().SessionsStarted)
}

// Scenario: immediate trigger, then a client connects mid-routine.
func TestEnginePreemptsRunningSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	require.NoError(t, h.engine.Register("a"))
	require.NoError(t, h.engine.Unregister("a"))
	require.Eventually(t, h.playing, waitFor, 5*time.Millisecond)

	// Announce: sound, settle, laser on, center, settle.
	h.advance(t, time.Second)
	h.advance(t, time.Second)
	require.Eventually(t, func() bool { return h.rec.Count("pointer") >= 1 }, waitFor, time.Millisecond)
	h.advance(t, patterns.PointerStep)
	require.Eventually(t, func() bool { return h.rec.Count("pointer") >= 2 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return h.engine.Status().RoutineCount == 1 }, waitFor, time.Millisecond)
	require.Equal(t, 1, h.laserOnCalls())

	mark := h.rec.Len()
	start := time.Now()
	require.NoError(t, h.engine.Register("b"))

	require.Eventually(t, func() bool {
		var laserOff, stopped, centered bool
		for _, c := range h.rec.Calls()[mark:] {
			switch {
			case c.Op == "laser" && !c.On:
				laserOff = true
			case c.Op == "drive" && c.Dir == actuator.Stop:
				stopped = true
			case c.Op == "center":
				centered = true
			}
		}
		return laserOff && stopped && centered && !h.playing()
	}, 200*time.Millisecond, time.Millisecond)
	require.Less(t, time.Since(start), 200*time.Millisecond)

	require.Eventually(t, func() bool { return h.engine.Status().Phase == PhaseIdle }, waitFor, time.Millisecond)
	pointerMoves := h.rec.Count("pointer")
	h.clock.Advance(10 * time.Second)
	require.Never(t, func() bool {
		return h.rec.Count("pointer") != pointerMoves || h.engine.Status().RoutineCount != 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngineFlappingProducesNoStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2*time.Second)
	require.NoError(t, h.engine.Register("a"))

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			require.NoError(t, h.engine.Unregister("a"))
		} else {
			require.NoError(t, h.engine.Register("a"))
		}
	}
	require.Equal(t, 1, h.engine.Status().ConnectedClients)
	require.Nil(t, h.engine.Status().PendingDelaySeconds)

	h.clock.Advance(5 * time.Second)
	require.Never(t, h.playing, 100*time.Millisecond, 10*time.Millisecond)

	// One final drop leaves a single live timer that starts exactly once.
	require.NoError(t, h.engine.Unregister("a"))
	h.advance(t, 2*time.Second)
	require.Eventually(t, h.playing, waitFor, 5*time.Millisecond)
	require.Equal(t, 1, h.engine.Status().SessionsStarted)
}

func TestEngineActuatorFailureEndsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.rec.SetFailOn(func(c actuatortest.Call) error {
		if c.Op == "pointer" {
			return errors.New("servo jammed")
		}
		return nil
	})

	require.NoError(t, h.engine.Register("a"))
	require.NoError(t, h.engine.Unregister("a"))
	h.advance(t, time.Second)
	h.advance(t, time.Second)

	require.Eventually(t, func() bool {
		st := h.engine.Status()
		return st.Phase == PhaseIdle && st.SessionsStarted == 1
	}, waitFor, time.Millisecond)
	require.Contains(t, h.engine.Status().LastError, "servo jammed")
	require.Equal(t, "center()", h.rec.Calls()[h.rec.Len()-1].String())

	// The engine still serves presence changes.
	require.NoError(t, h.engine.Register("b"))
	require.Equal(t, 1, h.engine.Status().ConnectedClients)
}

func TestEngineAnnounceFailureEndsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.rec.SetFailOn(func(c actuatortest.Call) error {
		if c.Op == "sound" {
			return errors.New("speaker missing")
		}
		return nil
	})

	require.NoError(t, h.engine.Unregister("nobody"))
	require.NoError(t, h.engine.ArmIfIdle())
	require.Eventually(t, func() bool {
		st := h.engine.Status()
		return st.Phase == PhaseIdle && st.SessionsStarted == 1
	}, waitFor, time.Millisecond)
	require.Contains(t, h.engine.Status().LastError, "speaker missing")
	require.Zero(t, h.laserOnCalls())
}

func TestEngineConfigMutators(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2*time.Second)

	require.ErrorIs(t, h.engine.SetDebounceDelay(-time.Second), ErrInvalidDelay)
	require.ErrorIs(t, h.engine.SetDriveSpeed(-1), ErrInvalidSpeed)
	require.ErrorIs(t, h.engine.SetDriveSpeed(101), ErrInvalidSpeed)

	require.NoError(t, h.engine.SetDriveSpeed(35))
	require.NoError(t, h.engine.SetDebounceDelay(5*time.Second))
	st := h.engine.Status()
	require.Equal(t, 35, st.DriveSpeed)
	require.Equal(t, 5.0, st.DebounceDelaySeconds)

	require.NoError(t, h.engine.Register("a"))
	require.NoError(t, h.engine.Unregister("a"))
	require.Equal(t, 5, *h.engine.Status().PendingDelaySeconds)
}

func TestEngineDriveSpeedAppliesToNextRoutine(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0, patterns.NameDance)
	require.NoError(t, h.engine.SetDriveSpeed(25))
	require.NoError(t, h.engine.ArmIfIdle())

	h.advance(t, time.Second)
	h.advance(t, time.Second)
	require.Eventually(t, func() bool { return h.rec.Count("drive") >= 1 }, waitFor, time.Millisecond)

	for _, c := range h.rec.Calls() {
		if c.Op == "drive" && c.Dir != actuator.Stop {
			require.Equal(t, 25, c.Speed)
		}
	}
}

func TestEngineStatusTracksPresence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Minute)
	for _, id := range []ClientHandle{"a", "b", "c", "b"} {
		require.NoError(t, h.engine.Register(id))
	}
	require.Equal(t, 3, h.engine.Status().ConnectedClients)

	require.NoError(t, h.engine.Unregister("b"))
	require.NoError(t, h.engine.Unregister("b"))
	require.Equal(t, 2, h.engine.Status().ConnectedClients)
	require.Nil(t, h.engine.Status().PendingDelaySeconds)
	require.False(t, h.engine.Status().IsAutoPlaying)
}

func TestEngineCloseReachesSafeState(t *testing.T) {
	t.Parallel()

	rec := &actuatortest.Recorder{}
	fc := clockwork.NewFakeClock()
	e, err := New(Options{Actuator: rec, Clock: fc, DriveSpeed: 50, Seed: 9})
	require.NoError(t, err)

	require.NoError(t, e.ArmIfIdle())
	require.Eventually(t, func() bool { return e.Status().IsAutoPlaying }, waitFor, time.Millisecond)

	e.Close()
	calls := rec.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	require.Equal(t, "laser(false)", calls[len(calls)-3].String())
	require.Equal(t, "drive(stop,0)", calls[len(calls)-2].String())
	require.Equal(t, "center()", calls[len(calls)-1].String())

	require.ErrorIs(t, e.Register("a"), ErrClosed)
	e.Close()
}

func TestEngineShutdownIgnoresLastDisconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	require.NoError(t, h.engine.Register("a"))
	h.engine.Shutdown()
	require.NoError(t, h.engine.Unregister("a"))

	st := h.engine.Status()
	require.Zero(t, st.ConnectedClients)
	require.Nil(t, st.PendingDelaySeconds)
	require.Never(t, h.playing, 150*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, h.engine.Status().SessionsStarted)
	require.Zero(t, h.laserOnCalls())
}

func TestEngineSafeStateSurvivesPanickingBackend(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	require.NoError(t, h.engine.ArmIfIdle())
	require.Eventually(t, h.playing, waitFor, time.Millisecond)

	h.rec.SetFailOn(func(c actuatortest.Call) error {
		if c.Op == "laser" && !c.On {
			panic("laser driver crashed")
		}
		return nil
	})
	require.NoError(t, h.engine.Register("a"))
	require.Eventually(t, func() bool {
		return h.engine.Status().Phase == PhaseIdle
	}, waitFor, time.Millisecond)

	calls := h.rec.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	require.Equal(t, "drive(stop,0)", calls[len(calls)-2].String())
	require.Equal(t, "center()", calls[len(calls)-1].String())
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Actuator: &actuatortest.Recorder{}, DebounceDelay: -1})
	require.ErrorIs(t, err, ErrInvalidDelay)

	_, err = New(Options{Actuator: &actuatortest.Recorder{}, DriveSpeed: 150})
	require.ErrorIs(t, err, ErrInvalidSpeed)
}
