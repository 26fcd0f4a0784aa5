// Package autoplay runs the robot's autonomous play when nobody is connected.
//
// Control connections register with the Engine. When the last one leaves, a
// debounce timer is armed; if it expires with nobody back, a session starts:
// an announce sequence, then weighted-random routines from the pattern
// library until someone connects again, then the safe state (laser off,
// wheels stopped, pointer centered).
//
// All engine state lives in one actor. Status reads a snapshot and never
// waits for the actor loop.
package autoplay

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/actor"
	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/logger"
	"github.com/konkon3660/graduationP/internal/patterns"
)

// Options configures an Engine.
type Options struct {
	Actuator actuator.Facade
	// Library defaults to every built-in routine.
	Library *patterns.Library
	// Clock defaults to the wall clock.
	Clock         clockwork.Clock
	DebounceDelay time.Duration
	DriveSpeed    int
	// Seed for routine selection; zero picks a random seed.
	Seed uint64
	// OnChange is called on the actor goroutine whenever the phase or the
	// number of clients changes. It must not block.
	OnChange func(Status)
}

// Status is the externally visible engine snapshot.
type Status struct {
	ConnectedClients     int     `json:"connected_clients"`
	IsAutoPlaying        bool    `json:"is_auto_playing"`
	PendingDelaySeconds  *int    `json:"pending_delay_seconds"`
	RoutineCount         int     `json:"routine_count"`
	DriveSpeed           int     `json:"drive_speed"`
	Phase                Phase   `json:"phase"`
	DebounceDelaySeconds float64 `json:"debounce_delay_seconds"`
	CurrentRoutine       string  `json:"current_routine,omitempty"`
	SessionsStarted      int     `json:"sessions_started"`
	LastError            string  `json:"last_error,omitempty"`
}

// StatusAt derives a Status from a state snapshot. Pending delay is the
// remaining time until the armed trigger fires, rounded up to whole seconds.
func (s State) StatusAt(now time.Time) Status {
	st := Status{
		ConnectedClients:     len(s.Clients),
		IsAutoPlaying:        s.Running(),
		RoutineCount:         s.RoutineCount,
		DriveSpeed:           s.DriveSpeed,
		Phase:                s.Phase,
		DebounceDelaySeconds: s.Delay.Seconds(),
		CurrentRoutine:       s.CurrentRoutine,
		SessionsStarted:      s.SessionsStarted,
		LastError:            s.LastError,
	}
	if s.TriggerArmed {
		remaining := time.Duration(s.TriggerDeadlineMs-now.UnixMilli()) * time.Millisecond
		secs := int(math.Ceil(remaining.Seconds()))
		if secs < 0 {
			secs = 0
		}
		st.PendingDelaySeconds = &secs
	}
	return st
}

// Engine is the autonomous behavior engine.
type Engine struct {
	actor   *actor.Actor[State]
	runtime *runtime
	clock   clockwork.Clock
}

// New validates opts and starts the engine.
func New(opts Options) (*Engine, error) {
	if opts.Actuator == nil {
		return nil, errMissingActuator
	}
	if opts.DebounceDelay < 0 {
		return nil, ErrInvalidDelay
	}
	if actuator.ValidateSpeed(opts.DriveSpeed) != nil {
		return nil, ErrInvalidSpeed
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Library == nil {
		lib, err := patterns.Build(nil)
		if err != nil {
			return nil, err
		}
		opts.Library = lib
	}

	e := &Engine{clock: opts.Clock}
	r := &runner{
		act: opts.Actuator,
		lib: opts.Library,
		env: patterns.NewEnv(opts.Actuator, opts.Clock, opts.Seed),
	}
	e.runtime = newRuntime(opts.Clock, r)

	e.actor = actor.New(InitialState(opts.DebounceDelay, opts.DriveSpeed), actor.Config[State]{
		Reduce:  Reduce,
		Runtime: e.runtime,
		OnTransition: func(prev, next State) {
			if prev.Phase == next.Phase && len(prev.Clients) == len(next.Clients) {
				return
			}
			if prev.Phase != next.Phase {
				logger.Infof("[autoplay] %s -> %s (clients=%d)", prev.Phase, next.Phase, len(next.Clients))
			}
			if opts.OnChange != nil {
				opts.OnChange(next.StatusAt(e.clock.Now()))
			}
		},
		OnPanic: func(rec any) {
			logger.Errorf("[autoplay] engine loop panic: %v", rec)
		},
	})
	r.snapshot = e.actor.State
	e.runtime.deliver = func(in actor.Input) {
		_ = e.actor.Send(context.Background(), in)
	}
	e.actor.Start()
	return e, nil
}

func (e *Engine) call(mk func(reply chan error) actor.Input) error {
	reply := make(chan error, 1)
	if err := e.actor.Send(context.Background(), mk(reply)); err != nil {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-e.actor.Done():
		return ErrClosed
	}
}

// Register records an attached control session. When it is the first one,
// the pending trigger is disarmed and any running session is told to stop
// before Register returns.
func (e *Engine) Register(h ClientHandle) error {
	return e.call(func(reply chan error) actor.Input {
		return cmdRegister{Handle: h, Reply: reply}
	})
}

// Unregister removes a control session. When it was the last one the
// debounce trigger is armed.
func (e *Engine) Unregister(h ClientHandle) error {
	now := e.clock.Now().UnixMilli()
	return e.call(func(reply chan error) actor.Input {
		return cmdUnregister{Handle: h, NowMs: now, Reply: reply}
	})
}

// ArmIfIdle arms the debounce trigger when nobody is connected and nothing
// is pending or playing. The server calls it once at boot so an unattended
// robot starts playing without a connect/disconnect cycle.
func (e *Engine) ArmIfIdle() error {
	now := e.clock.Now().UnixMilli()
	return e.call(func(reply chan error) actor.Input {
		return cmdArmIdle{NowMs: now, Reply: reply}
	})
}

// SetDebounceDelay changes the delay used the next time the trigger is armed.
func (e *Engine) SetDebounceDelay(d time.Duration) error {
	return e.call(func(reply chan error) actor.Input {
		return cmdSetDelay{Delay: d, Reply: reply}
	})
}

// SetDriveSpeed changes the wheel speed used from the next routine on.
func (e *Engine) SetDriveSpeed(percent int) error {
	return e.call(func(reply chan error) actor.Input {
		return cmdSetSpeed{Speed: percent, Reply: reply}
	})
}

// Status returns the current snapshot. It does not wait for the engine loop.
func (e *Engine) Status() Status {
	return e.actor.State().StatusAt(e.clock.Now())
}

// Shutdown disarms the trigger, tells any running session to stop, and
// refuses to arm again. Clients may still unregister afterwards. The server
// calls it before dropping its connections so the last disconnect cannot
// start a session.
func (e *Engine) Shutdown() {
	_ = e.call(func(reply chan error) actor.Input {
		return cmdShutdown{Reply: reply}
	})
}

// Close shuts down, waits for the safe state, and stops the engine.
func (e *Engine) Close() {
	e.Shutdown()
	e.runtime.wait()
	e.actor.Stop()
	<-e.actor.Done()
}
