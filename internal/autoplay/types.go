package autoplay

import (
	"errors"
	"time"

	"github.com/konkon3660/graduationP/internal/actor"
)

var (
	// ErrInvalidDelay rejects a negative debounce delay.
	ErrInvalidDelay = errors.New("autoplay: debounce delay must be >= 0")
	// ErrInvalidSpeed rejects a drive speed outside 0–100.
	ErrInvalidSpeed = errors.New("autoplay: drive speed must be within 0-100")
	// ErrClosed is returned by calls on a closed engine.
	ErrClosed = errors.New("autoplay: engine closed")

	errMissingActuator = errors.New("autoplay: actuator is required")
)

const (
	// DefaultDebounceDelay is how long the robot waits alone before playing.
	DefaultDebounceDelay = 70 * time.Second
	// DefaultDriveSpeed is the initial wheel speed in percent.
	DefaultDriveSpeed = 60
)

// ClientHandle identifies one attached control session.
type ClientHandle string

// Phase is the behavior runner state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// State is owned by the engine actor. Clients is replaced, never mutated in
// place, so snapshots handed out by the actor stay immutable.
type State struct {
	Clients map[ClientHandle]struct{}

	Delay      time.Duration
	DriveSpeed int

	TriggerGen        int64
	TriggerArmed      bool
	TriggerDeadlineMs int64

	Phase         Phase
	SessionGen    int64
	StopRequested bool
	// RestartPending records a trigger that fired while the previous session
	// was still stopping.
	RestartPending  bool
	RoutineCount    int
	CurrentRoutine  string
	SessionsStarted int
	LastError       string

	Closed bool
}

// SessionActive reports whether a session exists (any phase but idle).
func (s State) SessionActive() bool {
	return s.Phase != PhaseIdle && s.Phase != ""
}

// Running reports whether the session is announcing or playing.
func (s State) Running() bool {
	return s.Phase == PhaseStarting || s.Phase == PhaseRunning
}

// Commands. Reply channels are buffered by the caller and completed through
// effCompleteReply after the other effects of the same step ran.

type cmdRegister struct {
	actor.InputBase
	Handle ClientHandle
	Reply  chan error
}

type cmdUnregister struct {
	actor.InputBase
	Handle ClientHandle
	NowMs  int64
	Reply  chan error
}

type cmdSetDelay struct {
	actor.InputBase
	Delay time.Duration
	Reply chan error
}

type cmdSetSpeed struct {
	actor.InputBase
	Speed int
	Reply chan error
}

type cmdArmIdle struct {
	actor.InputBase
	NowMs int64
	Reply chan error
}

type cmdShutdown struct {
	actor.InputBase
	Reply chan error
}

// Events from the runtime. Gen ties an event to the trigger or session that
// produced it; mismatches are stale and ignored.

type evTriggerFired struct {
	actor.InputBase
	Gen int64
}

type evSessionRunning struct {
	actor.InputBase
	Gen int64
}

type evRoutineStarted struct {
	actor.InputBase
	Gen  int64
	Name string
}

type evSessionStopping struct {
	actor.InputBase
	Gen int64
	Err string
}

type evSessionEnded struct {
	actor.InputBase
	Gen int64
}

// Effects.

type effArmTrigger struct {
	actor.EffectBase
	Gen   int64
	Delay time.Duration
}

type effDisarmTrigger struct {
	actor.EffectBase
}

type effStartSession struct {
	actor.EffectBase
	Gen int64
}

type effStopSession struct {
	actor.EffectBase
	Gen int64
}

type effCompleteReply struct {
	actor.EffectBase
	Reply chan error
	Err   error
}
