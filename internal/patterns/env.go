// Package patterns holds the repertoire of play routines the autoplay
// engine draws from.
//
// A routine is a function of (context, *Env). Routines never sleep directly:
// every wait goes through Env.Pause, which returns as soon as the context is
// canceled, and every pointer or drive step checks the context first. That
// keeps preemption latency at one actuator call.
package patterns

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/actuator"
)

const (
	// PointerStep is the interval between pointer waypoints.
	PointerStep = 50 * time.Millisecond
	// RandomWalkStep is the slower interval used by the random walk.
	RandomWalkStep = 100 * time.Millisecond
	// MaxDriveBurst caps how long wheels run before an explicit stop.
	MaxDriveBurst = 2 * time.Second
)

// Env is what a routine may touch.
type Env struct {
	Act   actuator.Facade
	Clock clockwork.Clock
	Rand  *rand.Rand
	// Speed is the drive speed (0–100) snapshotted before the routine began.
	Speed int
	// Volume for sound cues, 0–1.
	Volume float64
}

// NewEnv returns an Env with a seeded PCG source. A zero seed draws one from
// the runtime.
func NewEnv(act actuator.Facade, clock clockwork.Clock, seed uint64) *Env {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Env{
		Act:    act,
		Clock:  clock,
		Rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Volume: 1.0,
	}
}

// Pause waits for d or until ctx is done.
func (e *Env) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := e.Clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// Between returns a uniform duration in [lo, hi].
func (e *Env) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.Rand.Int64N(int64(hi-lo)+1))
}

// IntBetween returns a uniform int in [lo, hi].
func (e *Env) IntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + e.Rand.IntN(hi-lo+1)
}

// FloatBetween returns a uniform float in [lo, hi).
func (e *Env) FloatBetween(lo, hi float64) float64 {
	return lo + e.Rand.Float64()*(hi-lo)
}

// Sound plays a cue at the env volume.
func (e *Env) Sound(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Act.PlaySound(name, e.Volume)
}

// Trace moves the pointer through path, clamping every waypoint and waiting
// interval after each.
func (e *Env) Trace(ctx context.Context, path []actuator.Position, interval time.Duration) error {
	for _, p := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = p.Clamped()
		if err := e.Act.MovePointer(p.X, p.Y); err != nil {
			return err
		}
		if err := e.Pause(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

// DriveFor runs the wheels in dir for at most MaxDriveBurst, then stops them.
// The stop is issued even when ctx is canceled mid-burst.
func (e *Env) DriveFor(ctx context.Context, dir actuator.Direction, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > MaxDriveBurst {
		d = MaxDriveBurst
	}
	if err := e.Act.Drive(dir, e.Speed); err != nil {
		return err
	}
	waitErr := e.Pause(ctx, d)
	if err := e.Act.Drive(actuator.Stop, 0); err != nil {
		return err
	}
	return waitErr
}
