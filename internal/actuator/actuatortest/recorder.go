// Package actuatortest provides an in-memory actuator for tests.
package actuatortest

import (
	"fmt"
	"sync"

	"github.com/konkon3660/graduationP/internal/actuator"
)

// Call is one recorded actuator invocation.
type Call struct {
	Op    string
	On    bool
	X, Y  int
	Dir   actuator.Direction
	Speed int
	Sound string
}

// String renders a call compactly for assertion messages.
func (c Call) String() string {
	switch c.Op {
	case "laser":
		return fmt.Sprintf("laser(%t)", c.On)
	case "pointer":
		return fmt.Sprintf("pointer(%d,%d)", c.X, c.Y)
	case "drive":
		return fmt.Sprintf("drive(%s,%d)", c.Dir, c.Speed)
	case "sound":
		return fmt.Sprintf("sound(%s)", c.Sound)
	default:
		return c.Op + "()"
	}
}

// Recorder implements actuator.Hardware, records every call, and validates
// arguments the way the real drivers do.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// FailOn, when set, is consulted before each call; a non-nil result is
	// returned instead of recording the call.
	FailOn func(c Call) error
	// OnCall, when set, runs after a call is recorded.
	OnCall func(c Call)
}

var _ actuator.Hardware = (*Recorder)(nil)

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	fail := r.FailOn
	r.mu.Unlock()
	if fail != nil {
		if err := fail(c); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, c)
	hook := r.OnCall
	r.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

// SetFailOn replaces FailOn under the recorder lock.
func (r *Recorder) SetFailOn(fn func(c Call) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailOn = fn
}

func (r *Recorder) SetLaser(on bool) error {
	return r.record(Call{Op: "laser", On: on})
}

func (r *Recorder) MovePointer(x, y int) error {
	if err := actuator.ValidatePosition(x, y); err != nil {
		return err
	}
	return r.record(Call{Op: "pointer", X: x, Y: y})
}

func (r *Recorder) CenterPointer() error {
	return r.record(Call{Op: "center", X: actuator.PointerCenter, Y: actuator.PointerCenter})
}

func (r *Recorder) Drive(dir actuator.Direction, speed int) error {
	if _, _, err := actuator.DefaultDriveTable().Resolve(dir, speed); err != nil {
		return err
	}
	return r.record(Call{Op: "drive", Dir: dir, Speed: speed})
}

func (r *Recorder) Fire() error {
	return r.record(Call{Op: "fire"})
}

func (r *Recorder) PlaySound(name string, _ float64) error {
	return r.record(Call{Op: "sound", Sound: name})
}

func (r *Recorder) Feed() error {
	return r.record(Call{Op: "feed"})
}

// Calls returns a snapshot of recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Len returns the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Count returns how many calls with the given op were recorded.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
