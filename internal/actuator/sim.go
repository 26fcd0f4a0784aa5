package actuator

import (
	"fmt"
	"sync"

	"github.com/konkon3660/graduationP/internal/logger"
)

// SimState is the last commanded state of a Sim.
type SimState struct {
	Laser   bool         `json:"laser"`
	Pointer Position     `json:"pointer"`
	Left    MotorCommand `json:"left"`
	Right   MotorCommand `json:"right"`
	Fires   int          `json:"fires"`
	Feeds   int          `json:"feeds"`
	Sound   string       `json:"last_sound,omitempty"`
}

// Sim is a hardware-free backend. It validates every call like the real
// drivers do, remembers the commanded state, and logs at trace level.
type Sim struct {
	drive Differential

	mu    sync.Mutex
	state SimState
}

var _ Hardware = (*Sim)(nil)

// NewSim returns a Sim using the given drive table.
func NewSim(table DriveTable) *Sim {
	s := &Sim{state: SimState{Pointer: Center}}
	s.drive = Differential{Table: table, Motors: simMotors{s}}
	return s
}

type simMotors struct{ s *Sim }

func (m simMotors) SetMotors(left, right MotorCommand) error {
	m.s.mu.Lock()
	m.s.state.Left, m.s.state.Right = left, right
	m.s.mu.Unlock()
	logger.Tracef("[sim] motors left=%+v right=%+v", left, right)
	return nil
}

// State returns the last commanded state.
func (s *Sim) State() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sim) SetLaser(on bool) error {
	s.mu.Lock()
	s.state.Laser = on
	s.mu.Unlock()
	logger.Tracef("[sim] laser on=%t", on)
	return nil
}

func (s *Sim) MovePointer(x, y int) error {
	if err := ValidatePosition(x, y); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Pointer = Position{X: x, Y: y}
	s.mu.Unlock()
	logger.Tracef("[sim] pointer (%d,%d)", x, y)
	return nil
}

func (s *Sim) CenterPointer() error {
	return s.MovePointer(PointerCenter, PointerCenter)
}

func (s *Sim) Drive(dir Direction, speed int) error {
	return s.drive.Drive(dir, speed)
}

func (s *Sim) Fire() error {
	s.mu.Lock()
	s.state.Fires++
	s.mu.Unlock()
	logger.Tracef("[sim] fire")
	return nil
}

func (s *Sim) PlaySound(name string, volume float64) error {
	if name == "" {
		return fmt.Errorf("sim: empty sound name")
	}
	s.mu.Lock()
	s.state.Sound = name
	s.mu.Unlock()
	logger.Tracef("[sim] sound %s volume=%.2f", name, volume)
	return nil
}

func (s *Sim) Feed() error {
	s.mu.Lock()
	s.state.Feeds++
	s.mu.Unlock()
	logger.Tracef("[sim] feed")
	return nil
}
