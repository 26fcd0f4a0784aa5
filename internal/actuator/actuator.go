// Package actuator defines the narrow hardware surface the behavior engine
// drives: a two-axis laser pointer, a differential drive, a solenoid, a
// speaker, and a feeder.
//
// Every call is expected to return quickly (well under one pointer step of
// 50ms). Backends that talk to slow hardware must queue internally.
package actuator

import (
	"errors"
	"fmt"
	"strings"
)

// Pointer angle bounds in degrees.
const (
	PointerMin    = 0
	PointerMax    = 180
	PointerCenter = 90
)

var (
	// ErrOutOfRange is returned when a pointer angle or speed is outside its
	// valid range.
	ErrOutOfRange = errors.New("actuator: value out of range")
	// ErrUnknownDirection is returned for directions not in the drive table.
	ErrUnknownDirection = errors.New("actuator: unknown direction")
)

// Direction is a drive direction.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Left     Direction = "left"
	Right    Direction = "right"
	Stop     Direction = "stop"
)

// Directions lists every direction a DriveTable must cover.
var Directions = []Direction{Forward, Backward, Left, Right, Stop}

// ParseDirection parses a direction name. Joystick aliases "up" and "down" are
// accepted for forward and backward.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "forward", "up":
		return Forward, nil
	case "backward", "down":
		return Backward, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "stop":
		return Stop, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
	}
}

// Sound names understood by the speaker backends.
const (
	SoundHappy     = "happy"
	SoundExcited   = "excited"
	SoundPlayful   = "playful"
	SoundCurious   = "curious"
	SoundSurprised = "surprised"
	SoundLaser     = "laser"
	SoundFire      = "fire"
	SoundFeed      = "feed"
	SoundMove      = "move"
	SoundBark      = "bark"
	SoundMeow      = "meow"
	SoundPurr      = "purr"
)

// Position is a pointer target in degrees.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Center is the neutral pointer position.
var Center = Position{X: PointerCenter, Y: PointerCenter}

// Clamp limits an angle to [PointerMin, PointerMax].
func Clamp(v int) int {
	if v < PointerMin {
		return PointerMin
	}
	if v > PointerMax {
		return PointerMax
	}
	return v
}

// Clamped returns p with both axes clamped.
func (p Position) Clamped() Position {
	return Position{X: Clamp(p.X), Y: Clamp(p.Y)}
}

// ValidatePosition reports ErrOutOfRange for angles outside the pointer range.
func ValidatePosition(x, y int) error {
	if x < PointerMin || x > PointerMax || y < PointerMin || y > PointerMax {
		return fmt.Errorf("%w: pointer (%d,%d)", ErrOutOfRange, x, y)
	}
	return nil
}

// ValidateSpeed reports ErrOutOfRange for speeds outside 0–100.
func ValidateSpeed(speed int) error {
	if speed < 0 || speed > 100 {
		return fmt.Errorf("%w: speed %d", ErrOutOfRange, speed)
	}
	return nil
}

// Facade is the set of actuator operations the engine and the control channel
// issue.
type Facade interface {
	SetLaser(on bool) error
	// MovePointer requires both angles in [0,180].
	MovePointer(x, y int) error
	// Drive with Stop ignores speed.
	Drive(dir Direction, speed int) error
	// Fire pulses the solenoid once.
	Fire() error
	// PlaySound starts a named sound and returns without waiting for it to end.
	PlaySound(name string, volume float64) error
	CenterPointer() error
}

// Feeder dispenses one portion of food.
type Feeder interface {
	Feed() error
}

// Hardware is what a concrete backend provides.
type Hardware interface {
	Facade
	Feeder
}
