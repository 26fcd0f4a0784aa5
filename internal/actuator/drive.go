package actuator

import (
	"fmt"
	"strings"
)

// Polarity is the rotation sense of one wheel: 1 forward, -1 reverse, 0 off.
type Polarity int

// WheelPair is the per-wheel polarity for a direction.
type WheelPair struct {
	Left  Polarity `yaml:"left" json:"left"`
	Right Polarity `yaml:"right" json:"right"`
}

// MotorCommand is what a motor driver receives for one wheel.
type MotorCommand struct {
	Polarity Polarity `json:"polarity"`
	Speed    int      `json:"speed"`
}

// DriveTable maps a Direction to wheel polarities. The physical wiring of the
// left/right motors differs between robot revisions, so the mapping is data.
type DriveTable map[Direction]WheelPair

// DefaultDriveTable returns the mapping used by the current chassis revision:
// spinning left runs the left wheel backward and the right wheel forward.
func DefaultDriveTable() DriveTable {
	return DriveTable{
		Forward:  {Left: 1, Right: 1},
		Backward: {Left: -1, Right: -1},
		Left:     {Left: -1, Right: 1},
		Right:    {Left: 1, Right: -1},
		Stop:     {Left: 0, Right: 0},
	}
}

// Validate checks that every direction is present, polarities are in
// {-1,0,1}, and stop is all-off.
func (t DriveTable) Validate() error {
	for _, dir := range Directions {
		pair, ok := t[dir]
		if !ok {
			return fmt.Errorf("drive table: missing direction %q", dir)
		}
		for _, p := range []Polarity{pair.Left, pair.Right} {
			if p < -1 || p > 1 {
				return fmt.Errorf("drive table: %q has polarity %d", dir, p)
			}
		}
	}
	if stop := t[Stop]; stop.Left != 0 || stop.Right != 0 {
		return fmt.Errorf("drive table: stop must turn both wheels off")
	}
	for dir := range t {
		if _, err := ParseDirection(string(dir)); err != nil {
			return fmt.Errorf("drive table: %w", err)
		}
	}
	return nil
}

// Resolve returns the per-wheel commands for a direction. Speed is zeroed for
// wheels that are off.
func (t DriveTable) Resolve(dir Direction, speed int) (MotorCommand, MotorCommand, error) {
	pair, ok := t[dir]
	if !ok {
		return MotorCommand{}, MotorCommand{}, fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
	}
	if dir != Stop {
		if err := ValidateSpeed(speed); err != nil {
			return MotorCommand{}, MotorCommand{}, err
		}
	}
	wheel := func(p Polarity) MotorCommand {
		if p == 0 {
			return MotorCommand{}
		}
		return MotorCommand{Polarity: p, Speed: speed}
	}
	return wheel(pair.Left), wheel(pair.Right), nil
}

// String renders the table in direction order, e.g. "forward=+/+".
func (t DriveTable) String() string {
	sign := func(p Polarity) string {
		switch {
		case p > 0:
			return "+"
		case p < 0:
			return "-"
		default:
			return "0"
		}
	}
	parts := make([]string, 0, len(Directions))
	for _, dir := range Directions {
		pair := t[dir]
		parts = append(parts, fmt.Sprintf("%s=%s/%s", dir, sign(pair.Left), sign(pair.Right)))
	}
	return strings.Join(parts, " ")
}

// MotorDriver sets both wheels at once.
type MotorDriver interface {
	SetMotors(left, right MotorCommand) error
}

// Differential turns Direction-level drive requests into wheel commands.
type Differential struct {
	Table  DriveTable
	Motors MotorDriver
}

// Drive resolves dir through the table and forwards to the motors.
func (d Differential) Drive(dir Direction, speed int) error {
	left, right, err := d.Table.Resolve(dir, speed)
	if err != nil {
		return err
	}
	return d.Motors.SetMotors(left, right)
}
