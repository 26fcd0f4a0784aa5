package feed

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects whether the scheduler feeds on its own.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

const (
	MinInterval = 1
	MaxInterval = 24 * 60
	MinAmount   = 1
	MaxAmount   = 10
)

var (
	ErrInvalidMode     = errors.New("mode must be 'manual' or 'auto'")
	ErrInvalidInterval = fmt.Errorf("interval must be between %d and %d minutes", MinInterval, MaxInterval)
	ErrInvalidAmount   = fmt.Errorf("amount must be between %d and %d", MinAmount, MaxAmount)
	ErrAutoMode        = errors.New("manual feeding is disabled in auto mode")
)

// Settings controls automatic feeding. Interval is in minutes.
type Settings struct {
	Mode     Mode `json:"mode" yaml:"mode"`
	Interval int  `json:"interval" yaml:"interval"`
	Amount   int  `json:"amount" yaml:"amount"`
}

// DefaultSettings is manual mode, hourly, one portion.
func DefaultSettings() Settings {
	return Settings{Mode: ModeManual, Interval: 60, Amount: 1}
}

func (s Settings) Validate() error {
	if s.Mode != ModeManual && s.Mode != ModeAuto {
		return ErrInvalidMode
	}
	if s.Interval < MinInterval || s.Interval > MaxInterval {
		return ErrInvalidInterval
	}
	return ValidateAmount(s.Amount)
}

// ValidateAmount checks a portion count.
func ValidateAmount(n int) error {
	if n < MinAmount || n > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// Period returns the interval as a duration.
func (s Settings) Period() time.Duration {
	return time.Duration(s.Interval) * time.Minute
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	Mode     *Mode `json:"mode,omitempty"`
	Interval *int  `json:"interval,omitempty"`
	Amount   *int  `json:"amount,omitempty"`
}

// Apply returns s with the patch applied, validated.
func (p Patch) Apply(s Settings) (Settings, error) {
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.Interval != nil {
		s.Interval = *p.Interval
	}
	if p.Amount != nil {
		s.Amount = *p.Amount
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
