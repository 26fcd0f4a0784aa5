// Package feed dispenses food, on demand or on a fixed interval.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/logger"
)

// PortionGap separates consecutive portions of one feeding.
const PortionGap = time.Second

// Status is the scheduler snapshot served over the API.
type Status struct {
	IsRunning    bool       `json:"is_running"`
	NextFeedTime *time.Time `json:"next_feed_time"`
	CurrentCount int        `json:"current_count"`
	Settings     Settings   `json:"settings"`
}

// Feeding sources.
const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
)

// Feeding describes one completed dispenser run. Portions counts what was
// actually dispensed, which is less than requested when Err is set.
type Feeding struct {
	Source   string
	Portions int
	Err      error
}

// Scheduler feeds Amount portions every Interval while running in auto mode.
type Scheduler struct {
	clock  clockwork.Clock
	feeder actuator.Feeder

	mu       sync.Mutex
	settings Settings
	running  bool
	next     time.Time
	count    int
	cancel   context.CancelFunc
	done     chan struct{}
	wake     chan struct{}
	hook     func(Feeding)

	// feeding serializes dispenser use between the schedule and FeedNow.
	feeding sync.Mutex
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(feeder actuator.Feeder, clock clockwork.Clock, settings Settings) (*Scheduler, error) {
	if feeder == nil {
		return nil, errors.New("feed: feeder is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:    clock,
		feeder:   feeder,
		settings: settings,
		wake:     make(chan struct{}, 1),
	}, nil
}

// OnFeeding registers fn to be called after every dispenser run, including
// failed ones. fn runs on the feeding goroutine.
func (s *Scheduler) OnFeeding(fn func(Feeding)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Start launches the schedule loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Debugf("[feed] scheduler already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	logger.Infof("[feed] scheduler started (mode=%s interval=%dm amount=%d)",
		s.settings.Mode, s.settings.Interval, s.settings.Amount)
}

// Stop halts the loop and waits for an in-flight feeding to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	logger.Infof("[feed] scheduler stopped")
}

// Reset forgets the next feed time and the feeding count.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.next = time.Time{}
	s.count = 0
	s.mu.Unlock()
	s.poke()
	logger.Debugf("[feed] schedule reset")
}

// Settings returns the active settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings validates and applies new settings, then resets the schedule.
func (s *Scheduler) SetSettings(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	s.Reset()
	return nil
}

// FeedNow dispenses amount portions immediately. It is refused in auto mode.
func (s *Scheduler) FeedNow(ctx context.Context, amount int) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if s.Settings().Mode == ModeAuto {
		return ErrAutoMode
	}
	logger.Infof("[feed] manual feeding, %d portion(s)", amount)
	return s.dispense(ctx, SourceManual, amount)
}

// Status returns a snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		IsRunning:    s.running,
		CurrentCount: s.count,
		Settings:     s.settings,
	}
	if !s.next.IsZero() {
		next := s.next
		st.NextFeedTime = &next
	}
	return st
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait, auto := s.plan()

		var timer clockwork.Timer
		var fire <-chan time.Time
		if auto {
			timer = s.clock.NewTimer(wait)
			fire = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			s.feedDue(ctx)
		}
	}
}

// plan returns how long until the next scheduled feeding, scheduling one if
// none is set. The second result is false in manual mode.
func (s *Scheduler) plan() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Mode != ModeAuto {
		return 0, false
	}
	now := s.clock.Now()
	if s.next.IsZero() {
		s.next = now.Add(s.settings.Period())
		s.count = 0
		logger.Infof("[feed] next feeding at %s", s.next.Format(time.TimeOnly))
	}
	wait := s.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (s *Scheduler) feedDue(ctx context.Context) {
	s.mu.Lock()
	amount := s.settings.Amount
	s.mu.Unlock()

	logger.Infof("[feed] scheduled feeding, %d portion(s)", amount)
	if err := s.dispense(ctx, SourceSchedule, amount); err != nil {
		logger.Errorf("[feed] scheduled feeding failed: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.next = s.clock.Now().Add(s.settings.Period())
	logger.Infof("[feed] next feeding at %s", s.next.Format(time.TimeOnly))
}

func (s *Scheduler) dispense(ctx context.Context, source string, amount int) error {
	s.feeding.Lock()
	defer s.feeding.Unlock()

	delivered, err := s.portions(ctx, amount)

	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(Feeding{Source: source, Portions: delivered, Err: err})
	}
	return err
}

func (s *Scheduler) portions(ctx context.Context, amount int) (int, error) {
	for i := 0; i < amount; i++ {
		if i > 0 {
			t := s.clock.NewTimer(PortionGap)
			select {
			case <-ctx.Done():
				t.Stop()
				return i, ctx.Err()
			case <-t.Chan():
			}
		}
		if err := s.feeder.Feed(); err != nil {
			return i, fmt.Errorf("feed: portion %d/%d: %w", i+1, amount, err)
		}
	}
	return amount, nil
}
