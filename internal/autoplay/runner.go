package autoplay

import (
	"context"
	"fmt"
	"time"

	"github.com/konkon3660/graduationP/internal/actor"
	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/logger"
	"github.com/konkon3660/graduationP/internal/patterns"
)

const (
	announceSettle  = time.Second
	announceVolume  = 1.0
	minRoutinePause = 2 * time.Second
	maxRoutinePause = 5 * time.Second
)

// runner executes one session at a time: announce, then routines until
// canceled, then the safe state.
type runner struct {
	act actuator.Facade
	lib *patterns.Library
	env *patterns.Env

	// snapshot reads the latest engine state without blocking the actor.
	snapshot func() State
}

func (r *runner) run(ctx context.Context, gen int64, send func(actor.Input)) {
	logger.Infof("[autoplay] session %d starting", gen)

	err := r.play(ctx, gen, send)
	msg := ""
	if err != nil {
		msg = err.Error()
		logger.Errorf("[autoplay] session %d aborted: %v", gen, err)
	}
	send(evSessionStopping{Gen: gen, Err: msg})

	r.safeState()
	logger.Infof("[autoplay] session %d stopped", gen)
	send(evSessionEnded{Gen: gen})
}

// play returns nil when the session ended because it was asked to, and the
// failure otherwise.
func (r *runner) play(ctx context.Context, gen int64, send func(actor.Input)) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("routine panic: %v", rec)
		}
	}()

	if err := r.announce(ctx); err != nil {
		return stopReason(ctx, err)
	}
	send(evSessionRunning{Gen: gen})

	for {
		if ctx.Err() != nil || r.preempted(gen) {
			return nil
		}

		r.env.Speed = r.snapshot().DriveSpeed
		routine := r.lib.Pick(r.env.Rand)
		send(evRoutineStarted{Gen: gen, Name: routine.Name})
		logger.Debugf("[autoplay] session %d routine %s speed=%d", gen, routine.Name, r.env.Speed)

		if err := routine.Run(ctx, r.env); err != nil {
			return stopReason(ctx, fmt.Errorf("%s: %w", routine.Name, err))
		}
		if err := r.env.Pause(ctx, r.env.Between(minRoutinePause, maxRoutinePause)); err != nil {
			return stopReason(ctx, err)
		}
	}
}

func (r *runner) announce(ctx context.Context) error {
	if err := r.act.PlaySound(actuator.SoundExcited, announceVolume); err != nil {
		return err
	}
	if err := r.env.Pause(ctx, announceSettle); err != nil {
		return err
	}
	if err := r.act.SetLaser(true); err != nil {
		return err
	}
	if err := r.act.CenterPointer(); err != nil {
		return err
	}
	return r.env.Pause(ctx, announceSettle)
}

// preempted reports whether presence or a stop request ended the session.
func (r *runner) preempted(gen int64) bool {
	st := r.snapshot()
	return len(st.Clients) > 0 || st.StopRequested || st.SessionGen != gen || st.Closed
}

// stopReason treats any failure after cancellation as a clean stop.
func stopReason(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// safeState turns the laser off, stops the wheels and recenters the pointer.
// Every step is attempted even if an earlier one fails or panics.
func (r *runner) safeState() {
	r.attempt("laser off", func() error { return r.act.SetLaser(false) })
	r.attempt("drive stop", func() error { return r.act.Drive(actuator.Stop, 0) })
	r.attempt("center pointer", r.act.CenterPointer)
}

func (r *runner) attempt(step string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("[autoplay] %s panic: %v", step, rec)
		}
	}()
	if err := fn(); err != nil {
		logger.Warnf("[autoplay] %s failed: %v", step, err)
	}
}
