package autoplay

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/actor"
	"github.com/konkon3660/graduationP/internal/logger"
)

// runtime executes engine effects: the debounce timer and session goroutines.
// It never touches engine state; results flow back as events.
type runtime struct {
	clock  clockwork.Clock
	runner *runner

	// deliver is a blocking send into the actor mailbox. It must only be
	// called off the actor goroutine.
	deliver func(actor.Input)

	mu         sync.Mutex
	trigger    clockwork.Timer
	sessionGen int64
	cancel     context.CancelFunc
	sessions   sync.WaitGroup
}

func newRuntime(clock clockwork.Clock, r *runner) *runtime {
	return &runtime{clock: clock, runner: r}
}

// HandleEffects implements actor.Runtime.
func (r *runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effArmTrigger:
			r.armTrigger(ctx, e)
		case effDisarmTrigger:
			r.disarmTrigger()
		case effStartSession:
			r.startSession(ctx, e)
		case effStopSession:
			r.stopSession(e.Gen)
		case effCompleteReply:
			if e.Reply == nil {
				continue
			}
			select {
			case e.Reply <- e.Err:
			default:
			}
		}
	}
}

// Stop implements actor.Runtime.
func (r *runtime) Stop() {
	r.disarmTrigger()
	r.stopSession(0)
}

func (r *runtime) armTrigger(ctx context.Context, eff effArmTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trigger != nil {
		r.trigger.Stop()
		r.trigger = nil
	}

	fire := func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.deliver(evTriggerFired{Gen: eff.Gen})
	}

	if eff.Delay <= 0 {
		logger.Debugf("[autoplay] trigger %d fires immediately", eff.Gen)
		go fire()
		return
	}
	logger.Debugf("[autoplay] trigger %d armed for %s", eff.Gen, eff.Delay)
	r.trigger = r.clock.AfterFunc(eff.Delay, fire)
}

func (r *runtime) disarmTrigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trigger != nil {
		r.trigger.Stop()
		r.trigger = nil
	}
}

func (r *runtime) startSession(ctx context.Context, eff effStartSession) {
	sctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.cancel != nil {
		// The reducer never starts a session while another is active; a
		// leftover cancel func belongs to a session that already ended.
		r.cancel()
	}
	r.cancel = cancel
	r.sessionGen = eff.Gen
	r.sessions.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.sessions.Done()
		defer cancel()
		r.runner.run(sctx, eff.Gen, r.deliver)
	}()
}

// stopSession cancels the session with the given generation; gen 0 cancels
// whatever is running.
func (r *runtime) stopSession(gen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	if gen != 0 && gen != r.sessionGen {
		return
	}
	r.cancel()
	r.cancel = nil
}

// wait blocks until every session goroutine has returned.
func (r *runtime) wait() {
	r.sessions.Wait()
}
