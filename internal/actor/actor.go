// Package actor runs a reducer over a mailbox on a single goroutine.
//
// The reducer is pure: it maps (state, input) to the next state and a list of
// effects. A Runtime performs the effects and reports what happened by
// emitting further inputs, so every state change is serialized through the
// mailbox.
package actor

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Send once the actor has been stopped.
var ErrStopped = errors.New("actor stopped")

const defaultMailbox = 64

// Input is anything the reducer accepts. Embed InputBase to implement it.
type Input interface {
	isActorInput()
}

// Effect is work the reducer asks the Runtime to do. Embed EffectBase to
// implement it.
type Effect interface {
	isActorEffect()
}

// Reducer must not block, read clocks, or touch hardware. Times and random
// values reach it inside inputs.
type Reducer[S any] func(state S, input Input) (S, []Effect)

// Runtime performs effects on the actor goroutine. Anything slow belongs on
// a goroutine the runtime owns; its outcome comes back through emit.
type Runtime interface {
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	// Stop may be called more than once.
	Stop()
}

// Config wires an actor. Reduce is required.
type Config[S any] struct {
	Reduce  Reducer[S]
	Runtime Runtime
	// Mailbox is the inbox capacity. Zero selects a default.
	Mailbox int
	// OnTransition runs on the actor goroutine after each reduced input.
	OnTransition func(prev, next S)
	// OnPanic receives a recovered panic, after which the loop exits. When
	// nil the panic crashes the process.
	OnPanic func(recovered any)
}

// Actor owns a value of type S.
type Actor[S any] struct {
	cfg Config[S]

	mu    sync.RWMutex
	state S

	inbox   chan Input
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started sync.Once
}

// New returns a stopped actor holding initial.
func New[S any](initial S, cfg Config[S]) *Actor[S] {
	size := cfg.Mailbox
	if size <= 0 {
		size = defaultMailbox
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Actor[S]{
		cfg:    cfg,
		state:  initial,
		inbox:  make(chan Input, size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the loop once.
func (a *Actor[S]) Start() {
	a.started.Do(func() { go a.run() })
}

// Stop ends the loop and stops the runtime. Inputs still queued are dropped.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.cfg.Runtime != nil {
		a.cfg.Runtime.Stop()
	}
}

// Done is closed after the loop returns.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// State returns a copy of the state. Maps and slices inside it are shared
// and must not be modified.
func (a *Actor[S]) State() S {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Enqueue delivers in if there is room right now.
func (a *Actor[S]) Enqueue(in Input) bool {
	return a.deliver(context.Background(), in, false) == nil
}

// Send delivers in, waiting for room until ctx ends or the actor stops.
func (a *Actor[S]) Send(ctx context.Context, in Input) error {
	return a.deliver(ctx, in, true)
}

func (a *Actor[S]) deliver(ctx context.Context, in Input, block bool) error {
	if in == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	if !block {
		select {
		case a.inbox <- in:
			return nil
		default:
			return errMailboxFull
		}
	}
	select {
	case a.inbox <- in:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errMailboxFull = errors.New("actor mailbox full")

func (a *Actor[S]) run() {
	defer close(a.done)
	if a.cfg.OnPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				a.cfg.OnPanic(r)
			}
		}()
	}

	emit := func(in Input) { a.Enqueue(in) }
	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.apply(in, emit)
		}
	}
}

func (a *Actor[S]) apply(in Input, emit func(Input)) {
	prev := a.State()
	next, effects := a.cfg.Reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.cfg.OnTransition != nil {
		a.cfg.OnTransition(prev, next)
	}
	if len(effects) > 0 && a.cfg.Runtime != nil {
		a.cfg.Runtime.HandleEffects(a.ctx, effects, emit)
	}
}
