// Package actortest provides a scripted actor.Runtime for tests.
package actortest

import (
	"context"
	"sync"

	"github.com/konkon3660/graduationP/internal/actor"
)

// Runtime records every effect it is handed. When Respond is set, the inputs
// it returns for an effect are fed back to the actor.
type Runtime struct {
	Respond func(actor.Effect) []actor.Input

	mu    sync.Mutex
	seen  []actor.Effect
	stops int
}

var _ actor.Runtime = (*Runtime)(nil)

func (r *Runtime) HandleEffects(_ context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.seen = append(r.seen, effects...)
	respond := r.Respond
	r.mu.Unlock()

	if respond == nil {
		return
	}
	for _, eff := range effects {
		for _, in := range respond(eff) {
			emit(in)
		}
	}
}

func (r *Runtime) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

// Effects returns the effects seen so far, oldest first.
func (r *Runtime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]actor.Effect(nil), r.seen...)
}

// Stops reports how many times Stop was called.
func (r *Runtime) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}
