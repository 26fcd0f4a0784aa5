package autoplay

import (
	"maps"
	"time"

	"github.com/konkon3660/graduationP/internal/actor"
	"github.com/konkon3660/graduationP/internal/actuator"
)

// InitialState returns an idle state with no clients.
func InitialState(delay time.Duration, speed int) State {
	return State{
		Clients:    map[ClientHandle]struct{}{},
		Delay:      delay,
		DriveSpeed: speed,
		Phase:      PhaseIdle,
	}
}

// Reduce is the engine reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdRegister:
		return reduceRegister(state, in)
	case cmdUnregister:
		return reduceUnregister(state, in)
	case cmdSetDelay:
		return reduceSetDelay(state, in)
	case cmdSetSpeed:
		return reduceSetSpeed(state, in)
	case cmdShutdown:
		return reduceShutdown(state, in)
	case cmdArmIdle:
		if len(state.Clients) > 0 || state.TriggerArmed || state.SessionActive() || state.Closed {
			return state, []actor.Effect{reply(in.Reply, nil)}
		}
		next, effs := arm(state, in.NowMs)
		return next, append(effs, reply(in.Reply, nil))

	case evTriggerFired:
		return reduceTriggerFired(state, in)
	case evSessionRunning:
		if in.Gen == state.SessionGen && state.Phase == PhaseStarting {
			state.Phase = PhaseRunning
		}
		return state, nil
	case evRoutineStarted:
		if in.Gen == state.SessionGen && state.Phase == PhaseRunning {
			state.RoutineCount++
			state.CurrentRoutine = in.Name
		}
		return state, nil
	case evSessionStopping:
		if in.Gen == state.SessionGen && state.Running() {
			state.Phase = PhaseStopping
			state.CurrentRoutine = ""
			state.LastError = in.Err
		}
		return state, nil
	case evSessionEnded:
		return reduceSessionEnded(state, in)
	default:
		return state, nil
	}
}

func reply(ch chan error, err error) actor.Effect {
	return effCompleteReply{Reply: ch, Err: err}
}

// disarm cancels any pending trigger. Bumping the generation makes a timer
// that already fired harmless.
func disarm(state State) (State, []actor.Effect) {
	if !state.TriggerArmed {
		return state, nil
	}
	state.TriggerArmed = false
	state.TriggerDeadlineMs = 0
	state.TriggerGen++
	return state, []actor.Effect{effDisarmTrigger{}}
}

// requestStop signals the active session, if any.
func requestStop(state State) (State, []actor.Effect) {
	if !state.SessionActive() || state.StopRequested {
		return state, nil
	}
	state.StopRequested = true
	return state, []actor.Effect{effStopSession{Gen: state.SessionGen}}
}

func reduceRegister(state State, cmd cmdRegister) (State, []actor.Effect) {
	if _, ok := state.Clients[cmd.Handle]; ok {
		return state, []actor.Effect{reply(cmd.Reply, nil)}
	}
	wasEmpty := len(state.Clients) == 0

	clients := maps.Clone(state.Clients)
	if clients == nil {
		clients = map[ClientHandle]struct{}{}
	}
	clients[cmd.Handle] = struct{}{}
	state.Clients = clients

	var effects []actor.Effect
	if wasEmpty {
		state.RestartPending = false
		var effs []actor.Effect
		state, effs = disarm(state)
		effects = append(effects, effs...)
		state, effs = requestStop(state)
		effects = append(effects, effs...)
	}
	return state, append(effects, reply(cmd.Reply, nil))
}

func reduceUnregister(state State, cmd cmdUnregister) (State, []actor.Effect) {
	if _, ok := state.Clients[cmd.Handle]; !ok {
		return state, []actor.Effect{reply(cmd.Reply, nil)}
	}
	clients := maps.Clone(state.Clients)
	delete(clients, cmd.Handle)
	state.Clients = clients

	if len(clients) > 0 || state.Closed {
		return state, []actor.Effect{reply(cmd.Reply, nil)}
	}

	state, effects := arm(state, cmd.NowMs)
	return state, append(effects, reply(cmd.Reply, nil))
}

// arm replaces any pending trigger with a new one: exactly one live trigger,
// the newest.
func arm(state State, nowMs int64) (State, []actor.Effect) {
	state.TriggerGen++
	state.TriggerArmed = true
	state.TriggerDeadlineMs = nowMs + state.Delay.Milliseconds()
	return state, []actor.Effect{effArmTrigger{Gen: state.TriggerGen, Delay: state.Delay}}
}

func reduceTriggerFired(state State, ev evTriggerFired) (State, []actor.Effect) {
	if !state.TriggerArmed || ev.Gen != state.TriggerGen {
		return state, nil
	}
	state.TriggerArmed = false
	state.TriggerDeadlineMs = 0

	// A client slipped in or the engine is shutting down: nothing to start.
	if len(state.Clients) > 0 || state.Closed {
		return state, nil
	}
	if state.SessionActive() {
		// Single-flight. A session that is already winding down is replaced
		// once it reaches idle.
		if state.StopRequested {
			state.RestartPending = true
		}
		return state, nil
	}
	return startSession(state)
}

func startSession(state State) (State, []actor.Effect) {
	state.RestartPending = false
	state.SessionGen++
	state.Phase = PhaseStarting
	state.StopRequested = false
	state.RoutineCount = 0
	state.CurrentRoutine = ""
	state.LastError = ""
	state.SessionsStarted++
	return state, []actor.Effect{effStartSession{Gen: state.SessionGen}}
}

func reduceSessionEnded(state State, ev evSessionEnded) (State, []actor.Effect) {
	if ev.Gen != state.SessionGen || !state.SessionActive() {
		return state, nil
	}
	state.Phase = PhaseIdle
	state.StopRequested = false
	state.RoutineCount = 0
	state.CurrentRoutine = ""
	if state.RestartPending && len(state.Clients) == 0 && !state.Closed {
		return startSession(state)
	}
	state.RestartPending = false
	return state, nil
}

func reduceSetDelay(state State, cmd cmdSetDelay) (State, []actor.Effect) {
	if cmd.Delay < 0 {
		return state, []actor.Effect{reply(cmd.Reply, ErrInvalidDelay)}
	}
	state.Delay = cmd.Delay
	return state, []actor.Effect{reply(cmd.Reply, nil)}
}

func reduceSetSpeed(state State, cmd cmdSetSpeed) (State, []actor.Effect) {
	if actuator.ValidateSpeed(cmd.Speed) != nil {
		return state, []actor.Effect{reply(cmd.Reply, ErrInvalidSpeed)}
	}
	state.DriveSpeed = cmd.Speed
	return state, []actor.Effect{reply(cmd.Reply, nil)}
}

func reduceShutdown(state State, cmd cmdShutdown) (State, []actor.Effect) {
	state.Closed = true
	state.RestartPending = false
	var effects, effs []actor.Effect
	state, effs = disarm(state)
	effects = append(effects, effs...)
	state, effs = requestStop(state)
	effects = append(effects, effs...)
	return state, append(effects, reply(cmd.Reply, nil))
}
