package actor

// InputBase marks a struct as an Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase marks a struct as an Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}
