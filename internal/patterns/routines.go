package patterns

import (
	"context"
	"time"

	"github.com/konkon3660/graduationP/internal/actuator"
)

// Routine is one named entry of the repertoire.
type Routine struct {
	Name   string
	Weight int
	// Composite routines are built from other routines and are never picked
	// as a part of another composite.
	Composite bool
	Run       func(ctx context.Context, env *Env) error
}

// Routine names.
const (
	NameCircle        = "circle"
	NameFigureEight   = "figure_eight"
	NameSpiral        = "spiral"
	NameZigzag        = "zigzag"
	NameHeart         = "heart"
	NameWave          = "wave"
	NameRandomWalk    = "random_walk"
	NameExplore       = "explore"
	NameDance         = "dance"
	NameSafeMove      = "safe_move"
	NameSolenoidBurst = "solenoid_burst"
	NameSoundBurst    = "sound_burst"
	NameCombo         = "combo"
)

// CircleStepDeg is the angular step of the circle routine.
const CircleStepDeg = 7

func pointer(name string, weight int, interval time.Duration, path func(env *Env) []actuator.Position) Routine {
	return Routine{
		Name:   name,
		Weight: weight,
		Run: func(ctx context.Context, env *Env) error {
			return env.Trace(ctx, path(env), interval)
		},
	}
}

// Circle traces a circle of random radius 20–60 around the center.
func Circle() Routine {
	return pointer(NameCircle, 2, PointerStep, func(env *Env) []actuator.Position {
		return CirclePath(actuator.Center, env.FloatBetween(20, 60), CircleStepDeg)
	})
}

// FigureEight traces a lemniscate of random amplitude 20–40.
func FigureEight() Routine {
	return pointer(NameFigureEight, 2, PointerStep, func(env *Env) []actuator.Position {
		return FigureEightPath(actuator.Center, env.FloatBetween(20, 40), 72)
	})
}

// Spiral winds outward with a random growth rate.
func Spiral() Routine {
	return pointer(NameSpiral, 2, PointerStep, func(env *Env) []actuator.Position {
		return SpiralPath(actuator.Center, env.FloatBetween(0.2, 0.4), 150)
	})
}

// Zigzag sweeps left to right bouncing over a random vertical band.
func Zigzag() Routine {
	return pointer(NameZigzag, 2, PointerStep, func(env *Env) []actuator.Position {
		half := env.IntBetween(20, 45)
		return ZigzagPath(30, 150, 5, actuator.PointerCenter-half, actuator.PointerCenter+half, env.IntBetween(3, 6))
	})
}

// Heart traces a heart of random scale 2–4.
func Heart() Routine {
	return pointer(NameHeart, 2, PointerStep, func(env *Env) []actuator.Position {
		return HeartPath(actuator.Center, env.FloatBetween(2, 4), 5)
	})
}

// Wave sweeps a sine of random amplitude 15–30 and 0.5–1.5 cycles.
func Wave() Routine {
	return pointer(NameWave, 2, PointerStep, func(env *Env) []actuator.Position {
		return WavePath(30, 150, 3, actuator.PointerCenter, env.FloatBetween(15, 30), env.FloatBetween(0.5, 1.5))
	})
}

// RandomWalk wanders between 6–10 random targets at the slower step.
func RandomWalk() Routine {
	return pointer(NameRandomWalk, 2, RandomWalkStep, func(env *Env) []actuator.Position {
		return RandomWalkPath(env.Rand, actuator.Center, env.IntBetween(6, 10), 30, 150, 5, 15)
	})
}

func randomTurn(env *Env) actuator.Direction {
	if env.Rand.IntN(2) == 0 {
		return actuator.Left
	}
	return actuator.Right
}

// Explore alternates short turns and forward hops.
func Explore() Routine {
	return Routine{
		Name:   NameExplore,
		Weight: 3,
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Sound(ctx, actuator.SoundCurious); err != nil {
				return err
			}
			for i, n := 0, env.IntBetween(4, 8); i < n; i++ {
				if err := env.DriveFor(ctx, randomTurn(env), env.Between(500*time.Millisecond, time.Second)); err != nil {
					return err
				}
				if err := env.DriveFor(ctx, actuator.Forward, env.Between(300*time.Millisecond, 800*time.Millisecond)); err != nil {
					return err
				}
				if err := env.Pause(ctx, env.Between(500*time.Millisecond, time.Second)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Dance wiggles left and right.
func Dance() Routine {
	return Routine{
		Name:   NameDance,
		Weight: 3,
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Sound(ctx, actuator.SoundPlayful); err != nil {
				return err
			}
			for i, n := 0, env.IntBetween(2, 4); i < n; i++ {
				if err := env.DriveFor(ctx, actuator.Left, time.Second); err != nil {
					return err
				}
				if err := env.DriveFor(ctx, actuator.Right, time.Second); err != nil {
					return err
				}
				if err := env.Pause(ctx, 500*time.Millisecond); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// SafeMove mixes forward hops and turns, each bounded and followed by a stop.
func SafeMove() Routine {
	return Routine{
		Name:   NameSafeMove,
		Weight: 3,
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Sound(ctx, actuator.SoundMove); err != nil {
				return err
			}
			for i, n := 0, env.IntBetween(3, 6); i < n; i++ {
				var err error
				if env.Rand.IntN(2) == 0 {
					err = env.DriveFor(ctx, actuator.Forward, env.Between(500*time.Millisecond, 1500*time.Millisecond))
				} else {
					err = env.DriveFor(ctx, randomTurn(env), env.Between(500*time.Millisecond, time.Second))
				}
				if err != nil {
					return err
				}
				if err := env.Pause(ctx, env.Between(500*time.Millisecond, time.Second)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// SolenoidBurst fires the solenoid 2–4 times.
func SolenoidBurst() Routine {
	return Routine{
		Name:   NameSolenoidBurst,
		Weight: 3,
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Sound(ctx, actuator.SoundFire); err != nil {
				return err
			}
			for i, n := 0, env.IntBetween(2, 4); i < n; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := env.Act.Fire(); err != nil {
					return err
				}
				if err := env.Pause(ctx, env.Between(time.Second, 2*time.Second)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

var burstSounds = []string{
	actuator.SoundHappy,
	actuator.SoundPlayful,
	actuator.SoundCurious,
	actuator.SoundMeow,
	actuator.SoundBark,
	actuator.SoundPurr,
}

// SoundBurst plays 2–4 random sounds.
func SoundBurst() Routine {
	return Routine{
		Name:   NameSoundBurst,
		Weight: 2,
		Run: func(ctx context.Context, env *Env) error {
			for i, n := 0, env.IntBetween(2, 4); i < n; i++ {
				if err := env.Sound(ctx, burstSounds[env.Rand.IntN(len(burstSounds))]); err != nil {
					return err
				}
				if err := env.Pause(ctx, env.Between(time.Second, 2*time.Second)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

var comboCues = []string{actuator.SoundHappy, actuator.SoundPlayful, actuator.SoundSurprised}

// Combo runs 2–5 routines drawn uniformly from parts, with a sound cue
// between them. Composite parts are dropped so combos never nest.
func Combo(parts []Routine) Routine {
	flat := make([]Routine, 0, len(parts))
	for _, p := range parts {
		if !p.Composite {
			flat = append(flat, p)
		}
	}
	return Routine{
		Name:      NameCombo,
		Weight:    2,
		Composite: true,
		Run: func(ctx context.Context, env *Env) error {
			if len(flat) == 0 {
				return nil
			}
			for i, n := 0, env.IntBetween(2, 5); i < n; i++ {
				if i > 0 {
					if err := env.Sound(ctx, comboCues[env.Rand.IntN(len(comboCues))]); err != nil {
						return err
					}
					if err := env.Pause(ctx, 500*time.Millisecond); err != nil {
						return err
					}
				}
				if err := flat[env.Rand.IntN(len(flat))].Run(ctx, env); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
