package patterns

import (
	"math"
	"math/rand/v2"

	"github.com/konkon3660/graduationP/internal/actuator"
)

// Path generators return raw waypoints. They may leave the pointer range for
// large magnitudes; Env.Trace clamps.

func pt(x, y float64) actuator.Position {
	return actuator.Position{X: int(math.Round(x)), Y: int(math.Round(y))}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// CirclePath walks a full circle of the given radius in stepDeg increments.
func CirclePath(c actuator.Position, radius float64, stepDeg int) []actuator.Position {
	if stepDeg <= 0 {
		stepDeg = 1
	}
	out := make([]actuator.Position, 0, 360/stepDeg+1)
	for a := 0; a < 360; a += stepDeg {
		t := rad(float64(a))
		out = append(out, pt(float64(c.X)+radius*math.Cos(t), float64(c.Y)+radius*math.Sin(t)))
	}
	return out
}

// FigureEightPath traces a lemniscate with horizontal amplitude amp.
func FigureEightPath(c actuator.Position, amp float64, steps int) []actuator.Position {
	out := make([]actuator.Position, 0, steps)
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		out = append(out, pt(float64(c.X)+amp*math.Sin(t), float64(c.Y)+amp*math.Sin(t)*math.Cos(t)))
	}
	return out
}

// SpiralPath winds outward from c. Waypoint i (even, below steps) sits at
// angle 8i degrees and radius growth*i.
func SpiralPath(c actuator.Position, growth float64, steps int) []actuator.Position {
	out := make([]actuator.Position, 0, steps/2+1)
	for i := 0; i < steps; i += 2 {
		t := rad(float64(i * 8))
		r := growth * float64(i)
		out = append(out, pt(float64(c.X)+r*math.Cos(t), float64(c.Y)+r*math.Sin(t)))
	}
	return out
}

// ZigzagPath sweeps x from x0 to x1 while y bounces between lo and hi every
// seg waypoints.
func ZigzagPath(x0, x1, step, lo, hi, seg int) []actuator.Position {
	if step <= 0 || seg <= 0 {
		return nil
	}
	var out []actuator.Position
	for i, x := 0, x0; x <= x1; i, x = i+1, x+step {
		phase := i % (2 * seg)
		var y float64
		if phase < seg {
			y = float64(lo) + float64(hi-lo)*float64(phase)/float64(seg)
		} else {
			y = float64(hi) - float64(hi-lo)*float64(phase-seg)/float64(seg)
		}
		out = append(out, pt(float64(x), y))
	}
	return out
}

// HeartPath traces the classic parametric heart curve scaled by scale.
func HeartPath(c actuator.Position, scale float64, stepDeg int) []actuator.Position {
	if stepDeg <= 0 {
		stepDeg = 1
	}
	var out []actuator.Position
	for a := 0; a < 360; a += stepDeg {
		t := rad(float64(a))
		x := 16 * math.Pow(math.Sin(t), 3)
		y := 13*math.Cos(t) - 5*math.Cos(2*t) - 2*math.Cos(3*t) - math.Cos(4*t)
		out = append(out, pt(float64(c.X)+x*scale, float64(c.Y)-y*scale))
	}
	return out
}

// WavePath sweeps x from x0 to x1 with a sine on y: cycles full periods over
// the sweep, amplitude amp around cy.
func WavePath(x0, x1, step, cy int, amp, cycles float64) []actuator.Position {
	if step <= 0 || x1 <= x0 {
		return nil
	}
	span := float64(x1 - x0)
	var out []actuator.Position
	for x := x0; x <= x1; x += step {
		t := 2 * math.Pi * cycles * float64(x-x0) / span
		out = append(out, pt(float64(x), float64(cy)+amp*math.Sin(t)))
	}
	return out
}

// RandomWalkPath visits targets random points in [lo,hi]^2, interpolating
// between consecutive points with a random number of substeps.
func RandomWalkPath(r *rand.Rand, start actuator.Position, targets, lo, hi, minSub, maxSub int) []actuator.Position {
	var out []actuator.Position
	cur := start
	for i := 0; i < targets; i++ {
		next := actuator.Position{X: lo + r.IntN(hi-lo+1), Y: lo + r.IntN(hi-lo+1)}
		sub := minSub
		if maxSub > minSub {
			sub += r.IntN(maxSub - minSub + 1)
		}
		for s := 1; s <= sub; s++ {
			f := float64(s) / float64(sub)
			out = append(out, pt(
				float64(cur.X)+float64(next.X-cur.X)*f,
				float64(cur.Y)+float64(next.Y-cur.Y)*f,
			))
		}
		cur = next
	}
	return out
}
