package patterns

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Builtins returns every non-composite routine.
func Builtins() []Routine {
	return []Routine{
		Circle(),
		FigureEight(),
		Spiral(),
		Zigzag(),
		Heart(),
		Wave(),
		RandomWalk(),
		Explore(),
		Dance(),
		SafeMove(),
		SolenoidBurst(),
		SoundBurst(),
	}
}

// KnownNames lists every routine name Build accepts.
func KnownNames() []string {
	names := []string{}
	for _, r := range Builtins() {
		names = append(names, r.Name)
	}
	return append(names, NameCombo)
}

// Library is a weighted set of routines.
type Library struct {
	routines []Routine
	total    int
}

// NewLibrary validates routines and returns a library over them.
func NewLibrary(routines ...Routine) (*Library, error) {
	if len(routines) == 0 {
		return nil, fmt.Errorf("patterns: empty library")
	}
	seen := make(map[string]struct{}, len(routines))
	total := 0
	for _, r := range routines {
		if r.Name == "" || r.Run == nil {
			return nil, fmt.Errorf("patterns: routine must have a name and a body")
		}
		if r.Weight <= 0 {
			return nil, fmt.Errorf("patterns: routine %q has weight %d", r.Name, r.Weight)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("patterns: duplicate routine %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		total += r.Weight
	}
	return &Library{routines: slices.Clone(routines), total: total}, nil
}

// Build returns a library restricted to the named routines. An empty list
// enables everything. When combo is enabled it composes from the other
// enabled routines.
func Build(enabled []string) (*Library, error) {
	all := len(enabled) == 0
	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}

	known := make(map[string]bool)
	var base []Routine
	for _, r := range Builtins() {
		known[r.Name] = true
		if all || want[r.Name] {
			base = append(base, r)
		}
	}
	known[NameCombo] = true
	for n := range want {
		if !known[n] {
			return nil, fmt.Errorf("patterns: unknown routine %q", n)
		}
	}

	routines := base
	if all || want[NameCombo] {
		if len(base) == 0 {
			return nil, fmt.Errorf("patterns: combo needs at least one other routine enabled")
		}
		routines = append(slices.Clone(base), Combo(base))
	}
	return NewLibrary(routines...)
}

// Pick draws one routine with probability proportional to its weight.
func (l *Library) Pick(r *rand.Rand) Routine {
	n := r.IntN(l.total)
	for _, rt := range l.routines {
		if n < rt.Weight {
			return rt
		}
		n -= rt.Weight
	}
	return l.routines[len(l.routines)-1]
}

// Names returns routine names in library order.
func (l *Library) Names() []string {
	out := make([]string, len(l.routines))
	for i, r := range l.routines {
		out[i] = r.Name
	}
	return out
}

// Get returns the routine with the given name.
func (l *Library) Get(name string) (Routine, bool) {
	for _, r := range l.routines {
		if r.Name == name {
			return r, true
		}
	}
	return Routine{}, false
}
