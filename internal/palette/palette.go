// Package palette assigns stable series colors and marker shapes.
package palette

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"sort"
	"sync"
)

// Generate returns n colors evenly spaced in hue.
func Generate(n int) []color.RGBA {
	if n <= 0 {
		return nil
	}
	colors := make([]color.RGBA, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex parses a #rrggbb color.
func ParseHex(s string) (color.RGBA, error) {
	c := color.RGBA{A: 255}
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	if _, err := fmt.Sscanf(s, "#%2x%2x%2x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return c, nil
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// Pair identifies one planner of one experiment.
type Pair struct {
	ExperimentIndex int
	PlannerName     string
}

// Assigner maps (experiment, planner) pairs to colors. Pairs registered with
// Reset get consecutive palette slots; unregistered pairs fall back to a hash
// of the pair, so a given pair always maps to the same color.
type Assigner struct {
	mu       sync.RWMutex
	colors   []color.RGBA
	assigned map[Pair]int
}

// NewAssigner creates an assigner over a palette of size colors.
func NewAssigner(size int) *Assigner {
	if size < 1 {
		size = 1
	}
	return &Assigner{colors: Generate(size), assigned: make(map[Pair]int)}
}

// Reset replaces the registered pairs. Pairs are ordered by experiment index
// then planner name before slots are handed out.
func (a *Assigner) Reset(pairs []Pair) {
	sorted := append([]Pair(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ExperimentIndex != sorted[j].ExperimentIndex {
			return sorted[i].ExperimentIndex < sorted[j].ExperimentIndex
		}
		return sorted[i].PlannerName < sorted[j].PlannerName
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.assigned = make(map[Pair]int, len(sorted))
	for _, p := range sorted {
		if _, ok := a.assigned[p]; !ok {
			a.assigned[p] = len(a.assigned) % len(a.colors)
		}
	}
}

// RGBA returns the color of a pair.
func (a *Assigner) RGBA(experimentIndex int, plannerName string) color.RGBA {
	p := Pair{experimentIndex, plannerName}
	a.mu.RLock()
	slot, ok := a.assigned[p]
	a.mu.RUnlock()
	if !ok {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d/%s", experimentIndex, plannerName)
		slot = int(h.Sum32() % uint32(len(a.colors)))
	}
	return a.colors[slot]
}

// Color returns the #rrggbb color of a pair.
func (a *Assigner) Color(experimentIndex int, plannerName string) string {
	return Hex(a.RGBA(experimentIndex, plannerName))
}
