package skin

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/t173/skinvis/layout"
)

// updatePressureLocked recomputes one patch's pressure aggregate from
// the current smoothed cell values and folds it into the smoothed
// triple.  Called by the reader with the lock held whenever a patch
// frame completes.
func (s *Skin) updatePressureLocked(pi int, pl *layout.PatchLayout) {
	n := pl.NumCells()
	norm := make([]float64, n)
	for ci := 0; ci < n; ci++ {
		v := s.ringAt(pi, ci).Value()
		if v < 0 {
			v = 0
		} else if v > PressureMax {
			v = PressureMax
		}
		norm[ci] = v / PressureMax
	}

	magnitude := floats.Sum(norm)
	var cx, cy float64
	if magnitude > 0 {
		cx = floats.Dot(norm, pl.X) / magnitude
		cy = floats.Dot(norm, pl.Y) / magnitude
	}
	magnitude *= PressureMax

	// Keep the centroid inside the patch's local frame.
	b := pl.Bounds()
	cx = b.ClampX(cx)
	cy = b.ClampY(cy)

	a := s.pressureAlpha
	p := &s.pressure[pi]
	p.magnitude = a*magnitude + (1-a)*p.magnitude
	p.x = a*cx + (1-a)*p.x
	p.y = a*cy + (1-a)*p.y
}

// PatchPressure returns the smoothed pressure aggregate of one patch.
func (s *Skin) PatchPressure(patch int) (Pressure, error) {
	pi, ok := s.layout.PatchIndex(patch)
	if !ok {
		return Pressure{}, errors.Errorf("unknown patch %d", patch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pressure[pi]
	return Pressure{Magnitude: p.magnitude, X: p.x, Y: p.y}, nil
}
