// Package layout describes the physical arrangement of a skin sensor:
// which cells belong to which patch and where each cell sits in the
// patch-local coordinate frame.
package layout

import "math"

// PatchLayout is the geometry of one patch: its device-assigned id, the
// cell ids in device order, and a coordinate per cell in the patch-local
// frame.
type PatchLayout struct {
	PatchID int
	CellID  []int
	X       []float64
	Y       []float64

	cellIdx []int // cell id -> position in the slices above, -1 when absent
	bounds  Rect
}

// NumCells returns the number of cells in the patch.
func (pl *PatchLayout) NumCells() int { return len(pl.CellID) }

// MaxCellID returns the largest cell id in the patch, or -1 when empty.
func (pl *PatchLayout) MaxCellID() int { return len(pl.cellIdx) - 1 }

// CellIndex maps a cell id to its position in the patch slices.  ok is
// false when the patch has no such cell.
func (pl *PatchLayout) CellIndex(cell int) (int, bool) {
	if cell < 0 || cell >= len(pl.cellIdx) || pl.cellIdx[cell] < 0 {
		return 0, false
	}
	return pl.cellIdx[cell], true
}

// Bounds returns the rectangle enclosing every cell position of the
// patch, in its local frame.
func (pl *PatchLayout) Bounds() Rect { return pl.bounds }

func (pl *PatchLayout) addCell(id int, x, y float64) {
	for len(pl.cellIdx) <= id {
		pl.cellIdx = append(pl.cellIdx, -1)
	}
	pl.cellIdx[id] = len(pl.CellID)
	if len(pl.CellID) == 0 {
		pl.bounds = Rect{x, x, y, y}
	} else {
		pl.bounds.XMin = math.Min(pl.bounds.XMin, x)
		pl.bounds.XMax = math.Max(pl.bounds.XMax, x)
		pl.bounds.YMin = math.Min(pl.bounds.YMin, y)
		pl.bounds.YMax = math.Max(pl.bounds.YMax, y)
	}
	pl.CellID = append(pl.CellID, id)
	pl.X = append(pl.X, x)
	pl.Y = append(pl.Y, y)
}

// Rect is the bounding rectangle of a patch in patch-local coordinates.
type Rect struct {
	XMin, XMax float64
	YMin, YMax float64
}

// ClampX limits x to the rectangle's horizontal extent.
func (r Rect) ClampX(x float64) float64 { return math.Min(math.Max(x, r.XMin), r.XMax) }

// ClampY limits y to the rectangle's vertical extent.
func (r Rect) ClampY(y float64) float64 { return math.Min(math.Max(y, r.YMin), r.YMax) }

// Layout is an ordered list of patches plus a reverse map from patch id
// to index for O(1) lookup.
type Layout struct {
	Patches []PatchLayout

	patchIdx []int // patch id -> index of Patches, -1 when absent
}

// NumPatches returns the number of patches.
func (lo *Layout) NumPatches() int { return len(lo.Patches) }

// MaxPatchID returns the largest patch id, or -1 when empty.
func (lo *Layout) MaxPatchID() int { return len(lo.patchIdx) - 1 }

// TotalCells returns the number of cells across all patches.
func (lo *Layout) TotalCells() int {
	n := 0
	for i := range lo.Patches {
		n += lo.Patches[i].NumCells()
	}
	return n
}

// PatchIndex maps a patch id to its index in Patches.  ok is false when
// the layout has no such patch.
func (lo *Layout) PatchIndex(patch int) (int, bool) {
	if patch < 0 || patch >= len(lo.patchIdx) || lo.patchIdx[patch] < 0 {
		return 0, false
	}
	return lo.patchIdx[patch], true
}

// Patch returns the layout of the given patch id.
func (lo *Layout) Patch(patch int) (*PatchLayout, bool) {
	i, ok := lo.PatchIndex(patch)
	if !ok {
		return nil, false
	}
	return &lo.Patches[i], true
}

func (lo *Layout) addPatch(pl PatchLayout) {
	for len(lo.patchIdx) <= pl.PatchID {
		lo.patchIdx = append(lo.patchIdx, -1)
	}
	lo.patchIdx[pl.PatchID] = len(lo.Patches)
	lo.Patches = append(lo.Patches, pl)
}

// Trivial builds a layout of numPatches patches with ids 1..numPatches,
// each holding cells 0..numCells-1 arranged on a unit grid centered at
// the origin.
func Trivial(numPatches, numCells int) *Layout {
	lo := &Layout{}
	cols := 1
	for cols*cols < numCells {
		cols++
	}
	for p := 1; p <= numPatches; p++ {
		pl := PatchLayout{PatchID: p}
		for c := 0; c < numCells; c++ {
			x := float64(c%cols) - float64(cols-1)/2
			y := float64(c/cols) - float64(cols-1)/2
			pl.addCell(c, x, y)
		}
		lo.addPatch(pl)
	}
	return lo
}
