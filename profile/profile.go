// Package profile holds the dynamic range calibration table for a skin
// sensor: per patch, per cell, an integer baseline and three polynomial
// coefficients.
//
// Patch and cell ids assigned by the device are sparse, so the table maps
// each id to a dense index and stores the values in parallel arrays.  The
// index maps grow by doubling.
package profile

// initialCap is the starting capacity of the id-to-index maps.
const initialCap = 8

// PatchProfile is the calibration data for every cell of one patch.
type PatchProfile struct {
	id int

	numCells int
	cellIdx  []int // cell id -> index of the arrays below, -1 when absent
	cellID   []int // reverse: index -> cell id

	// Baseline calibration
	baseline []int32

	// Dynamic range calibration
	c0 []float64 // intercept
	c1 []float64 // linear coefficient
	c2 []float64 // quadratic coefficient
}

func newPatchProfile(id int) *PatchProfile {
	p := &PatchProfile{id: id}
	p.cellIdx = makeIndex(initialCap)
	return p
}

func makeIndex(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = -1
	}
	return idx
}

// growIndex returns idx extended by doubling until id fits.
func growIndex(idx []int, id int) []int {
	n := len(idx)
	if n == 0 {
		n = initialCap
	}
	for n <= id {
		n *= 2
	}
	if n == len(idx) {
		return idx
	}
	grown := makeIndex(n)
	copy(grown, idx)
	return grown
}

// ID returns the device-assigned patch id.
func (p *PatchProfile) ID() int { return p.id }

// NumCells returns the number of cells with calibration data.
func (p *PatchProfile) NumCells() int { return p.numCells }

// CellIDs returns the cell ids in insertion order.
func (p *PatchProfile) CellIDs() []int {
	ids := make([]int, len(p.cellID))
	copy(ids, p.cellID)
	return ids
}

// Has reports whether the cell has calibration data.
func (p *PatchProfile) Has(cell int) bool {
	return cell >= 0 && cell < len(p.cellIdx) && p.cellIdx[cell] >= 0
}

// ensure returns the dense index for cell, creating a zeroed entry if
// needed.
func (p *PatchProfile) ensure(cell int) int {
	if cell >= len(p.cellIdx) {
		p.cellIdx = growIndex(p.cellIdx, cell)
	}
	if i := p.cellIdx[cell]; i >= 0 {
		return i
	}
	i := p.numCells
	p.cellIdx[cell] = i
	p.cellID = append(p.cellID, cell)
	p.baseline = append(p.baseline, 0)
	p.c0 = append(p.c0, 0)
	p.c1 = append(p.c1, 0)
	p.c2 = append(p.c2, 0)
	p.numCells++
	return i
}

// Set installs the full calibration record for one cell.  An existing
// entry is overwritten.
func (p *PatchProfile) Set(cell int, baseline int32, c0, c1, c2 float64) {
	i := p.ensure(cell)
	p.baseline[i] = baseline
	p.c0[i] = c0
	p.c1[i] = c1
	p.c2[i] = c2
}

// SetBaseline updates only the baseline of one cell, creating a zeroed
// entry for it if needed.
func (p *PatchProfile) SetBaseline(cell int, baseline int32) {
	p.baseline[p.ensure(cell)] = baseline
}

// Baseline returns the baseline for cell, or zero when absent.
func (p *PatchProfile) Baseline(cell int) int32 {
	if !p.Has(cell) {
		return 0
	}
	return p.baseline[p.cellIdx[cell]]
}

// Params returns the calibration record for cell.  ok is false when the
// cell has no entry.
func (p *PatchProfile) Params(cell int) (baseline int32, c0, c1, c2 float64, ok bool) {
	if !p.Has(cell) {
		return 0, 0, 0, 0, false
	}
	i := p.cellIdx[cell]
	return p.baseline[i], p.c0[i], p.c1[i], p.c2[i], true
}

// Profile is the calibration table over all patches.
type Profile struct {
	path string

	numPatches int
	patches    []*PatchProfile
	patchIdx   []int // patch id -> index of patches, -1 when absent
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{patchIdx: makeIndex(initialCap)}
}

// Path returns the file the profile was loaded from, if any.
func (p *Profile) Path() string { return p.path }

// NumPatches returns the number of patches with calibration data.
func (p *Profile) NumPatches() int { return p.numPatches }

// PatchIDs returns the patch ids in insertion order.
func (p *Profile) PatchIDs() []int {
	ids := make([]int, 0, p.numPatches)
	for _, pp := range p.patches {
		ids = append(ids, pp.id)
	}
	return ids
}

// Patch returns the calibration data for a patch id.
func (p *Profile) Patch(id int) (*PatchProfile, bool) {
	if id < 0 || id >= len(p.patchIdx) || p.patchIdx[id] < 0 {
		return nil, false
	}
	return p.patches[p.patchIdx[id]], true
}

// GetOrCreate returns the patch entry for id, creating it if absent.  The
// id-to-index map grows by doubling.
func (p *Profile) GetOrCreate(id int) *PatchProfile {
	if pp, ok := p.Patch(id); ok {
		return pp
	}
	if id >= len(p.patchIdx) {
		p.patchIdx = growIndex(p.patchIdx, id)
	}
	pp := newPatchProfile(id)
	p.patchIdx[id] = p.numPatches
	p.patches = append(p.patches, pp)
	p.numPatches++
	return pp
}

// SetBaseline updates the baseline of one cell, creating patch and cell
// entries as needed.
func (p *Profile) SetBaseline(patch, cell int, baseline int32) {
	p.GetOrCreate(patch).SetBaseline(cell, baseline)
}

// Tare zeroes every baseline, leaving the polynomial coefficients
// untouched.
func (p *Profile) Tare() {
	for _, pp := range p.patches {
		for i := range pp.baseline {
			pp.baseline[i] = 0
		}
	}
}
