// Package skin is the host-side driver for a tactile skin sensor.
//
// A sensor is one or more patches of pressure cells streaming framed
// records over a serial device.  A single background reader goroutine
// decodes the stream, applies per-cell calibration, and maintains
// smoothed cell values and per-patch pressure aggregates; foreground
// callers query the current state and control the calibration lifecycle
// through the Skin facade.
//
// One mutex protects the smoothed store, the pressure aggregates, the
// calibration flag, and the profile table.  The reader is the sole
// writer of cell state; it holds the lock only to publish a single cell
// update or one frame snapshot, never across blocking I/O.
package skin

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/t173/skinvis/csvlog"
	"github.com/t173/skinvis/layout"
	"github.com/t173/skinvis/profile"
	"github.com/t173/skinvis/protocol"
	"github.com/t173/skinvis/ring"
)

var logger = logrus.WithField("component", "skin")

// PressureMax is the cell value treated as full scale when computing
// patch pressure.
const PressureMax = 100

// DefaultHistory is the per-cell history capacity.
const DefaultHistory = 64

// DefaultBaud is the serial line rate of the sensor prototypes.
const DefaultBaud = 2000000

// DefaultPressureAlpha smooths the pressure aggregates until
// SetPressureAlpha is called.
const DefaultPressureAlpha = 0.1

// writeTimeout bounds control-byte writes to the device.
const writeTimeout = 3 * time.Second

// Pressure is the aggregate state of one patch: the magnitude (the sum
// of its cell values, each clamped to [0, PressureMax]) and the weighted
// centroid in patch-local coordinates.
type Pressure struct {
	Magnitude float64
	X, Y      float64
}

// AddrStatus classifies a (patch, cell) address against the layout.
type AddrStatus int

const (
	// AddrValid marks an address present in the layout.
	AddrValid AddrStatus = iota
	// AddrPatchRange marks a patch id outside the layout's id range.
	AddrPatchRange
	// AddrPatchUnknown marks a patch id in range but not in the layout.
	AddrPatchUnknown
	// AddrCellRange marks a cell id outside the patch's id range.
	AddrCellRange
	// AddrCellUnknown marks a cell id in range but not in the patch.
	AddrCellUnknown

	numAddrStatus
)

// String implements fmt.Stringer.
func (a AddrStatus) String() string {
	switch a {
	case AddrValid:
		return "valid"
	case AddrPatchRange:
		return "patch_outofrange"
	case AddrPatchUnknown:
		return "invalid_patch"
	case AddrCellRange:
		return "cell_outofrange"
	case AddrCellUnknown:
		return "invalid_cell"
	default:
		return fmt.Sprintf("AddrStatus(%d)", int(a))
	}
}

type pressureState struct {
	magnitude float64
	x, y      float64
}

// Skin manages one sensor device.
type Skin struct {
	mu sync.Mutex

	layout    *layout.Layout
	prof      *profile.Profile
	rings     []*ring.Ring
	patchBase []int // index into rings of each patch's first cell

	alpha         float64
	pressureAlpha float64
	pressure      []pressureState

	calibrating bool

	device   string
	baud     int
	history  int
	bufSize  int
	openPort func() (io.ReadWriteCloser, error)

	slog *csvlog.SampleLog
	dlog *csvlog.DebugLog

	// Reader lifecycle
	running   bool
	done      chan struct{}
	shutdown  atomic.Bool
	readerErr error

	// Performance statistics
	totalBytes    atomic.Int64
	misalignments atomic.Int64
	resyncBytes   atomic.Int64
	rewinds       atomic.Int64
	tally         [numAddrStatus]atomic.Int64
}

// New builds a sensor over a trivial layout of numPatches patches with
// ids 1..numPatches and numCells cells each.
func New(device string, numPatches, numCells int) (*Skin, error) {
	if numPatches < 1 || numCells < 1 || numCells > 16 {
		return nil, errors.Errorf("invalid dimensions %dx%d", numPatches, numCells)
	}
	return newSkin(device, layout.Trivial(numPatches, numCells)), nil
}

// NewFromLayout builds a sensor from a layout file.
func NewFromLayout(device, layoutPath string) (*Skin, error) {
	lo, err := layout.Read(layoutPath)
	if err != nil {
		return nil, err
	}
	if lo.NumPatches() == 0 {
		return nil, errors.Errorf("layout %s has no patches", layoutPath)
	}
	return newSkin(device, lo), nil
}

// NewOctocan builds a sensor with the octocan prototype dimensions of
// eight patches with sixteen cells each.
func NewOctocan(device string) (*Skin, error) {
	return New(device, 8, 16)
}

func newSkin(device string, lo *layout.Layout) *Skin {
	s := &Skin{
		layout:        lo,
		prof:          profile.New(),
		alpha:         ring.DefaultAlpha,
		pressureAlpha: DefaultPressureAlpha,
		pressure:      make([]pressureState, lo.NumPatches()),
		device:        device,
		baud:          DefaultBaud,
		history:       DefaultHistory,
		bufSize:       protocol.BufferSize,
	}
	s.openPort = func() (io.ReadWriteCloser, error) {
		return openDevice(s.device, s.baud)
	}
	s.rings = make([]*ring.Ring, 0, lo.TotalCells())
	s.patchBase = make([]int, lo.NumPatches())
	for pi := range lo.Patches {
		s.patchBase[pi] = len(s.rings)
		for range lo.Patches[pi].CellID {
			s.rings = append(s.rings, ring.New(s.history))
		}
	}
	return s
}

// Layout returns the sensor geometry.
func (s *Skin) Layout() *layout.Layout { return s.layout }

// Device returns the device path.
func (s *Skin) Device() string { return s.device }

// SetBaud overrides the serial line rate.  Must be called before Start.
func (s *Skin) SetBaud(baud int) { s.baud = baud }

// ringAt returns the ring for patch index pi, cell position ci.
func (s *Skin) ringAt(pi, ci int) *ring.Ring {
	return s.rings[s.patchBase[pi]+ci]
}

// AddressCheck classifies a user-visible (patch, cell) address.  Patch
// ids are 1-based, cell ids 0-based.
func (s *Skin) AddressCheck(patch, cell int) AddrStatus {
	if patch < 1 || patch > s.layout.MaxPatchID() {
		return AddrPatchRange
	}
	pl, ok := s.layout.Patch(patch)
	if !ok {
		return AddrPatchUnknown
	}
	if cell < 0 || cell > pl.MaxCellID() {
		return AddrCellRange
	}
	if _, ok := pl.CellIndex(cell); !ok {
		return AddrCellUnknown
	}
	return AddrValid
}

// cellIndices resolves a valid address into internal indices.
func (s *Skin) cellIndices(patch, cell int) (pi, ci int, err error) {
	if status := s.AddressCheck(patch, cell); status != AddrValid {
		return 0, 0, errors.Errorf("address %d.%d: %s", patch, cell, status)
	}
	pi, _ = s.layout.PatchIndex(patch)
	ci, _ = s.layout.Patches[pi].CellIndex(cell)
	return pi, ci, nil
}

// Cell returns the smoothed value of one cell.
func (s *Skin) Cell(patch, cell int) (float64, error) {
	pi, ci, err := s.cellIndices(patch, cell)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringAt(pi, ci).Value(), nil
}

// PatchState returns the smoothed values of every cell of a patch, in
// layout order.  The snapshot is consistent: no reader write interleaves.
func (s *Skin) PatchState(patch int) ([]float64, error) {
	pi, ok := s.layout.PatchIndex(patch)
	if !ok {
		return nil, errors.Errorf("unknown patch %d", patch)
	}
	n := s.layout.Patches[pi].NumCells()
	dst := make([]float64, n)
	s.mu.Lock()
	defer s.mu.Unlock()
	for ci := 0; ci < n; ci++ {
		dst[ci] = s.ringAt(pi, ci).Value()
	}
	return dst, nil
}

// CellHistory returns the recent calibrated samples of one cell in
// chronological order.
func (s *Skin) CellHistory(patch, cell int) ([]float64, error) {
	pi, ci, err := s.cellIndices(patch, cell)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ringAt(pi, ci)
	dst := make([]float64, r.Capacity())
	r.History(dst)
	return dst, nil
}

// GetCalibration returns the current baseline of one cell.
func (s *Skin) GetCalibration(patch, cell int) (int32, error) {
	pi, ci, err := s.cellIndices(patch, cell)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringAt(pi, ci).Baseline(), nil
}

// PatchBaselines returns the baselines of every cell of a patch in
// layout order.
func (s *Skin) PatchBaselines(patch int) ([]int32, error) {
	pi, ok := s.layout.PatchIndex(patch)
	if !ok {
		return nil, errors.Errorf("unknown patch %d", patch)
	}
	n := s.layout.Patches[pi].NumCells()
	dst := make([]int32, n)
	s.mu.Lock()
	defer s.mu.Unlock()
	for ci := 0; ci < n; ci++ {
		dst[ci] = s.ringAt(pi, ci).Baseline()
	}
	return dst, nil
}

// SetAlpha sets the smoothing factor for cell averaging, in (0, 1].
func (s *Skin) SetAlpha(alpha float64) error {
	if alpha <= 0 || alpha > 1 {
		return errors.Errorf("alpha %v outside (0, 1]", alpha)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alpha = alpha
	for _, r := range s.rings {
		if err := r.SetAlpha(alpha); err != nil {
			return err
		}
	}
	return nil
}

// SetPressureAlpha sets the smoothing factor for the pressure
// aggregates, in (0, 1].
func (s *Skin) SetPressureAlpha(alpha float64) error {
	if alpha <= 0 || alpha > 1 {
		return errors.Errorf("alpha %v outside (0, 1]", alpha)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressureAlpha = alpha
	return nil
}

// Calibrating reports whether a calibration window is open.
func (s *Skin) Calibrating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrating
}

// CalibrateBegin opens a baseline calibration window: raw samples
// accumulate into per-cell means instead of flowing into the smoothed
// store.  A duplicate begin warns and does nothing.
func (s *Skin) CalibrateBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibrating {
		logger.Warn("calibration already in progress")
		return
	}
	s.calibrating = true
	for _, r := range s.rings {
		r.CalibrateBegin()
	}
}

// CalibrateEnd closes the calibration window, publishes each cell's mean
// as its new baseline in the profile, and zeroes the smoothed store and
// the pressure aggregates.  An end without an open window warns and does
// nothing.
func (s *Skin) CalibrateEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrateEndLocked()
}

func (s *Skin) calibrateEndLocked() {
	if !s.calibrating {
		logger.Warn("no calibration in progress")
		return
	}
	s.calibrating = false
	empty := 0
	for pi := range s.layout.Patches {
		pl := &s.layout.Patches[pi]
		pp := s.prof.GetOrCreate(pl.PatchID)
		for ci, cellID := range pl.CellID {
			r := s.ringAt(pi, ci)
			baseline, ok := r.CalibrateEnd()
			if !ok {
				empty++
			}
			pp.SetBaseline(cellID, baseline)
			b, c0, c1, c2, _ := pp.Params(cellID)
			r.SetScale(b, c0, c1, c2)
			if s.dlog != nil {
				s.dlog.Baseline(pl.PatchID, cellID, baseline)
			}
		}
	}
	if empty > 0 {
		logger.Warnf("calibration window closed with no samples for %d cells; baselines set to 0", empty)
	}
	for i := range s.pressure {
		s.pressure[i] = pressureState{}
	}
}

// ReadProfile loads a dynamic range calibration profile from a CSV file
// and applies it to every matching cell.  An open calibration window is
// closed first.  Loading is idempotent; cells absent from the file
// revert to pass-through.  A malformed profile is fatal: the profile is
// configuration.
func (s *Skin) ReadProfile(path string) {
	p, err := profile.Read(path)
	if err != nil {
		logger.WithField("profile", path).Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibrating {
		s.calibrateEndLocked()
	}
	s.prof = p
	for pi := range s.layout.Patches {
		pl := &s.layout.Patches[pi]
		pp, ok := p.Patch(pl.PatchID)
		for ci, cellID := range pl.CellID {
			r := s.ringAt(pi, ci)
			if ok {
				if b, c0, c1, c2, has := pp.Params(cellID); has {
					r.SetScale(b, c0, c1, c2)
					continue
				}
			}
			r.SetScale(0, 0, 1, 0)
		}
	}
}

// Tare zeroes every baseline in the profile and the rings, leaving the
// polynomial coefficients untouched.
func (s *Skin) Tare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prof.Tare()
	for _, r := range s.rings {
		_, c0, c1, c2 := r.Scale()
		r.SetScale(0, c0, c1, c2)
	}
}

// LogStream directs per-frame sample rows to a CSV file.  Must be
// called before Start.
func (s *Skin) LogStream(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("log stream must be set before start")
	}
	columns := make([]string, 0, s.layout.TotalCells())
	for pi := range s.layout.Patches {
		pl := &s.layout.Patches[pi]
		for _, cellID := range pl.CellID {
			columns = append(columns, fmt.Sprintf("patch%d_cell%d", pl.PatchID, cellID))
		}
	}
	l, err := csvlog.CreateSample(path, columns)
	if err != nil {
		return err
	}
	s.slog = l
	return nil
}

// DebugLogStream directs protocol diagnostic events to a CSV file.
// Must be called before Start.
func (s *Skin) DebugLogStream(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("debug log stream must be set before start")
	}
	l, err := csvlog.CreateDebug(path)
	if err != nil {
		return err
	}
	s.dlog = l
	return nil
}

// Start opens the device and spawns the reader.
func (s *Skin) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("already started")
	}
	port, err := s.openPort()
	if err != nil {
		s.mu.Unlock()
		return errors.Wrapf(err, "cannot open device %s", s.device)
	}
	s.shutdown.Store(false)
	s.done = make(chan struct{})
	s.running = true
	s.readerErr = nil
	s.mu.Unlock()
	go s.run(port)
	return nil
}

// Stop signals the reader to shut down.  It is idempotent and does not
// block; use Wait to join the reader.
func (s *Skin) Stop() {
	s.shutdown.Store(true)
}

// Wait joins the reader and returns its exit error, if any.
func (s *Skin) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return s.Err()
}

// Err returns the reader's exit error, or nil while it is running or
// after a clean shutdown.
func (s *Skin) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readerErr
}

// Running reports whether the reader is active.
func (s *Skin) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the reader, waits for it, and closes the log streams.
func (s *Skin) Close() error {
	s.Stop()
	err := s.Wait()
	s.mu.Lock()
	slog, dlog := s.slog, s.dlog
	s.slog, s.dlog = nil, nil
	s.mu.Unlock()
	if cerr := slog.Close(); err == nil {
		err = cerr
	}
	if cerr := dlog.Close(); err == nil {
		err = cerr
	}
	return err
}

// TotalBytes returns the number of bytes consumed from the device.
func (s *Skin) TotalBytes() int64 { return s.totalBytes.Load() }

// TotalRecords returns the number of accepted records.
func (s *Skin) TotalRecords() int64 { return s.tally[AddrValid].Load() }

// DroppedRecords returns the number of records rejected for an invalid
// address.
func (s *Skin) DroppedRecords() int64 {
	var n int64
	for i := int(AddrPatchRange); i < int(numAddrStatus); i++ {
		n += s.tally[i].Load()
	}
	return n
}

// Misalignments returns the number of resynchronization events.
func (s *Skin) Misalignments() int64 { return s.misalignments.Load() }

// ResyncBytes returns the total bytes skipped while resynchronizing.
func (s *Skin) ResyncBytes() int64 { return s.resyncBytes.Load() }

// Tally returns the per-bucket record counts keyed by AddrStatus name.
func (s *Skin) Tally() map[string]int64 {
	t := make(map[string]int64, int(numAddrStatus))
	for i := 0; i < int(numAddrStatus); i++ {
		t[AddrStatus(i).String()] = s.tally[i].Load()
	}
	return t
}
