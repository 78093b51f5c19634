// Package ring keeps the recent history of one sensor cell together with
// its exponential moving average and the calibration parameters that map
// raw device counts to calibrated values.
//
// A Ring is not safe for concurrent use; the skin facade serializes access
// with its own lock.
package ring

import "github.com/pkg/errors"

// DefaultAlpha is the smoothing factor used until SetAlpha is called.
const DefaultAlpha = 0.5

// Ring is a fixed-capacity history of calibrated samples plus a running
// exponential average.  The write cursor is internal; History returns the
// buffer in chronological order so callers never see it.
type Ring struct {
	buf    []float64
	pos    int
	expavg float64
	alpha  float64

	// Live baseline recalibration
	calibrating bool
	calibSum    int64
	calibCount  int

	// Current calibration parameters.  c1 == 0 marks an uncalibrated
	// cell whose output is suppressed.
	baseline int32
	c0       float64
	c1       float64
	c2       float64
}

// New returns a Ring with the given history capacity.  Until calibration
// parameters are set the ring passes raw values through unchanged.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:   make([]float64, capacity),
		alpha: DefaultAlpha,
		c1:    1,
	}
}

// Capacity returns the history length.
func (r *Ring) Capacity() int { return len(r.buf) }

// Value returns the current exponential average.
func (r *Ring) Value() float64 { return r.expavg }

// Alpha returns the current smoothing factor.
func (r *Ring) Alpha() float64 { return r.alpha }

// Baseline returns the current baseline calibration value.
func (r *Ring) Baseline() int32 { return r.baseline }

// Calibrating reports whether a calibration window is open.
func (r *Ring) Calibrating() bool { return r.calibrating }

// SetAlpha sets the smoothing factor for exponential averaging.  Alpha
// determines the fall-off of averaging: for alpha=1 only the most recent
// value is relevant, and alpha=0 would never change, so it is disallowed.
// The new value takes effect from the next Write.
func (r *Ring) SetAlpha(alpha float64) error {
	if alpha <= 0 || alpha > 1 {
		return errors.Errorf("alpha %v outside (0, 1]", alpha)
	}
	r.alpha = alpha
	return nil
}

// Scale returns the current calibration parameters.
func (r *Ring) Scale() (baseline int32, c0, c1, c2 float64) {
	return r.baseline, r.c0, r.c1, r.c2
}

// SetScale installs the calibration parameters used by scale.
func (r *Ring) SetScale(baseline int32, c0, c1, c2 float64) {
	r.baseline = baseline
	r.c0 = c0
	r.c1 = c1
	r.c2 = c2
}

// scale maps a raw sample to a calibrated value using the baseline and
// polynomial dynamic range parameters.
func (r *Ring) scale(raw int32) float64 {
	if r.c1 == 0 {
		return 0
	}
	dx := float64(raw - r.baseline)
	return r.c0 + dx*(r.c1+dx*r.c2)
}

// Write feeds one raw sample into the ring.  While a calibration window
// is open the sample accumulates into the batch sum instead of touching
// the history or the average.
func (r *Ring) Write(raw int32) {
	if r.calibrating {
		r.calibSum += int64(raw)
		r.calibCount++
		return
	}
	cal := r.scale(raw)
	r.buf[r.pos] = cal
	r.pos = (r.pos + 1) % len(r.buf)
	r.expavg = r.alpha*cal + (1-r.alpha)*r.expavg
}

// History copies the logical history in chronological order into dst,
// which must have length Capacity.
func (r *Ring) History(dst []float64) {
	n := copy(dst, r.buf[r.pos:])
	copy(dst[n:], r.buf[:r.pos])
}

// CalibrateBegin opens a calibration window: the batch accumulator is
// zeroed and the baseline used by scale is cleared so that samples
// accumulate as raw counts.
func (r *Ring) CalibrateBegin() {
	r.calibSum = 0
	r.calibCount = 0
	r.baseline = 0
	r.calibrating = true
}

// CalibrateEnd closes the calibration window and publishes the batch mean
// as the new baseline.  The history, average, and write position are
// reset.  ok is false when no samples arrived during the window, in which
// case the baseline is zero.
func (r *Ring) CalibrateEnd() (baseline int32, ok bool) {
	r.calibrating = false
	if r.calibCount > 0 {
		r.baseline = int32(r.calibSum / int64(r.calibCount))
		ok = true
	} else {
		r.baseline = 0
	}
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.expavg = 0
	r.pos = 0
	return r.baseline, ok
}
