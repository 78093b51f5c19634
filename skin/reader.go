package skin

import (
	"io"
	"time"

	"github.com/t173/skinvis/protocol"
)

// decoderTracer forwards decoder events to the debug log.
type decoderTracer struct {
	s *Skin
}

func (t decoderTracer) Rewind(offset int) { t.s.dlog.Rewind(offset) }
func (t decoderTracer) Misalign(n int)    { t.s.dlog.Misalign(n) }
func (t decoderTracer) Read(chunk []byte) { t.s.dlog.Read(chunk) }

// run is the reader task.  It owns the device handle for its lifetime:
// quiesce any prior stream, start streaming, then decode records until
// shutdown or a fatal read error.
func (s *Skin) run(port io.ReadWriteCloser) {
	var exitErr error
	defer func() {
		port.Close()
		s.slog.Flush()
		s.dlog.Flush()
		s.mu.Lock()
		s.readerErr = exitErr
		s.running = false
		s.mu.Unlock()
		close(s.done)
	}()

	transmit(port, protocol.StopCode)
	transmit(port, protocol.StartCode)

	dec := protocol.NewDecoderSize(port, s.bufSize, false)
	if s.dlog != nil {
		dec.SetTracer(decoderTracer{s})
	}

	for !s.shutdown.Load() {
		rec, err := dec.Next()
		s.totalBytes.Store(dec.TotalBytes())
		s.misalignments.Store(dec.Misalignments())
		s.resyncBytes.Store(dec.ResyncBytes())
		s.rewinds.Store(dec.Rewinds())
		if err != nil {
			if !s.shutdown.Load() {
				logger.WithField("device", s.device).WithError(err).Error("reader terminating")
				exitErr = err
			}
			return
		}
		s.handleRecord(rec)
	}
	transmit(port, protocol.StopCode)
}

// handleRecord classifies one decoded record and publishes it into the
// smoothed store, or counts it into a reject bucket.
func (s *Skin) handleRecord(rec protocol.Record) {
	status := s.AddressCheck(rec.Patch, rec.Cell)
	s.tally[status].Add(1)
	if status != AddrValid {
		if s.dlog != nil {
			s.dlog.Drop(rec.Patch, rec.Cell)
		}
		return
	}
	if s.dlog != nil {
		s.dlog.Parse(rec.Patch, rec.Cell, rec.Value)
	}

	pi, _ := s.layout.PatchIndex(rec.Patch)
	pl := &s.layout.Patches[pi]
	ci, _ := pl.CellIndex(rec.Cell)

	var frame []float64
	var when time.Time

	s.mu.Lock()
	s.ringAt(pi, ci).Write(rec.Value)
	if !s.calibrating && ci == pl.NumCells()-1 {
		s.updatePressureLocked(pi, pl)
		// A full frame ends on the last cell of the last patch.
		if pi == len(s.layout.Patches)-1 && s.slog != nil {
			frame = s.snapshotLocked()
			when = time.Now()
		}
	}
	s.mu.Unlock()

	if frame != nil {
		s.slog.WriteFrame(when, frame)
	}
}

// snapshotLocked copies every cell value in layout order.
func (s *Skin) snapshotLocked() []float64 {
	dst := make([]float64, len(s.rings))
	for i, r := range s.rings {
		dst[i] = r.Value()
	}
	return dst
}
