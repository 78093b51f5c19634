package protocol

import (
	"io"

	"github.com/pkg/errors"
)

// Tracer receives decoder events for debug logging.  Methods are called
// from whichever goroutine drives the Decoder.
type Tracer interface {
	// Rewind reports a buffer compaction; offset is how far the tape
	// rolled back.
	Rewind(offset int)
	// Misalign reports a completed resynchronization and the number of
	// single-byte advances it took.
	Misalign(advances int)
	// Read reports a chunk of bytes read from the device.
	Read(chunk []byte)
}

// Decoder frames records out of a byte stream.  It owns a fixed read
// buffer which it keeps full: when fewer than one record plus the
// anchor byte remain, the tail is compacted to the front and the buffer
// refilled from the reader, blocking as needed.
//
// A Decoder is driven by a single goroutine.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pos     int
	filled  bool
	withSeq bool
	recSize int
	tracer  Tracer

	totalBytes    int64
	records       int64
	misalignments int64
	resyncBytes   int64
	rewinds       int64
}

// NewDecoder returns a Decoder over r using the default buffer size and
// the original 5-byte record format.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, BufferSize, false)
}

// NewDecoderSize returns a Decoder with an explicit buffer capacity.
// withSeq selects the 9-byte sequence-numbered record format.  The
// buffer must hold at least one record plus the anchor byte; smaller
// requests are rounded up.
func NewDecoderSize(r io.Reader, bufSize int, withSeq bool) *Decoder {
	recSize := RecordSize
	if withSeq {
		recSize = SeqRecordSize
	}
	if bufSize < recSize+1 {
		bufSize = recSize + 1
	}
	return &Decoder{
		r:       r,
		buf:     make([]byte, bufSize),
		withSeq: withSeq,
		recSize: recSize,
	}
}

// SetTracer installs a debug event sink.  Pass nil to disable.
func (d *Decoder) SetTracer(t Tracer) { d.tracer = t }

// TotalBytes returns the number of bytes consumed from the reader.
func (d *Decoder) TotalBytes() int64 { return d.totalBytes }

// Records returns the number of records decoded.
func (d *Decoder) Records() int64 { return d.records }

// Misalignments returns the number of resynchronization events.
func (d *Decoder) Misalignments() int64 { return d.misalignments }

// ResyncBytes returns the total number of single-byte advances taken
// while resynchronizing.
func (d *Decoder) ResyncBytes() int64 { return d.resyncBytes }

// Rewinds returns the number of buffer compactions.
func (d *Decoder) Rewinds() int64 { return d.rewinds }

// fill reads from the device until b is full.  Short reads loop; a read
// error or a zero-byte read is fatal.
func (d *Decoder) fill(b []byte) error {
	pos := 0
	for pos < len(b) {
		n, err := d.r.Read(b[pos:])
		if n > 0 {
			if d.tracer != nil {
				d.tracer.Read(b[pos : pos+n])
			}
			pos += n
			d.totalBytes += int64(n)
		}
		if pos == len(b) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "device read")
		}
		if n == 0 {
			return errors.New("device read returned no data")
		}
	}
	return nil
}

// Next blocks until the next framed record is available and returns it.
// Any error is fatal: the device vanishing is unrecoverable.
func (d *Decoder) Next() (Record, error) {
	if !d.filled {
		if err := d.fill(d.buf); err != nil {
			return Record{}, err
		}
		d.filled = true
		d.pos = 0
	}
	advances := 0
	for {
		// The anchor test needs one byte past the record.
		if d.pos+d.recSize+1 > len(d.buf) {
			if d.tracer != nil {
				d.tracer.Rewind(d.pos)
			}
			d.rewinds++
			tail := copy(d.buf, d.buf[d.pos:])
			if err := d.fill(d.buf[tail:]); err != nil {
				return Record{}, err
			}
			d.pos = 0
		}
		if d.buf[d.pos] == Magic && d.buf[d.pos+d.recSize] == Magic {
			break
		}
		d.pos++
		advances++
	}
	if advances > 0 {
		d.misalignments++
		d.resyncBytes += int64(advances)
		if d.tracer != nil {
			d.tracer.Misalign(advances)
		}
	}
	rec := decode(d.buf[d.pos:], d.withSeq)
	d.pos += d.recSize
	d.records++
	return rec, nil
}
