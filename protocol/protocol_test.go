package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repeatReader cycles over a byte pattern forever, filling every Read
// completely.
type repeatReader struct {
	pattern []byte
	off     int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.pattern[r.off]
		r.off = (r.off + 1) % len(r.pattern)
	}
	return len(p), nil
}

// oneByteReader forces short reads to exercise the refill loop.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func frame(values ...int32) []byte {
	var b []byte
	for i, v := range values {
		b = Append(b, Record{Patch: 1, Cell: i, Value: v})
	}
	return b
}

func TestSign24(t *testing.T) {
	assert.Equal(t, int32(-8388608), Sign24(0x800000))
	assert.Equal(t, int32(8388607), Sign24(0x7FFFFF))
	assert.Equal(t, int32(0), Sign24(0x000000))
	assert.Equal(t, int32(-1), Sign24(0xFFFFFF))
	assert.Equal(t, int32(1), Sign24(0x000001))
}

func TestRoundTrip(t *testing.T) {
	want := Record{Patch: 5, Cell: 11, Value: 0x123456}
	d := NewDecoderSize(&repeatReader{pattern: Append(nil, want)}, 64, false)
	for i := 0; i < 10; i++ {
		rec, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, want, rec)
	}
	assert.Equal(t, int64(0), d.Misalignments())
}

func TestRoundTripNegativeValue(t *testing.T) {
	want := Record{Patch: 3, Cell: 0, Value: -123456}
	d := NewDecoderSize(&repeatReader{pattern: Append(nil, want)}, 64, false)
	rec, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, want, rec)
}

func TestRoundTripSequenceMode(t *testing.T) {
	want := Record{Patch: 2, Cell: 7, Value: -42, Seq: 0xDEADBEEF}
	d := NewDecoderSize(&repeatReader{pattern: AppendSeq(nil, want)}, 64, true)
	rec, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, want, rec)
}

func TestResyncAfterJunkPrefix(t *testing.T) {
	// Junk once at the front of an otherwise valid stream: the decoder
	// recovers the full record sequence with a single misalignment.
	junk := bytes.NewReader([]byte{0xAA, 0xBB})
	d := NewDecoderSize(io.MultiReader(junk, &repeatReader{pattern: frame(100, 200, 300)}), 64, false)

	for i := 0; i < 9; i++ {
		rec, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, int32(100*(1+i%3)), rec.Value)
	}
	assert.Equal(t, int64(1), d.Misalignments())
	assert.Equal(t, int64(2), d.ResyncBytes())
}

func TestRefillLosesNoRecords(t *testing.T) {
	// Stream of records with sequential values; a small buffer forces
	// frequent rewinds, which must never drop or duplicate a record.
	var pattern []byte
	for v := int32(0); v < 100; v++ {
		pattern = Append(pattern, Record{Patch: 1, Cell: int(v) % 16, Value: v * 7})
	}
	d := NewDecoderSize(&repeatReader{pattern: pattern}, 16, false)
	for v := int32(0); v < 300; v++ {
		rec, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, (v%100)*7, rec.Value)
	}
	assert.Greater(t, d.Rewinds(), int64(0))
	assert.Equal(t, int64(0), d.Misalignments())
}

func TestShortReadsLoopUntilFull(t *testing.T) {
	d := NewDecoderSize(oneByteReader{&repeatReader{pattern: frame(1, 2)}}, 16, false)
	for i := 0; i < 20; i++ {
		rec, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, int32(1+i%2), rec.Value)
	}
}

func TestCountersInvariant(t *testing.T) {
	pattern := append([]byte{0xAA, 0x11, 0x22}, frame(5, 6, 7, 8)...)
	d := NewDecoderSize(&repeatReader{pattern: pattern}, 32, false)
	for i := 0; i < 50; i++ {
		_, err := d.Next()
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, d.Records()*RecordSize+d.ResyncBytes(), d.TotalBytes())
}

func TestReadErrorIsFatal(t *testing.T) {
	d := NewDecoderSize(bytes.NewReader(frame(1)), 16, false)
	_, err := d.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
}

type silentReader struct{}

func (silentReader) Read(p []byte) (int, error) { return 0, nil }

func TestZeroReadIsFatal(t *testing.T) {
	d := NewDecoderSize(silentReader{}, 16, false)
	_, err := d.Next()
	require.Error(t, err)
}

type traceSink struct {
	rewinds   []int
	misaligns []int
	reads     int
}

func (s *traceSink) Rewind(offset int) { s.rewinds = append(s.rewinds, offset) }
func (s *traceSink) Misalign(n int)    { s.misaligns = append(s.misaligns, n) }
func (s *traceSink) Read(chunk []byte) { s.reads += len(chunk) }

func TestTracerEvents(t *testing.T) {
	pattern := append([]byte{0xAA, 0xBB, 0xCC}, frame(9, 10)...)
	d := NewDecoderSize(&repeatReader{pattern: pattern}, 16, false)
	sink := &traceSink{}
	d.SetTracer(sink)

	for i := 0; i < 10; i++ {
		_, err := d.Next()
		require.NoError(t, err)
	}
	require.NotEmpty(t, sink.misaligns)
	assert.Equal(t, 3, sink.misaligns[0])
	assert.NotEmpty(t, sink.rewinds)
	assert.Equal(t, int(d.TotalBytes()), sink.reads)
}

func TestAppendEncoding(t *testing.T) {
	b := Append(nil, Record{Patch: 5, Cell: 11, Value: 0x123456})
	assert.Equal(t, []byte{0x55, 0x5B, 0x12, 0x34, 0x56}, b)

	b = Append(nil, Record{Patch: 1, Cell: 0, Value: -1})
	assert.Equal(t, []byte{0x55, 0x10, 0xFF, 0xFF, 0xFF}, b)
}
