// Package csvlog writes the driver's CSV log streams: one row of cell
// values per completed frame, and a debug event stream for protocol
// diagnostics.
//
// Both logs are opened eagerly by the facade before streaming starts;
// the reader borrows the handle and flushes on exit.  Rows carry a
// wall-clock timestamp with nanosecond resolution ("sec.nsec").
package csvlog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// stamp formats t in the log timestamp format.
func stamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// SampleLog appends one row of cell values per completed frame.  Methods
// are safe for concurrent use.
type SampleLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// CreateSample creates (truncating) the sample log at path and writes
// the header row.  Column names follow the layout order.
func CreateSample(path string, columns []string) (*SampleLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open log file %s", path)
	}
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "time,%s\n", strings.Join(columns, ",")); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "cannot write log header %s", path)
	}
	return &SampleLog{f: f, w: w}, nil
}

// WriteFrame appends one row: the timestamp followed by every cell value.
func (l *SampleLog) WriteFrame(t time.Time, values []float64) error {
	sb := &strings.Builder{}
	sb.WriteString(stamp(t))
	for _, v := range values {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte('\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.WriteString(sb.String())
	return err
}

// Flush writes buffered rows through to the file.
func (l *SampleLog) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

// Close flushes and closes the underlying file.
func (l *SampleLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// DebugLog appends protocol diagnostic events.  Methods are safe for
// concurrent use.
type DebugLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// CreateDebug creates (truncating) the debug log at path and writes the
// header row.
func CreateDebug(path string) (*DebugLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open debug log %s", path)
	}
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, "time,event,value"); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "cannot write debug log header %s", path)
	}
	return &DebugLog{f: f, w: w}, nil
}

// Event appends one raw event row.
func (l *DebugLog) Event(event, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.w, "%s,%s,%s\n", stamp(time.Now()), event, value)
	return err
}

// Rewind records a buffer compaction at the given byte offset.
func (l *DebugLog) Rewind(offset int) error {
	return l.Event("rewind", strconv.Itoa(offset))
}

// Misalign records a resynchronization and its advance count.
func (l *DebugLog) Misalign(advances int) error {
	return l.Event("misalign", strconv.Itoa(advances))
}

// Parse records an accepted record.
func (l *DebugLog) Parse(patch, cell int, value int32) error {
	return l.Event("parse", fmt.Sprintf("%d.%d=%d", patch, cell, value))
}

// Drop records a rejected record.
func (l *DebugLog) Drop(patch, cell int) error {
	return l.Event("drop", fmt.Sprintf("%d.%d", patch, cell))
}

// Baseline records the published baseline of one cell at the end of a
// calibration window.
func (l *DebugLog) Baseline(patch, cell int, value int32) error {
	return l.Event("baseline", fmt.Sprintf("%d.%d=%d", patch, cell, value))
}

// Read records a chunk of bytes read from the device.
func (l *DebugLog) Read(chunk []byte) error {
	return l.Event("read", hex.EncodeToString(chunk))
}

// Flush writes buffered events through to the file.
func (l *DebugLog) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

// Close flushes and closes the underlying file.
func (l *DebugLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
