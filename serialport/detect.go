// Package serialport finds the serial device a skin sensor is attached
// to by probing candidate ports for framed streaming traffic.
package serialport

import (
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"go.bug.st/serial/enumerator"

	"github.com/t173/skinvis/protocol"
)

var logger = logrus.WithField("component", "serialport")

// probe parameters: how much traffic to collect and how long to wait
// for it before giving up on a port.
const (
	probeBytes   = 64
	probeTimeout = 300 * time.Millisecond
)

// Detect probes candidate ports and returns the first one that streams
// framed sensor records, or "" when none responds.  The preferred port,
// if non-empty, is tried first.
func Detect(preferred string, baud int) string {
	for _, name := range candidatePorts(preferred) {
		logger.WithField("port", name).Debug("probing")
		if Probe(name, baud) {
			return name
		}
	}
	return ""
}

// candidatePorts builds the probe order: the preferred port first, then
// whatever the OS enumerator reports, then filesystem globs for hosts
// where enumeration comes back empty.  The result is de-duplicated.
func candidatePorts(preferred string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 8)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	add(preferred)

	enumerated := 0
	if ports, err := enumerator.GetDetailedPortsList(); err == nil {
		names := make([]string, 0, len(ports))
		for _, p := range ports {
			if p != nil && p.Name != "" {
				names = append(names, p.Name)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			add(n)
		}
		enumerated = len(names)
	}
	if enumerated > 0 {
		return out
	}

	for _, pat := range globPatterns() {
		matches, _ := filepath.Glob(pat)
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out
}

// globPatterns lists the device-name patterns to fall back on when the
// enumerator reports nothing for this OS.
func globPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		// COM ports are only reachable through the enumerator.
		return nil
	case "darwin":
		return []string{"/dev/cu.*", "/dev/tty.*"}
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/tty.*"}
	}
}

// Probe opens a port, requests streaming, and checks the traffic for a
// framed record anchor.  The device is quiesced before the port closes.
func Probe(name string, baud int) bool {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: probeTimeout}
	sp, err := serial.OpenPort(cfg)
	if err != nil {
		return false
	}
	defer func() { _ = sp.Close() }()

	if _, err := sp.Write([]byte{protocol.StartCode}); err != nil {
		return false
	}
	buf := make([]byte, 0, probeBytes)
	tmp := make([]byte, probeBytes)
	deadline := time.Now().Add(probeTimeout)
	for len(buf) < probeBytes && time.Now().Before(deadline) {
		n, err := sp.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	_, _ = sp.Write([]byte{protocol.StopCode})
	return hasAnchor(buf)
}

// hasAnchor reports whether b contains two magic bytes one record
// apart, the same framing test the decoder uses.
func hasAnchor(b []byte) bool {
	for i := 0; i+protocol.RecordSize < len(b); i++ {
		if b[i] == protocol.Magic && b[i+protocol.RecordSize] == protocol.Magic {
			return true
		}
	}
	return false
}
