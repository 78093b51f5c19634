// Command skinfake generates a simulated skin sensor stream.
//
// It writes framed records for a single 4x4 patch to a file or FIFO at
// a simulated baud rate, animating a gaussian pressure blob that sweeps
// horizontally across the patch.  A drain goroutine consumes whatever
// the driver writes back (control bytes) so bidirectional FIFOs do not
// fill up.
package main

import (
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/t173/skinvis/protocol"
)

const (
	numRows = 4
	numCols = 4

	magnitude  = 1 << 20
	blobWidth  = 1.5
	horizSpeed = 2.0
)

// placement maps grid position to cell id, mirroring the prototype's
// wiring order.
var placement = [numRows][numCols]int{
	{1, 0, 8, 9},
	{3, 2, 10, 11},
	{5, 4, 12, 13},
	{7, 6, 14, 15},
}

func main() {
	var (
		device = flag.String("device", "", "output file or FIFO (required)")
		patch  = flag.Int("patch", 5, "patch id to emit")
		baud   = flag.Int("baud", 2000000, "simulated line rate")
	)
	flag.Parse()
	if *device == "" {
		logrus.Fatal("no device given")
	}

	f, err := os.OpenFile(*device, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		logrus.WithField("device", *device).Fatal(err)
	}
	defer f.Close()

	go drain(f)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// One byte takes 10 cycles on the wire (8 bits plus start and stop).
	rest := time.Duration(int64(time.Second) / int64(*baud/10) * protocol.RecordSize)
	tick := time.NewTicker(rest)
	defer tick.Stop()

	buf := make([]byte, 0, protocol.RecordSize)
	for {
		for row := 0; row < numRows; row++ {
			for col := 0; col < numCols; col++ {
				select {
				case <-quit:
					return
				case <-tick.C:
				}
				buf = protocol.Append(buf[:0], protocol.Record{
					Patch: *patch,
					Cell:  placement[row][col],
					Value: value(col),
				})
				if _, err := f.Write(buf); err != nil {
					logrus.WithError(err).Fatal("cannot write")
				}
			}
		}
	}
}

// value samples the moving gaussian blob at the given column.
func value(col int) int32 {
	now := float64(time.Now().UnixNano()) / 1e9
	pos := numCols * math.Mod(now, horizSpeed)
	return int32(magnitude * gaussian(float64(col), pos, blobWidth))
}

func gaussian(x, pos, width float64) float64 {
	x1 := x - pos
	return math.Exp(-0.5 * x1 * x1 / (width * width))
}

// drain consumes bytes the driver writes back to the device.
func drain(f *os.File) {
	buf := make([]byte, 1)
	for {
		if _, err := f.Read(buf); err != nil {
			return
		}
	}
}
