package skin

import (
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// openDevice opens the sensor device for read/write.  Real hardware is
// opened as a serial port; when that fails, a plain read/write open is
// attempted so that FIFOs and recorded streams can stand in for the
// device.
func openDevice(device string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err == nil {
		port.ResetInputBuffer()
		return port, nil
	}
	f, ferr := os.OpenFile(device, os.O_RDWR, 0)
	if ferr != nil {
		return nil, err
	}
	logger.WithField("device", device).Debug("not a serial port; opened as plain file")
	return f, nil
}

// transmit writes one control byte to the device with a bounded wait.
// A timeout or write error is warned and the byte dropped; losing a
// control byte is not fatal.
func transmit(port io.Writer, code byte) {
	done := make(chan error, 1)
	go func() {
		_, err := port.Write([]byte{code})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			logger.WithError(err).Warn("cannot write to device")
		}
	case <-time.After(writeTimeout):
		logger.Warnf("device not ready for %v; dropping control byte %q", writeTimeout, code)
	}
}
