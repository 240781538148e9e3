package co2

import (
	"errors"
	"fmt"
)

// ErrDetached is returned by a handle that gave up the device, either to the
// handle of the next operating mode or to the caller through Release.
var ErrDetached = errors.New("scd4x: handle detached from device")

// ChecksumMismatchError reports a received word whose CRC byte does not match
// the CRC computed over its two payload bytes.
type ChecksumMismatchError struct {
	// Actual is the checksum computed over the received payload.
	Actual byte
	// Expected is the checksum byte sent by the device.
	Expected byte
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: computed %#02x, received %#02x", e.Actual, e.Expected)
}

// TransportError wraps a fault reported by the underlying bus.
type TransportError struct {
	Op      string
	Address byte
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus %s at %#02x failed: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
