package ctrl

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDevice means the status register read back zero after a command
	ErrNoDevice = errors.New("ctrl: no device responded")

	// ErrFloatingBus means the status register read back 0xFF: nothing is
	// driving the channel
	ErrFloatingBus = errors.New("ctrl: floating bus")

	// ErrNotATA means LBA-mid/high were non-zero after IDENTIFY
	ErrNotATA = errors.New("ctrl: responder is not an ATA device")

	// ErrShortBuffer means the caller buffer cannot hold any data
	ErrShortBuffer = errors.New("ctrl: buffer too small")

	// ErrLBARange means the block address does not fit the addressing mode
	ErrLBARange = errors.New("ctrl: block address out of range")

	// ErrBadTransfer means the device asserted DRQ with a zero byte count
	// or kept requesting transfers past any sane bound
	ErrBadTransfer = errors.New("ctrl: device reported an invalid transfer")
)

// TimeoutError is returned when a polling wait exceeds its bound
type TimeoutError struct {
	Op       string        // command in progress
	Waiting  string        // condition that never held
	Last     Status        // final status observed
	Attempts int           // status reads issued
	Elapsed  time.Duration // time spent polling
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ctrl: %s: timed out waiting for %s after %d polls (%s), status %s",
		e.Op, e.Waiting, e.Attempts, e.Elapsed, e.Last)
}

// StatusError is returned when the device sets ERR or DF
type StatusError struct {
	Op     string
	Status Status
	ErrReg uint8 // error register at the time of failure
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ctrl: %s: device error, status %s, error register 0x%02x",
		e.Op, e.Status, e.ErrReg)
}
