package ctrl

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehrlich-b/go-ata/internal/constants"
)

// Class is the drive variant reported by the reset signature
type Class int

const (
	ClassUnknown Class = iota
	ClassPATAPI
	ClassSATAPI
	ClassPATA
	ClassSATA
)

func (c Class) String() string {
	switch c {
	case ClassPATAPI:
		return "PATAPI"
	case ClassSATAPI:
		return "SATAPI"
	case ClassPATA:
		return "PATA"
	case ClassSATA:
		return "SATA"
	default:
		return "unknown"
	}
}

// IsPacket reports whether the class speaks the ATAPI packet protocol
func (c Class) IsPacket() bool {
	return c == ClassPATAPI || c == ClassSATAPI
}

// Classify maps the LBA-mid/LBA-high signature pair to a class. Only the four
// exact pairs are recognized.
func Classify(mid, high uint8) Class {
	switch {
	case mid == constants.SigPATAPIMid && high == constants.SigPATAPIHi:
		return ClassPATAPI
	case mid == constants.SigSATAPIMid && high == constants.SigSATAPIHi:
		return ClassSATAPI
	case mid == constants.SigPATAMid && high == constants.SigPATAHi:
		return ClassPATA
	case mid == constants.SigSATAMid && high == constants.SigSATAHi:
		return ClassSATA
	}
	return ClassUnknown
}

// Status is a snapshot of the status register
type Status uint8

func (s Status) Busy() bool  { return s&constants.StatusBusy != 0 }
func (s Status) Ready() bool { return s&constants.StatusRDY != 0 }
func (s Status) DRQ() bool   { return s&constants.StatusDRQ != 0 }
func (s Status) Err() bool   { return s&constants.StatusErr != 0 }
func (s Status) Fault() bool { return s&constants.StatusDF != 0 }

func (s Status) String() string {
	var flags []string
	if s.Busy() {
		flags = append(flags, "BSY")
	}
	if s.Ready() {
		flags = append(flags, "DRDY")
	}
	if s.Fault() {
		flags = append(flags, "DF")
	}
	if s.DRQ() {
		flags = append(flags, "DRQ")
	}
	if s.Err() {
		flags = append(flags, "ERR")
	}
	return fmt.Sprintf("0x%02x[%s]", uint8(s), strings.Join(flags, "|"))
}

// Selector picks the master or slave drive on a channel. Its value is the
// drive-select bit of the drive/head register.
type Selector uint8

const (
	Master Selector = 0
	Slave  Selector = constants.SlaveSelector
)

func (s Selector) String() string {
	if s == Slave {
		return "slave"
	}
	return "master"
}

// Timing bounds the polling engine
type Timing struct {
	// PollAttempts is the maximum number of status reads per wait
	PollAttempts int

	// PollTimeout is a wall-clock bound per wait; zero disables it
	PollTimeout time.Duration

	// SettleReads is the number of alternate status reads after a select
	SettleReads int
}

// DefaultTiming returns the default polling bounds
func DefaultTiming() Timing {
	return Timing{
		PollAttempts: constants.DefaultPollAttempts,
		PollTimeout:  constants.DefaultPollTimeout,
		SettleReads:  constants.DefaultSettleReads,
	}
}

func (t Timing) withDefaults() Timing {
	if t.PollAttempts <= 0 {
		t.PollAttempts = constants.DefaultPollAttempts
	}
	if t.SettleReads < 0 {
		t.SettleReads = 0
	}
	return t
}

// Probe is the result of resetting a drive and reading its signature
type Probe struct {
	Status Status
	Mid    uint8
	High   uint8
	Class  Class
}
