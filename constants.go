package ata

import (
	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/ctrl"
)

// Re-export constants for public API
const (
	SectorSize          = constants.SectorSize
	ATAPIBlockSize      = constants.ATAPIBlockSize
	MaxDevices          = constants.MaxDevices
	DefaultPollAttempts = constants.DefaultPollAttempts
	DefaultSettleReads  = constants.DefaultSettleReads
	PrimaryBase         = constants.PrimaryBase
	PrimaryControl      = constants.PrimaryControl
	SecondaryBase       = constants.SecondaryBase
	SecondaryControl    = constants.SecondaryControl
)

// Class is the drive variant determined from the reset signature
type Class = ctrl.Class

const (
	ClassUnknown = ctrl.ClassUnknown
	ClassPATAPI  = ctrl.ClassPATAPI
	ClassSATAPI  = ctrl.ClassSATAPI
	ClassPATA    = ctrl.ClassPATA
	ClassSATA    = ctrl.ClassSATA
)

// Selector picks the master or slave drive on a channel
type Selector = ctrl.Selector

const (
	Master = ctrl.Master
	Slave  = ctrl.Slave
)

// Timing bounds every status polling loop
type Timing = ctrl.Timing

// DefaultTiming returns the default polling bounds
func DefaultTiming() Timing {
	return ctrl.DefaultTiming()
}
