package constants

import "time"

// Register offsets from a channel's base port
const (
	RegData        = 0
	RegError       = 1 // read
	RegFeatures    = 1 // write
	RegSectorCount = 2
	RegLBALow      = 3
	RegLBAMid      = 4
	RegLBAHigh     = 5
	RegDriveHead   = 6
	RegStatus      = 7 // read
	RegCommand     = 7 // write
)

// Status register bits
const (
	StatusErr  = 1 << 0
	StatusDRQ  = 1 << 3
	StatusDF   = 1 << 5
	StatusRDY  = 1 << 6
	StatusBusy = 1 << 7
)

// Device control register bits
const (
	ControlNIEN = 1 << 1
	ControlSRST = 1 << 2
)

// Drive/head register values
const (
	// DriveSelectBase is OR'd with the slave selector when selecting a drive
	DriveSelectBase = 0xA0

	// DriveLBAMode enables LBA addressing for READ SECTORS
	DriveLBAMode = 0x40

	// SlaveSelector selects the slave drive on a channel
	SlaveSelector = 1 << 4
)

// Command opcodes
const (
	CmdReadSectors    = 0x20
	CmdReadSectorsExt = 0x24
	CmdPacket         = 0xA0
	CmdIdentifyPacket = 0xA1
	CmdIdentify       = 0xEC

	// SCSIRead12 is the opcode carried in byte 0 of a READ(12) packet
	SCSIRead12 = 0xA8
)

// Transfer geometry
const (
	PacketSize        = 12 // bytes in an ATAPI command packet
	PacketWords       = PacketSize / 2
	IdentifyWords     = 256
	SectorSize        = 512
	ATAPIBlockSize    = 2048
	MaxByteCountLimit = 0xFFFE
	LBA28Limit        = 1 << 28
)

// Signature bytes (LBA-mid, LBA-high) left by a drive after reset
const (
	SigPATAPIMid = 0x14
	SigPATAPIHi  = 0xEB
	SigSATAPIMid = 0x69
	SigSATAPIHi  = 0x96
	SigPATAMid   = 0x00
	SigPATAHi    = 0x00
	SigSATAMid   = 0x3C
	SigSATAHi    = 0xC3
)

// Legacy channel port assignments
const (
	PrimaryBase      = 0x1F0
	PrimaryControl   = 0x3F6
	SecondaryBase    = 0x170
	SecondaryControl = 0x376

	// MaxDevices is the number of legacy slots: two channels, master and slave
	MaxDevices = 4
)

// Timing defaults for the polling engine
const (
	// DefaultPollAttempts bounds every status polling loop
	DefaultPollAttempts = 100000

	// DefaultPollTimeout is the wall-clock bound on a polling loop (0 disables it)
	DefaultPollTimeout = 0 * time.Millisecond

	// DefaultSettleReads is the number of alternate status reads issued after a
	// drive select. Each read takes roughly 100ns on ISA timing.
	DefaultSettleReads = 4
)
