// Package ata detects drives on the legacy ATA channels and exposes them
// through a name-keyed registry of generic block devices
package ata

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/ctrl"
	"github.com/ehrlich-b/go-ata/internal/logging"
	"github.com/ehrlich-b/go-ata/internal/portio"
)

// Port is the hardware port interface the driver talks through
type Port = portio.Port

// Logger is the structured logger used across the driver
type Logger = logging.Logger

// Channel is one ATA channel. Master and slave descriptors on the same
// channel share it and its lock.
type Channel = ctrl.Controller

// NewChannel returns a channel for the ports at base/control
func NewChannel(name string, base, control uint16, port Port, timing Timing, logger *Logger) *Channel {
	return ctrl.NewController(name, base, control, port, timing, logger)
}

// Descriptor is the state of one detected drive. Classification, ports and
// identity are fixed at detection; only the cursor changes afterwards.
type Descriptor struct {
	Class       Class
	BasePort    uint16
	ControlPort uint16
	Selector    Selector

	LBA48        bool
	LBA48Sectors uint64
	LBA28Sectors uint32

	Model    string
	Serial   string
	Firmware string

	cursor  atomic.Uint64
	channel *Channel
	logger  *Logger
}

// Detect resets the drive at sel on ch, classifies it by signature and
// confirms the classification with IDENTIFY. Every failure, including a
// polling timeout, is a detection failure; no descriptor is returned with
// an unknown class.
func Detect(ch *Channel, sel Selector, logger *Logger) (*Descriptor, error) {
	const op = "detect"
	if logger == nil {
		logger = logging.Default()
	}

	probe, page, err := ch.Detect(sel)
	if err != nil {
		return nil, detectionError(op, "detection failed", err)
	}
	if page == nil {
		return nil, &Error{
			Op:   op,
			Code: ErrCodeDetectionFailure,
			Msg:  fmt.Sprintf("unrecognized signature %02x:%02x", probe.Mid, probe.High),
		}
	}

	valid := page.IsATA()
	if probe.Class.IsPacket() {
		valid = page.IsPacket()
	}
	if !valid {
		return nil, &Error{
			Op:   op,
			Code: ErrCodeDetectionFailure,
			Msg:  fmt.Sprintf("identify word 0 0x%04x does not match %s signature", page[0], probe.Class),
		}
	}

	id := page.Decode()
	d := &Descriptor{
		Class:        probe.Class,
		BasePort:     ch.Base(),
		ControlPort:  ch.Control(),
		Selector:     sel,
		LBA48:        id.LBA48,
		LBA48Sectors: id.LBA48Sectors,
		LBA28Sectors: id.LBA28Sectors,
		Model:        id.Model,
		Serial:       id.Serial,
		Firmware:     id.Firmware,
		channel:      ch,
		logger:       logger,
	}

	logger.Info("drive identified",
		"class", d.Class.String(),
		"model", d.Model,
		"serial", d.Serial,
		"lba48", d.LBA48,
		"sectors", d.Blocks())
	return d, nil
}

// detectionError reclassifies an engine failure as a detection failure while
// keeping the raw registers and the cause reachable through errors.As
func detectionError(op, msg string, err error) *Error {
	e := WrapError(op, err)
	e.Code = ErrCodeDetectionFailure
	e.Msg = fmt.Sprintf("%s: %v", msg, err)
	return e
}

// Position returns the current block address
func (d *Descriptor) Position() uint64 {
	return d.cursor.Load()
}

// Seek sets the block address for the next read. It never fails: the drive,
// not the descriptor, decides whether the address is valid.
func (d *Descriptor) Seek(pos uint64) error {
	d.cursor.Store(pos)
	return nil
}

// Read transfers the block at the cursor into p and returns the byte count
// the drive delivered, never more than len(p). Packet drives use an ATAPI
// READ(12); ATA drives read one sector. The cursor is not moved.
func (d *Descriptor) Read(p []byte) (int, error) {
	const op = "read"
	if len(p) == 0 {
		return 0, NewError(op, ErrCodeInvalidParameters, "zero-length buffer")
	}

	pos := d.Position()
	var n int
	var err error
	if d.Class.IsPacket() {
		if pos > math.MaxUint32 {
			return 0, NewError(op, ErrCodeInvalidParameters, fmt.Sprintf("block %d exceeds 32-bit packet address", pos))
		}
		n, err = d.channel.PacketRead(d.Selector, uint32(pos), p)
	} else {
		ext := pos >= constants.LBA28Limit
		if ext && !d.LBA48 {
			return 0, NewError(op, ErrCodeInvalidParameters, fmt.Sprintf("block %d needs 48-bit addressing", pos))
		}
		n, err = d.channel.ReadSectors(d.Selector, pos, ext, p)
	}
	if err != nil {
		d.logger.Warn("read failed", "lba", pos, "error", err)
		return 0, WrapError(op, err)
	}
	return n, nil
}

// Write has no protocol for ATA drives in this driver
func (d *Descriptor) Write(p []byte) (int, error) {
	return 0, NewError("write", ErrCodeNotSupported, "write is not supported by the ATA driver")
}

// BlockSize returns the logical block size of the drive's transfers
func (d *Descriptor) BlockSize() int {
	if d.Class.IsPacket() {
		return constants.ATAPIBlockSize
	}
	return constants.SectorSize
}

// Blocks returns the addressable block count reported by IDENTIFY, or 0 for
// packet drives whose capacity IDENTIFY does not carry
func (d *Descriptor) Blocks() uint64 {
	if d.LBA48 && d.LBA48Sectors > 0 {
		return d.LBA48Sectors
	}
	return uint64(d.LBA28Sectors)
}

// Stats implements StatBacking
func (d *Descriptor) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":     "ata",
		"class":    d.Class.String(),
		"base":     fmt.Sprintf("0x%03x", d.BasePort),
		"drive":    d.Selector.String(),
		"model":    d.Model,
		"serial":   d.Serial,
		"firmware": d.Firmware,
		"blocks":   d.Blocks(),
		"position": d.Position(),
	}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s at 0x%03x/%s", d.Class, d.Model, d.BasePort, d.Selector)
}

// IsDetectionFailure reports whether err means no usable drive was found
func IsDetectionFailure(err error) bool {
	return errors.Is(err, ErrDetectionFailure)
}

var (
	_ Backing      = (*Descriptor)(nil)
	_ BlockBacking = (*Descriptor)(nil)
	_ StatBacking  = (*Descriptor)(nil)
)
