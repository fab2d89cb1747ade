package ctrl

import (
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/go-ata/internal/bufpool"
	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/logging"
	"github.com/ehrlich-b/go-ata/internal/portio"
	"github.com/ehrlich-b/go-ata/internal/wire"
)

// maxTransferChunks bounds the DRQ chunks accepted for one PACKET command.
// A single 2048-byte block under the smallest byte-count limit (2) takes 1024.
const maxTransferChunks = constants.ATAPIBlockSize

// Controller drives one ATA channel. Master and slave share the channel's
// ports, so every operation holds the channel lock from drive select until the
// command completes or fails.
type Controller struct {
	mu      sync.Mutex
	name    string
	base    uint16
	control uint16
	io      portio.Port
	timing  Timing
	logger  *logging.Logger
}

// NewController returns a controller for the channel at base/control
func NewController(name string, base, control uint16, io portio.Port, timing Timing, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		name:    name,
		base:    base,
		control: control,
		io:      io,
		timing:  timing.withDefaults(),
		logger:  logger.WithChannel(name, base),
	}
}

func (c *Controller) Name() string    { return c.name }
func (c *Controller) Base() uint16    { return c.base }
func (c *Controller) Control() uint16 { return c.control }
func (c *Controller) Timing() Timing  { return c.timing }

func (c *Controller) reg(off uint16) uint16 {
	return c.base + off
}

func (c *Controller) status() Status {
	return Status(c.io.Inb(c.reg(constants.RegStatus)))
}

func (c *Controller) altStatus() Status {
	return Status(c.io.Inb(c.control))
}

// settle burns the ~400ns a drive needs after selection by reading the
// alternate status port, which does not acknowledge interrupts.
func (c *Controller) settle() {
	for i := 0; i < c.timing.SettleReads; i++ {
		c.altStatus()
	}
}

func (c *Controller) selectDrive(v uint8) {
	c.io.Outb(c.reg(constants.RegDriveHead), v)
	c.settle()
}

// poll reads the status register until done reports true or the attempt or
// wall-clock bound is exhausted.
func (c *Controller) poll(op, waiting string, done func(Status) bool) (Status, error) {
	start := time.Now()
	var deadline time.Time
	if c.timing.PollTimeout > 0 {
		deadline = start.Add(c.timing.PollTimeout)
	}

	var s Status
	attempts := 0
	for attempts < c.timing.PollAttempts {
		attempts++
		s = c.status()
		if done(s) {
			return s, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
	}

	err := &TimeoutError{
		Op:       op,
		Waiting:  waiting,
		Last:     s,
		Attempts: attempts,
		Elapsed:  time.Since(start),
	}
	c.logger.Warn("poll timed out", "op", op, "waiting", waiting, "status", s.String(), "attempts", attempts)
	return s, err
}

func (c *Controller) waitNotBusy(op string) (Status, error) {
	return c.poll(op, "BSY clear", func(s Status) bool { return !s.Busy() })
}

// waitData waits for the drive to either request data or report an error
func (c *Controller) waitData(op string) (Status, error) {
	return c.poll(op, "DRQ or ERR", func(s Status) bool {
		return !s.Busy() && (s.DRQ() || s.Err() || s.Fault())
	})
}

// failed builds a StatusError if s carries ERR or DF
func (c *Controller) failed(op string, s Status) error {
	if !s.Err() && !s.Fault() {
		return nil
	}
	errReg := c.io.Inb(c.reg(constants.RegError))
	c.logger.Warn("device reported error", "op", op, "status", s.String(), "error_reg", fmt.Sprintf("0x%02x", errReg))
	return &StatusError{Op: op, Status: s, ErrReg: errReg}
}

// Probe software-resets the channel, selects sel and reads its signature.
// It issues no command.
func (c *Controller) Probe(sel Selector) (Probe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probe(sel)
}

func (c *Controller) probe(sel Selector) (Probe, error) {
	const op = "probe"
	c.io.Outb(c.control, constants.ControlNIEN|constants.ControlSRST)
	c.settle()
	c.io.Outb(c.control, constants.ControlNIEN)
	c.selectDrive(constants.DriveSelectBase | uint8(sel))

	if c.altStatus() == portio.FloatingByte {
		return Probe{Status: portio.FloatingByte}, ErrFloatingBus
	}

	s, err := c.waitNotBusy(op)
	if err != nil {
		return Probe{Status: s}, err
	}
	if !s.Ready() {
		c.logger.Debug("drive not ready after reset", "drive", sel.String(), "status", s.String())
	}

	p := Probe{
		Status: s,
		Mid:    c.io.Inb(c.reg(constants.RegLBAMid)),
		High:   c.io.Inb(c.reg(constants.RegLBAHigh)),
	}
	p.Class = Classify(p.Mid, p.High)
	c.logger.Debug("probed drive", "drive", sel.String(),
		"signature", fmt.Sprintf("%02x:%02x", p.Mid, p.High), "class", p.Class.String())
	return p, nil
}

// Identify issues IDENTIFY DEVICE, or IDENTIFY PACKET DEVICE when packet is
// set, and returns the 256-word response.
func (c *Controller) Identify(sel Selector, packet bool) (*wire.IdentifyPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identify(sel, packet)
}

func (c *Controller) identify(sel Selector, packet bool) (*wire.IdentifyPage, error) {
	op, cmd := "identify", uint8(constants.CmdIdentify)
	if packet {
		op, cmd = "identify packet", constants.CmdIdentifyPacket
	}

	c.selectDrive(constants.DriveSelectBase | uint8(sel))
	c.io.Outb(c.reg(constants.RegSectorCount), 0)
	c.io.Outb(c.reg(constants.RegLBALow), 0)
	c.io.Outb(c.reg(constants.RegLBAMid), 0)
	c.io.Outb(c.reg(constants.RegLBAHigh), 0)
	c.io.Outb(c.reg(constants.RegCommand), cmd)

	s, err := c.waitNotBusy(op)
	if err != nil {
		return nil, err
	}
	if s == 0 {
		return nil, ErrNoDevice
	}
	if err := c.failed(op, s); err != nil {
		return nil, err
	}

	// Packet drives keep their signature in LBA-mid/high across IDENTIFY
	// PACKET; only a plain ATA responder must leave them zero.
	if !packet {
		mid := c.io.Inb(c.reg(constants.RegLBAMid))
		high := c.io.Inb(c.reg(constants.RegLBAHigh))
		if mid != 0 || high != 0 {
			c.logger.Debug("identify signature mismatch", "mid", mid, "high", high)
			return nil, ErrNotATA
		}
	}

	s, err = c.waitData(op)
	if err != nil {
		return nil, err
	}
	if err := c.failed(op, s); err != nil {
		return nil, err
	}

	page := new(wire.IdentifyPage)
	c.io.Insw(c.reg(constants.RegData), page[:])
	return page, nil
}

// Detect runs Probe and then the IDENTIFY variant matching the signature
// without releasing the channel lock, so no other caller's reset can land
// between the two. An unrecognized signature returns the probe with a nil
// page and a nil error. Failures are wrapped with the step that failed.
func (c *Controller) Detect(sel Selector) (Probe, *wire.IdentifyPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.probe(sel)
	if err != nil {
		return p, nil, fmt.Errorf("reset: %w", err)
	}
	if p.Class == ClassUnknown {
		return p, nil, nil
	}
	page, err := c.identify(sel, p.Class.IsPacket())
	if err != nil {
		return p, nil, fmt.Errorf("identify: %w", err)
	}
	return p, page, nil
}

// ByteCountLimit returns the limit programmed for a PACKET read into a
// buffer of capacity bytes: at most 0xFFFE, even and never zero.
func ByteCountLimit(capacity int) uint16 {
	limit := capacity
	if limit > constants.MaxByteCountLimit {
		limit = constants.MaxByteCountLimit
	}
	limit &^= 1
	if limit < 2 {
		limit = 2
	}
	return uint16(limit)
}

// PacketRead reads one logical block at lba with a SCSI READ(12) packet.
// At most len(p) bytes are stored; any excess the device sends is drained.
// It returns the number of bytes stored in p.
func (c *Controller) PacketRead(sel Selector, lba uint32, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrShortBuffer
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "packet read"
	limit := ByteCountLimit(len(p))

	c.selectDrive(constants.DriveSelectBase | uint8(sel))
	c.io.Outb(c.reg(constants.RegFeatures), 0)
	c.io.Outb(c.reg(constants.RegLBAMid), uint8(limit))
	c.io.Outb(c.reg(constants.RegLBAHigh), uint8(limit>>8))
	c.io.Outb(c.reg(constants.RegCommand), constants.CmdPacket)

	if _, err := c.waitNotBusy(op); err != nil {
		return 0, err
	}
	s, err := c.waitData(op)
	if err != nil {
		return 0, err
	}
	if err := c.failed(op, s); err != nil {
		return 0, err
	}

	packet := wire.Read12(lba).Words()
	c.io.Outsw(c.reg(constants.RegData), packet[:])

	n := 0
	for chunk := 0; ; chunk++ {
		if chunk >= maxTransferChunks {
			return n, ErrBadTransfer
		}

		s, err := c.waitData(op)
		if err != nil {
			return n, err
		}
		if err := c.failed(op, s); err != nil {
			return n, err
		}
		if !s.DRQ() {
			break
		}

		size := int(c.io.Inb(c.reg(constants.RegLBAHigh)))<<8 | int(c.io.Inb(c.reg(constants.RegLBAMid)))
		if size == 0 {
			return n, ErrBadTransfer
		}

		words := bufpool.GetWords((size + 1) / 2)
		c.io.Insw(c.reg(constants.RegData), words)
		end := n + size
		if end > len(p) {
			end = len(p)
		}
		n += wire.PutWords(p[n:end], words)
		bufpool.PutWords(words)

		s, err = c.waitNotBusy(op)
		if err != nil {
			return n, err
		}
		if err := c.failed(op, s); err != nil {
			return n, err
		}
		if !s.DRQ() {
			break
		}
	}

	c.logger.Debug("packet read complete", "drive", sel.String(), "lba", lba, "bytes", n)
	return n, nil
}

// ReadSectors reads one 512-byte sector at lba with READ SECTORS, or READ
// SECTORS EXT when lba48 is set. At most len(p) bytes are stored.
func (c *Controller) ReadSectors(sel Selector, lba uint64, lba48 bool, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrShortBuffer
	}
	if (!lba48 && lba >= constants.LBA28Limit) || lba >= 1<<48 {
		return 0, ErrLBARange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	op := "read sectors"
	if lba48 {
		op = "read sectors ext"
		c.selectDrive(constants.DriveSelectBase | constants.DriveLBAMode | uint8(sel))
		c.io.Outb(c.reg(constants.RegSectorCount), 0)
		c.io.Outb(c.reg(constants.RegLBALow), uint8(lba>>24))
		c.io.Outb(c.reg(constants.RegLBAMid), uint8(lba>>32))
		c.io.Outb(c.reg(constants.RegLBAHigh), uint8(lba>>40))
		c.io.Outb(c.reg(constants.RegSectorCount), 1)
		c.io.Outb(c.reg(constants.RegLBALow), uint8(lba))
		c.io.Outb(c.reg(constants.RegLBAMid), uint8(lba>>8))
		c.io.Outb(c.reg(constants.RegLBAHigh), uint8(lba>>16))
		c.io.Outb(c.reg(constants.RegCommand), constants.CmdReadSectorsExt)
	} else {
		c.selectDrive(constants.DriveSelectBase | constants.DriveLBAMode | uint8(sel) | uint8(lba>>24)&0x0F)
		c.io.Outb(c.reg(constants.RegSectorCount), 1)
		c.io.Outb(c.reg(constants.RegLBALow), uint8(lba))
		c.io.Outb(c.reg(constants.RegLBAMid), uint8(lba>>8))
		c.io.Outb(c.reg(constants.RegLBAHigh), uint8(lba>>16))
		c.io.Outb(c.reg(constants.RegCommand), constants.CmdReadSectors)
	}

	s, err := c.waitData(op)
	if err != nil {
		return 0, err
	}
	if err := c.failed(op, s); err != nil {
		return 0, err
	}
	if !s.DRQ() {
		return 0, ErrBadTransfer
	}

	words := bufpool.GetWords(constants.SectorSize / 2)
	defer bufpool.PutWords(words)
	c.io.Insw(c.reg(constants.RegData), words)
	n := wire.PutWords(p, words)

	if s, err = c.waitNotBusy(op); err != nil {
		return n, err
	}
	if err := c.failed(op, s); err != nil {
		return n, err
	}

	c.logger.Debug("sector read complete", "drive", sel.String(), "lba", lba, "bytes", n)
	return n, nil
}
