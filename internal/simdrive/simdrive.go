// Package simdrive emulates a legacy ATA channel with up to two attached
// drives. A Channel plugs into a portio.Bus and answers the task-file,
// data and control ports the way PIO-mode ATA and ATAPI devices do.
package simdrive

import (
	"fmt"
	"io"
	"sync"

	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/portio"
	"github.com/ehrlich-b/go-ata/internal/wire"
)

// Kind is the interface a simulated drive presents
type Kind int

const (
	PATA Kind = iota
	SATA
	PATAPI
	SATAPI
)

func (k Kind) String() string {
	switch k {
	case PATA:
		return "PATA"
	case SATA:
		return "SATA"
	case PATAPI:
		return "PATAPI"
	case SATAPI:
		return "SATAPI"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name to a Kind
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{PATA, SATA, PATAPI, SATAPI} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("simdrive: unknown drive kind %q", name)
}

// Packet reports whether the kind speaks the ATAPI packet protocol
func (k Kind) Packet() bool {
	return k == PATAPI || k == SATAPI
}

// Signature returns the LBA-mid/LBA-high pair the kind loads on reset
func (k Kind) Signature() (mid, high uint8) {
	switch k {
	case SATA:
		return constants.SigSATAMid, constants.SigSATAHi
	case PATAPI:
		return constants.SigPATAPIMid, constants.SigPATAPIHi
	case SATAPI:
		return constants.SigSATAPIMid, constants.SigSATAPIHi
	}
	return constants.SigPATAMid, constants.SigPATAHi
}

// BlockSize is the logical block size of the kind's media
func (k Kind) BlockSize() int {
	if k.Packet() {
		return constants.ATAPIBlockSize
	}
	return constants.SectorSize
}

// Error register bits
const (
	ErrABRT = 1 << 2 // command aborted
	ErrIDNF = 1 << 4 // address not found
)

// Faults injects misbehavior into a drive
type Faults struct {
	// StuckBusy keeps BSY set on every status read
	StuckBusy bool

	// Signature, when set, replaces the reset signature
	Signature *[2]uint8

	// Word0, when set, replaces IDENTIFY word 0
	Word0 *uint16

	// AbortIdentify fails both IDENTIFY variants with ABRT
	AbortIdentify bool

	// StaleSignature leaves non-zero LBA-mid/high after IDENTIFY
	StaleSignature bool

	// AbortPacket fails the PACKET command before the packet is sent
	AbortPacket bool

	// ReadError fails media reads with an error after the command is accepted
	ReadError bool

	// ExtraBytes is sent beyond the requested block on a packet read
	ExtraBytes int
}

// Drive describes one simulated drive
type Drive struct {
	Kind     Kind
	Media    io.ReaderAt // nil reads as zeros
	Sectors  uint64      // capacity in logical blocks
	Model    string
	Serial   string
	Firmware string
	LBA48    bool

	// BusyReads is the number of status reads that report BSY after a reset
	// or command before the result becomes visible
	BusyReads int

	Faults Faults
}

// Identity returns the IDENTIFY fields the drive reports
func (d *Drive) Identity() wire.Identity {
	id := wire.Identity{
		Serial:   d.Serial,
		Firmware: d.Firmware,
		Model:    d.Model,
	}
	if d.Kind.Packet() {
		// ATAPI, CD-ROM device type, removable
		id.GeneralConfig = 0x8580
		return id
	}
	id.GeneralConfig = 0x0040
	id.LBA = true
	id.LBA28Sectors = uint32(d.Sectors)
	if d.Sectors >= constants.LBA28Limit {
		id.LBA28Sectors = constants.LBA28Limit - 1
	}
	if d.LBA48 {
		id.LBA48 = true
		id.LBA48Sectors = d.Sectors
	}
	return id
}

type phase int

const (
	phaseIdle phase = iota
	phaseData
	phasePacket
)

// taskFile is one drive's copy of the command block registers. Writes
// reach both drives on a channel; reads come from the selected one.
type taskFile struct {
	features, count, lo, mid, high, head uint8
	hobCount, hobLo, hobMid, hobHigh     uint8
}

type unit struct {
	*Drive
	tf       taskFile
	status   uint8
	err      uint8
	busyLeft int

	phase   phase
	data    []uint16
	packet  []uint16
	limit   int
	pending []byte // bytes still to send for a packet read
	sectors int    // sectors left for a READ SECTORS transfer
	lba     uint64
}

// Channel is one simulated ATA channel
type Channel struct {
	mu       sync.Mutex
	base     uint16
	control  uint16
	units    [2]*unit
	selected int
	srst     bool
	commands []uint8
}

// NewChannel creates an empty channel decoding base..base+7 and control
func NewChannel(base, control uint16) *Channel {
	return &Channel{base: base, control: control}
}

// Insert plugs d into the master or slave position
func (c *Channel) Insert(slave bool, d *Drive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := &unit{Drive: d}
	u.reset()
	c.units[index(slave)] = u
}

// Attach claims the channel's ports on bus
func (c *Channel) Attach(bus *portio.Bus) error {
	if err := bus.Attach(c.base, c.base+constants.RegCommand, c); err != nil {
		return err
	}
	return bus.Attach(c.control, c.control, c)
}

// Commands returns the command opcodes executed so far
func (c *Channel) Commands() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint8, len(c.commands))
	copy(out, c.commands)
	return out
}

func index(slave bool) int {
	if slave {
		return 1
	}
	return 0
}

func (c *Channel) current() *unit {
	return c.units[c.selected]
}

// In implements portio.Handler
func (c *Channel) In(port uint16, size int) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := c.current()
	if u == nil {
		return 0
	}
	if port == c.control {
		return uint16(u.peekStatus())
	}

	switch port - c.base {
	case constants.RegData:
		return u.readData()
	case constants.RegError:
		return uint16(u.err)
	case constants.RegSectorCount:
		return uint16(u.tf.count)
	case constants.RegLBALow:
		return uint16(u.tf.lo)
	case constants.RegLBAMid:
		return uint16(u.tf.mid)
	case constants.RegLBAHigh:
		return uint16(u.tf.high)
	case constants.RegDriveHead:
		return uint16(u.tf.head)
	case constants.RegStatus:
		return uint16(u.readStatus())
	}
	return 0
}

// Out implements portio.Handler
func (c *Channel) Out(port uint16, size int, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if port == c.control {
		c.writeControl(uint8(v))
		return
	}

	off := port - c.base
	switch off {
	case constants.RegData:
		if u := c.current(); u != nil {
			u.writeData(v)
		}
		return
	case constants.RegCommand:
		if u := c.current(); u != nil {
			c.commands = append(c.commands, uint8(v))
			u.execute(uint8(v))
		}
		return
	case constants.RegDriveHead:
		c.selected = int(v>>4) & 1
	}

	for _, u := range c.units {
		if u != nil {
			u.tf.write(off, uint8(v))
		}
	}
}

func (c *Channel) writeControl(v uint8) {
	set := v&constants.ControlSRST != 0
	if c.srst && !set {
		for _, u := range c.units {
			if u != nil {
				u.reset()
			}
		}
		c.selected = 0
	}
	c.srst = set
}

func (tf *taskFile) write(off uint16, v uint8) {
	switch off {
	case constants.RegFeatures:
		tf.features = v
	case constants.RegSectorCount:
		tf.hobCount, tf.count = tf.count, v
	case constants.RegLBALow:
		tf.hobLo, tf.lo = tf.lo, v
	case constants.RegLBAMid:
		tf.hobMid, tf.mid = tf.mid, v
	case constants.RegLBAHigh:
		tf.hobHigh, tf.high = tf.high, v
	case constants.RegDriveHead:
		tf.head = v
	}
}

func (u *unit) reset() {
	mid, high := u.Kind.Signature()
	if sig := u.Faults.Signature; sig != nil {
		mid, high = sig[0], sig[1]
	}
	u.tf = taskFile{count: 1, lo: 1, mid: mid, high: high}
	u.err = 0x01 // diagnostic code: no error
	u.status = constants.StatusRDY
	if u.Kind.Packet() {
		u.status = 0
	}
	u.phase = phaseIdle
	u.data = nil
	u.packet = nil
	u.pending = nil
	u.busyLeft = u.BusyReads
}

func (u *unit) peekStatus() uint8 {
	if u.Faults.StuckBusy || u.busyLeft > 0 {
		return constants.StatusBusy
	}
	return u.status
}

func (u *unit) readStatus() uint8 {
	if u.Faults.StuckBusy {
		return constants.StatusBusy
	}
	if u.busyLeft > 0 {
		u.busyLeft--
		return constants.StatusBusy
	}
	return u.status
}

func (u *unit) readData() uint16 {
	if u.phase != phaseData || len(u.data) == 0 {
		return 0
	}
	w := u.data[0]
	u.data = u.data[1:]
	if len(u.data) == 0 {
		u.next()
	}
	return w
}

func (u *unit) writeData(v uint16) {
	if u.phase != phasePacket {
		return
	}
	u.packet = append(u.packet, v)
	if len(u.packet) == constants.PacketWords {
		u.runPacket()
	}
}

func (u *unit) abort(code uint8) {
	u.phase = phaseIdle
	u.data = nil
	u.pending = nil
	u.err = code
	u.status = constants.StatusRDY | constants.StatusErr
}

func (u *unit) complete() {
	u.phase = phaseIdle
	u.data = nil
	u.pending = nil
	u.err = 0
	u.status = constants.StatusRDY
}

func (u *unit) sendWords(words []uint16) {
	u.phase = phaseData
	u.data = words
	u.err = 0
	u.status = constants.StatusRDY | constants.StatusDRQ
}

func (u *unit) execute(cmd uint8) {
	u.busyLeft = u.BusyReads
	switch cmd {
	case constants.CmdIdentify:
		u.identify(false)
	case constants.CmdIdentifyPacket:
		u.identify(true)
	case constants.CmdPacket:
		u.startPacket()
	case constants.CmdReadSectors:
		u.startRead(false)
	case constants.CmdReadSectorsExt:
		u.startRead(true)
	default:
		u.abort(ErrABRT)
	}
}

func (u *unit) identify(packet bool) {
	if packet != u.Kind.Packet() || u.Faults.AbortIdentify {
		u.abort(ErrABRT)
		if u.Kind.Packet() {
			u.tf.mid, u.tf.high = u.Kind.Signature()
		}
		return
	}

	page := wire.EncodeIdentify(u.Identity())
	if w := u.Faults.Word0; w != nil {
		page[0] = *w
	}
	if u.Faults.StaleSignature {
		u.tf.mid, u.tf.high = constants.SigPATAPIMid, constants.SigPATAPIHi
	}
	u.sendWords(page[:])
}

func (u *unit) startPacket() {
	if !u.Kind.Packet() || u.Faults.AbortPacket {
		u.abort(ErrABRT)
		return
	}
	u.limit = int(u.tf.high)<<8 | int(u.tf.mid)
	if u.limit == 0 {
		u.limit = constants.MaxByteCountLimit
	}
	u.limit &^= 1
	u.packet = u.packet[:0]
	u.phase = phasePacket
	u.err = 0
	u.status = constants.StatusRDY | constants.StatusDRQ
	// interrupt reason: command packet, host to device
	u.tf.count = 0x01
}

func (u *unit) runPacket() {
	pkt, err := wire.PacketFromWords(u.packet)
	u.packet = u.packet[:0]
	if err != nil || pkt.Opcode() != constants.SCSIRead12 {
		u.abort(ErrABRT)
		return
	}

	blocks := uint64(pkt.TransferLength())
	lba := uint64(pkt.LBA())
	if blocks == 0 {
		u.complete()
		return
	}
	if lba+blocks > u.Sectors {
		// sense key ILLEGAL REQUEST in the high nibble
		u.abort(0x50 | ErrABRT)
		return
	}

	buf := make([]byte, int(blocks)*constants.ATAPIBlockSize)
	if !u.fill(buf, int64(lba)*constants.ATAPIBlockSize) {
		return
	}
	buf = append(buf, make([]byte, u.Faults.ExtraBytes)...)
	u.pending = buf
	u.nextChunk()
}

// nextChunk presents up to the byte-count limit of the pending packet data
func (u *unit) nextChunk() {
	if len(u.pending) == 0 {
		u.complete()
		// interrupt reason: command complete, device to host
		u.tf.count = 0x03
		return
	}
	n := len(u.pending)
	if n > u.limit {
		n = u.limit
	}
	chunk := u.pending[:n]
	u.pending = u.pending[n:]
	u.tf.mid = uint8(n)
	u.tf.high = uint8(n >> 8)
	u.tf.count = 0x02
	u.sendWords(wire.WordsFromBytes(chunk))
}

func (u *unit) startRead(ext bool) {
	if u.Kind.Packet() {
		u.abort(ErrABRT)
		u.tf.mid, u.tf.high = u.Kind.Signature()
		return
	}
	tf := u.tf
	var lba uint64
	var count int
	if ext {
		if !u.LBA48 {
			u.abort(ErrABRT)
			return
		}
		lba = uint64(tf.hobHigh)<<40 | uint64(tf.hobMid)<<32 | uint64(tf.hobLo)<<24 |
			uint64(tf.high)<<16 | uint64(tf.mid)<<8 | uint64(tf.lo)
		count = int(tf.hobCount)<<8 | int(tf.count)
		if count == 0 {
			count = 1 << 16
		}
	} else {
		lba = uint64(tf.head&0x0F)<<24 | uint64(tf.high)<<16 | uint64(tf.mid)<<8 | uint64(tf.lo)
		count = int(tf.count)
		if count == 0 {
			count = 256
		}
	}
	if lba+uint64(count) > u.Sectors {
		u.abort(ErrIDNF)
		return
	}
	u.lba = lba
	u.sectors = count
	u.nextSector()
}

func (u *unit) nextSector() {
	if u.sectors == 0 {
		u.complete()
		return
	}
	buf := make([]byte, constants.SectorSize)
	if !u.fill(buf, int64(u.lba)*constants.SectorSize) {
		return
	}
	u.lba++
	u.sectors--
	u.sendWords(wire.WordsFromBytes(buf))
}

// next advances a data-in command once the host drained the current block
func (u *unit) next() {
	switch {
	case u.pending != nil:
		u.nextChunk()
	case u.sectors > 0:
		u.nextSector()
	default:
		u.complete()
	}
}

func (u *unit) fill(buf []byte, off int64) bool {
	if u.Faults.ReadError {
		u.abort(ErrABRT)
		return false
	}
	if u.Media == nil {
		return true
	}
	if _, err := u.Media.ReadAt(buf, off); err != nil && err != io.EOF {
		u.abort(ErrABRT)
		return false
	}
	return true
}
