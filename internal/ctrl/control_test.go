package ctrl

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/logging"
	"github.com/ehrlich-b/go-ata/internal/portio"
	"github.com/ehrlich-b/go-ata/internal/simdrive"
	"github.com/ehrlich-b/go-ata/internal/wire"
)

const testAttempts = 500

func quietLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:   logging.LevelError,
		Output:  &bytes.Buffer{},
		Sync:    true,
		NoColor: true,
	})
}

// pattern returns n bytes where each byte depends on its offset
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

type rig struct {
	bus  *portio.Bus
	sim  *simdrive.Channel
	ctrl *Controller
}

func newRig(t *testing.T, master, slave *simdrive.Drive) *rig {
	t.Helper()
	bus := portio.NewBus()
	sim := simdrive.NewChannel(constants.PrimaryBase, constants.PrimaryControl)
	if master != nil {
		sim.Insert(false, master)
	}
	if slave != nil {
		sim.Insert(true, slave)
	}
	require.NoError(t, sim.Attach(bus))
	timing := Timing{PollAttempts: testAttempts, SettleReads: 4}
	c := NewController("primary", constants.PrimaryBase, constants.PrimaryControl, bus, timing, quietLogger())
	return &rig{bus: bus, sim: sim, ctrl: c}
}

func ataDrive(media []byte) *simdrive.Drive {
	return &simdrive.Drive{
		Kind:     simdrive.PATA,
		Media:    bytes.NewReader(media),
		Sectors:  uint64(len(media) / constants.SectorSize),
		Model:    "SIM ATA DISK",
		Serial:   "SN0001",
		Firmware: "1.0",
		LBA48:    true,
	}
}

func cdDrive(media []byte) *simdrive.Drive {
	return &simdrive.Drive{
		Kind:    simdrive.PATAPI,
		Media:   bytes.NewReader(media),
		Sectors: uint64(len(media) / constants.ATAPIBlockSize),
		Model:   "SIM CDROM",
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		mid, high uint8
		want      Class
	}{
		{0x14, 0xEB, ClassPATAPI},
		{0x69, 0x96, ClassSATAPI},
		{0x00, 0x00, ClassPATA},
		{0x3C, 0xC3, ClassSATA},
		{0xEB, 0x14, ClassUnknown},
		{0x14, 0x00, ClassUnknown},
		{0x00, 0xEB, ClassUnknown},
		{0xFF, 0xFF, ClassUnknown},
		{0x3C, 0x00, ClassUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.mid, tt.high), "signature %02x:%02x", tt.mid, tt.high)
	}
}

func TestClassPacket(t *testing.T) {
	assert.True(t, ClassPATAPI.IsPacket())
	assert.True(t, ClassSATAPI.IsPacket())
	assert.False(t, ClassPATA.IsPacket())
	assert.False(t, ClassSATA.IsPacket())
	assert.False(t, ClassUnknown.IsPacket())
	assert.Equal(t, "SATAPI", ClassSATAPI.String())
	assert.Equal(t, "unknown", Class(42).String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "0x58[DRDY|DRQ]", Status(0x58).String())
	assert.Equal(t, "0x80[BSY]", Status(0x80).String())
	assert.Equal(t, "0x00[]", Status(0).String())
	assert.Equal(t, "0x41[DRDY|ERR]", Status(0x41).String())
}

func TestByteCountLimit(t *testing.T) {
	assert.Equal(t, uint16(2048), ByteCountLimit(2048))
	assert.Equal(t, uint16(0xFFFE), ByteCountLimit(1<<20))
	assert.Equal(t, uint16(0xFFFE), ByteCountLimit(0xFFFF))
	assert.Equal(t, uint16(100), ByteCountLimit(101))
	assert.Equal(t, uint16(2), ByteCountLimit(1))
}

func TestProbeSignatures(t *testing.T) {
	kinds := map[simdrive.Kind]Class{
		simdrive.PATA:   ClassPATA,
		simdrive.SATA:   ClassSATA,
		simdrive.PATAPI: ClassPATAPI,
		simdrive.SATAPI: ClassSATAPI,
	}
	for kind, want := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			r := newRig(t, &simdrive.Drive{Kind: kind, BusyReads: 3}, nil)
			p, err := r.ctrl.Probe(Master)
			require.NoError(t, err)
			assert.Equal(t, want, p.Class)
			assert.False(t, p.Status.Busy())
			mid, high := kind.Signature()
			assert.Equal(t, mid, p.Mid)
			assert.Equal(t, high, p.High)
		})
	}
}

func TestProbeSlaveSignature(t *testing.T) {
	r := newRig(t, &simdrive.Drive{Kind: simdrive.PATA}, &simdrive.Drive{Kind: simdrive.PATAPI})

	p, err := r.ctrl.Probe(Slave)
	require.NoError(t, err)
	assert.Equal(t, ClassPATAPI, p.Class)

	p, err = r.ctrl.Probe(Master)
	require.NoError(t, err)
	assert.Equal(t, ClassPATA, p.Class)
}

func TestProbeResetSequence(t *testing.T) {
	r := newRig(t, &simdrive.Drive{Kind: simdrive.PATA}, nil)
	r.bus.SetTracing(true)

	_, err := r.ctrl.Probe(Slave)
	require.NoError(t, err)

	trace := r.bus.Trace()
	require.GreaterOrEqual(t, len(trace), 3)
	assert.Equal(t, portio.Access{Write: true, Port: constants.PrimaryControl, Size: 1, Value: 0x06}, trace[0])

	var writes []portio.Access
	for _, a := range trace {
		if a.Write {
			writes = append(writes, a)
		}
	}
	require.Len(t, writes, 3)
	assert.Equal(t, uint16(0x02), writes[1].Value)
	assert.Equal(t, uint16(constants.PrimaryBase+constants.RegDriveHead), writes[2].Port)
	assert.Equal(t, uint16(0xB0), writes[2].Value)
}

func TestProbeFloatingBus(t *testing.T) {
	bus := portio.NewBus()
	c := NewController("secondary", constants.SecondaryBase, constants.SecondaryControl, bus,
		Timing{PollAttempts: testAttempts}, quietLogger())

	p, err := c.Probe(Master)
	assert.ErrorIs(t, err, ErrFloatingBus)
	assert.Equal(t, Status(0xFF), p.Status)
}

func TestProbeStuckBusyTimesOut(t *testing.T) {
	r := newRig(t, &simdrive.Drive{Kind: simdrive.PATA, Faults: simdrive.Faults{StuckBusy: true}}, nil)

	_, err := r.ctrl.Probe(Master)
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected TimeoutError, got %v", err)
	assert.Equal(t, "probe", te.Op)
	assert.Equal(t, testAttempts, te.Attempts)
	assert.True(t, te.Last.Busy())
	assert.Contains(t, te.Error(), "BSY clear")
}

func TestProbeEmptyChannel(t *testing.T) {
	r := newRig(t, nil, nil)

	p, err := r.ctrl.Probe(Master)
	require.NoError(t, err)
	assert.Equal(t, Status(0), p.Status)

	_, err = r.ctrl.Identify(Master, p.Class.IsPacket())
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestIdentifyATA(t *testing.T) {
	r := newRig(t, ataDrive(pattern(64*constants.SectorSize)), nil)
	_, err := r.ctrl.Probe(Master)
	require.NoError(t, err)

	page, err := r.ctrl.Identify(Master, false)
	require.NoError(t, err)
	assert.True(t, page.IsATA())
	assert.False(t, page.IsPacket())

	id := page.Decode()
	assert.Equal(t, "SIM ATA DISK", id.Model)
	assert.Equal(t, "SN0001", id.Serial)
	assert.Equal(t, "1.0", id.Firmware)
	assert.True(t, id.LBA48)
	assert.Equal(t, uint32(64), id.LBA28Sectors)
	assert.Equal(t, uint64(64), id.LBA48Sectors)
	assert.Equal(t, []uint8{constants.CmdIdentify}, r.sim.Commands())
}

func TestIdentifyPacket(t *testing.T) {
	r := newRig(t, nil, cdDrive(pattern(4*constants.ATAPIBlockSize)))

	page, err := r.ctrl.Identify(Slave, true)
	require.NoError(t, err)
	assert.True(t, page.IsPacket())
	assert.Equal(t, "SIM CDROM", page.Decode().Model)
	assert.Equal(t, []uint8{constants.CmdIdentifyPacket}, r.sim.Commands())
}

func TestIdentifyAborted(t *testing.T) {
	r := newRig(t, cdDrive(nil), nil)

	_, err := r.ctrl.Identify(Master, false)
	var se *StatusError
	require.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
	assert.True(t, se.Status.Err())
	assert.Equal(t, uint8(simdrive.ErrABRT), se.ErrReg)
}

func TestIdentifyStaleSignature(t *testing.T) {
	d := ataDrive(nil)
	d.Faults.StaleSignature = true
	r := newRig(t, d, nil)

	_, err := r.ctrl.Identify(Master, false)
	assert.ErrorIs(t, err, ErrNotATA)
}

func TestPacketRead(t *testing.T) {
	media := pattern(8 * constants.ATAPIBlockSize)
	r := newRig(t, cdDrive(media), nil)

	buf := make([]byte, constants.ATAPIBlockSize)
	n, err := r.ctrl.PacketRead(Master, 3, buf)
	require.NoError(t, err)
	assert.Equal(t, constants.ATAPIBlockSize, n)
	assert.Equal(t, media[3*constants.ATAPIBlockSize:4*constants.ATAPIBlockSize], buf)
	assert.Equal(t, []uint8{constants.CmdPacket}, r.sim.Commands())
}

func TestPacketReadSendsRead12(t *testing.T) {
	r := newRig(t, cdDrive(pattern(constants.ATAPIBlockSize*300)), nil)
	r.bus.SetTracing(true)

	_, err := r.ctrl.PacketRead(Master, 0x0102, make([]byte, constants.ATAPIBlockSize))
	require.NoError(t, err)

	var out []uint16
	var limit []uint16
	for _, a := range r.bus.Trace() {
		if !a.Write {
			continue
		}
		switch a.Port {
		case constants.PrimaryBase + constants.RegData:
			out = append(out, a.Value)
		case constants.PrimaryBase + constants.RegLBAMid, constants.PrimaryBase + constants.RegLBAHigh:
			limit = append(limit, a.Value)
		}
	}
	want := wire.Read12(0x0102).Words()
	assert.Equal(t, want[:], out)
	// byte-count limit 0x0800: low byte to mid, high byte to high
	assert.Equal(t, []uint16{0x00, 0x08}, limit)
	assert.Equal(t, uint16(0x00A8), out[0])
	assert.Equal(t, uint16(0x0201), out[2])
}

func TestPacketReadShortBuffer(t *testing.T) {
	media := pattern(4 * constants.ATAPIBlockSize)
	r := newRig(t, cdDrive(media), nil)

	buf := make([]byte, 101)
	n, err := r.ctrl.PacketRead(Master, 1, buf)
	require.NoError(t, err)
	assert.Equal(t, 101, n)
	assert.Equal(t, media[constants.ATAPIBlockSize:constants.ATAPIBlockSize+101], buf)

	one := make([]byte, 1)
	n, err = r.ctrl.PacketRead(Master, 2, one)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, media[2*constants.ATAPIBlockSize], one[0])

	// the drive was drained, so a following full read succeeds
	full := make([]byte, constants.ATAPIBlockSize)
	n, err = r.ctrl.PacketRead(Master, 0, full)
	require.NoError(t, err)
	assert.Equal(t, constants.ATAPIBlockSize, n)
	assert.Equal(t, media[:constants.ATAPIBlockSize], full)
}

func TestPacketReadNeverOverflows(t *testing.T) {
	d := cdDrive(pattern(2 * constants.ATAPIBlockSize))
	d.Faults.ExtraBytes = 512
	r := newRig(t, d, nil)

	buf := make([]byte, constants.ATAPIBlockSize+64)
	for i := range buf {
		buf[i] = 0xAA
	}
	view := buf[:constants.ATAPIBlockSize]
	n, err := r.ctrl.PacketRead(Master, 0, view)
	require.NoError(t, err)
	assert.Equal(t, constants.ATAPIBlockSize, n)
	for _, b := range buf[constants.ATAPIBlockSize:] {
		require.Equal(t, byte(0xAA), b)
	}

	big := make([]byte, 4*constants.ATAPIBlockSize)
	n, err = r.ctrl.PacketRead(Master, 0, big)
	require.NoError(t, err)
	assert.Equal(t, constants.ATAPIBlockSize+512, n)
}

func TestPacketReadOddChunk(t *testing.T) {
	media := pattern(2 * constants.ATAPIBlockSize)
	d := cdDrive(media)
	d.Faults.ExtraBytes = 3
	r := newRig(t, d, nil)

	buf := make([]byte, 2*constants.ATAPIBlockSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	n, err := r.ctrl.PacketRead(Master, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, constants.ATAPIBlockSize+3, n)
	assert.Equal(t, media[:constants.ATAPIBlockSize], buf[:constants.ATAPIBlockSize])
	assert.Equal(t, []byte{0, 0, 0}, buf[constants.ATAPIBlockSize:n])
	// the pad byte of the last word is not stored
	assert.Equal(t, byte(0xAA), buf[n])
}

func TestDetectHoldsChannel(t *testing.T) {
	r := newRig(t, ataDrive(pattern(8*constants.SectorSize)), cdDrive(pattern(constants.ATAPIBlockSize)))
	r.bus.SetTracing(true)

	p, page, err := r.ctrl.Detect(Slave)
	require.NoError(t, err)
	assert.Equal(t, ClassPATAPI, p.Class)
	require.NotNil(t, page)
	assert.True(t, page.IsPacket())

	var resets int
	for _, a := range r.bus.Trace() {
		if a.Write && a.Port == constants.PrimaryControl && a.Value&constants.ControlSRST != 0 {
			resets++
		}
	}
	assert.Equal(t, 1, resets)
}

func TestDetectConcurrent(t *testing.T) {
	r := newRig(t, ataDrive(pattern(8*constants.SectorSize)), cdDrive(pattern(constants.ATAPIBlockSize)))

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sel, want := Master, ClassPATA
			if i%2 == 1 {
				sel, want = Slave, ClassPATAPI
			}
			p, page, err := r.ctrl.Detect(sel)
			if err == nil && (p.Class != want || page == nil) {
				err = fmt.Errorf("%s: got class %s", sel, p.Class)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestDetectStepErrors(t *testing.T) {
	r := newRig(t, nil, nil)
	_, page, err := r.ctrl.Detect(Master)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Contains(t, err.Error(), "identify")

	bus := portio.NewBus()
	c := NewController("secondary", constants.SecondaryBase, constants.SecondaryControl, bus,
		Timing{PollAttempts: testAttempts}, quietLogger())
	_, _, err = c.Detect(Master)
	assert.ErrorIs(t, err, ErrFloatingBus)
	assert.Contains(t, err.Error(), "reset")
}

func TestPacketReadErrors(t *testing.T) {
	t.Run("aborted command", func(t *testing.T) {
		d := cdDrive(pattern(constants.ATAPIBlockSize))
		d.Faults.AbortPacket = true
		r := newRig(t, d, nil)

		buf := make([]byte, constants.ATAPIBlockSize)
		n, err := r.ctrl.PacketRead(Master, 0, buf)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Zero(t, n)
		assert.Equal(t, make([]byte, constants.ATAPIBlockSize), buf)
	})

	t.Run("past end of media", func(t *testing.T) {
		r := newRig(t, cdDrive(pattern(constants.ATAPIBlockSize)), nil)
		_, err := r.ctrl.PacketRead(Master, 5, make([]byte, constants.ATAPIBlockSize))
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, uint8(0x54), se.ErrReg)
	})

	t.Run("not a packet drive", func(t *testing.T) {
		r := newRig(t, ataDrive(pattern(constants.SectorSize)), nil)
		_, err := r.ctrl.PacketRead(Master, 0, make([]byte, 16))
		var se *StatusError
		assert.True(t, errors.As(err, &se))
	})

	t.Run("empty buffer", func(t *testing.T) {
		r := newRig(t, cdDrive(nil), nil)
		_, err := r.ctrl.PacketRead(Master, 0, nil)
		assert.ErrorIs(t, err, ErrShortBuffer)
		assert.Empty(t, r.sim.Commands())
	})

	t.Run("stuck busy", func(t *testing.T) {
		d := cdDrive(nil)
		d.Faults.StuckBusy = true
		r := newRig(t, d, nil)
		_, err := r.ctrl.PacketRead(Master, 0, make([]byte, 16))
		var te *TimeoutError
		assert.True(t, errors.As(err, &te))
	})
}

func TestReadSectors(t *testing.T) {
	media := pattern(300 * constants.SectorSize)
	r := newRig(t, ataDrive(media), nil)

	buf := make([]byte, constants.SectorSize)
	n, err := r.ctrl.ReadSectors(Master, 7, false, buf)
	require.NoError(t, err)
	assert.Equal(t, constants.SectorSize, n)
	assert.Equal(t, media[7*constants.SectorSize:8*constants.SectorSize], buf)

	n, err = r.ctrl.ReadSectors(Master, 257, true, buf)
	require.NoError(t, err)
	assert.Equal(t, constants.SectorSize, n)
	assert.Equal(t, media[257*constants.SectorSize:258*constants.SectorSize], buf)

	small := make([]byte, 10)
	n, err = r.ctrl.ReadSectors(Master, 1, false, small)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, media[constants.SectorSize:constants.SectorSize+10], small)

	assert.Equal(t, []uint8{constants.CmdReadSectors, constants.CmdReadSectorsExt, constants.CmdReadSectors},
		r.sim.Commands())
}

func TestReadSectorsErrors(t *testing.T) {
	r := newRig(t, ataDrive(pattern(4*constants.SectorSize)), nil)

	_, err := r.ctrl.ReadSectors(Master, constants.LBA28Limit, false, make([]byte, 512))
	assert.ErrorIs(t, err, ErrLBARange)

	_, err = r.ctrl.ReadSectors(Master, 1<<48, true, make([]byte, 512))
	assert.ErrorIs(t, err, ErrLBARange)

	_, err = r.ctrl.ReadSectors(Master, 9, false, make([]byte, 512))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, uint8(simdrive.ErrIDNF), se.ErrReg)

	_, err = r.ctrl.ReadSectors(Master, 0, false, nil)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestChannelSerializesMasterAndSlave(t *testing.T) {
	disk := pattern(16 * constants.SectorSize)
	cd := pattern(4 * constants.ATAPIBlockSize)
	disk[0] = 0x5A
	r := newRig(t, ataDrive(disk), cdDrive(cd))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]byte, constants.SectorSize)
		for i := 0; i < 50; i++ {
			lba := uint64(i % 16)
			if _, err := r.ctrl.ReadSectors(Master, lba, false, buf); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(buf, disk[lba*constants.SectorSize:(lba+1)*constants.SectorSize]) {
				errs <- errors.New("master data mismatch")
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		buf := make([]byte, constants.ATAPIBlockSize)
		for i := 0; i < 50; i++ {
			lba := uint32(i % 4)
			if _, err := r.ctrl.PacketRead(Slave, lba, buf); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(buf, cd[int(lba)*constants.ATAPIBlockSize:int(lba+1)*constants.ATAPIBlockSize]) {
				errs <- errors.New("slave data mismatch")
				return
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
