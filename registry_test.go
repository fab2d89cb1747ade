package ata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-ata/backend"
	"github.com/ehrlich-b/go-ata/internal/logging"
)

func mockDevice(name string) (*Device, *MockBacking) {
	m := NewMockBacking(8, SectorSize)
	dev := NewDevice(name, KindRandomAccess, m)
	dev.SetLogger(testLogger())
	return dev, m
}

func TestRegistryRegisterLookup(t *testing.T) {
	reg := NewRegistry(0)
	assert.Equal(t, MaxDevices, reg.Capacity())

	dev, _ := mockDevice("ATA-0")
	require.NoError(t, reg.Register(dev))

	got, err := reg.Lookup("ATA-0")
	require.NoError(t, err)
	assert.Same(t, dev, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry(4)
	first, m := mockDevice("ATA-0")
	m.Fill(0, []byte("first"))
	require.NoError(t, reg.Register(first))

	second, _ := mockDevice("ATA-0")
	err := reg.Register(second)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.True(t, IsCode(err, ErrCodeDuplicateName))

	// the first registration is untouched
	got, err := reg.Lookup("ATA-0")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Len())

	buf := make([]byte, 5)
	n, err := reg.Read("ATA-0", buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "first", string(buf))
}

func TestRegistryNotFound(t *testing.T) {
	reg := NewRegistry(4)

	_, err := reg.Lookup("ATA-9")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Read("ATA-9", make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Write("ATA-9", []byte{1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Seek("ATA-9", 1), ErrNotFound)
}

func TestRegistryTableFull(t *testing.T) {
	reg := NewRegistry(2)
	for i := 0; i < 2; i++ {
		dev, _ := mockDevice(fmt.Sprintf("dev%d", i))
		require.NoError(t, reg.Register(dev))
	}

	extra, _ := mockDevice("dev2")
	err := reg.Register(extra)
	assert.ErrorIs(t, err, ErrTableFull)
	assert.Equal(t, 2, reg.Len())

	_, err = reg.Lookup("dev2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryInvalidDevice(t *testing.T) {
	reg := NewRegistry(4)

	assert.ErrorIs(t, reg.Register(nil), ErrInvalidParameters)
	assert.ErrorIs(t, reg.Register(NewDevice("", KindRandomAccess, NewMockBacking(1, 1))), ErrInvalidParameters)
	assert.ErrorIs(t, reg.Register(NewDevice("x", KindRandomAccess, nil)), ErrInvalidParameters)
	assert.Zero(t, reg.Len())
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry(4)
	for _, name := range []string{"ATA-3", "ATA-0", "ATA-2"} {
		dev, _ := mockDevice(name)
		require.NoError(t, reg.Register(dev))
	}

	assert.Equal(t, []string{"ATA-0", "ATA-2", "ATA-3"}, reg.Names())
	devs := reg.Devices()
	require.Len(t, devs, 3)
	assert.Equal(t, "ATA-0", devs[0].Name())
	assert.Equal(t, "ATA-3", devs[2].Name())
}

func TestRegistryMixedFamilies(t *testing.T) {
	reg := NewRegistry(4)

	mem := backend.NewMemory(4 * SectorSize)
	_, err := mem.WriteAt([]byte("ramdisk"), 2*SectorSize)
	require.NoError(t, err)
	require.NoError(t, reg.Register(NewDevice("ram0", KindRandomAccess, mem)))

	tape := NewMockBacking(4, 64)
	tape.Fill(1, []byte("tape"))
	require.NoError(t, reg.Register(NewDevice("tape0", KindSequential, tape)))

	require.NoError(t, reg.Seek("ram0", 2))
	buf := make([]byte, 7)
	n, err := reg.Read("ram0", buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "ramdisk", string(buf))

	require.NoError(t, reg.Seek("tape0", 1))
	n, err = reg.Read("tape0", buf[:4])
	require.NoError(t, err)
	assert.Equal(t, "tape", string(buf[:n]))

	dev, err := reg.Lookup("tape0")
	require.NoError(t, err)
	assert.Equal(t, KindSequential, dev.Kind())
	assert.Equal(t, "sequential", dev.Kind().String())
}

func TestRegistryConcurrentRegister(t *testing.T) {
	reg := NewRegistry(MaxDevices)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dev, _ := mockDevice(fmt.Sprintf("ATA-%d", i%8))
			errs[i] = reg.Register(dev)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrTableFull):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, MaxDevices, ok)
	assert.Equal(t, MaxDevices, reg.Len())
}

func TestDeviceForwardsAndRecords(t *testing.T) {
	dev, m := mockDevice("ATA-0")
	m.Fill(3, []byte{1, 2, 3, 4})

	require.NoError(t, dev.Seek(3))
	buf := make([]byte, 4)
	n, err := dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)

	n, err = dev.Write([]byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, map[string]int{"read": 1, "write": 1, "seek": 1}, m.CallCounts())

	snap := dev.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.WriteOps)
	assert.Equal(t, uint64(1), snap.SeekOps)
	assert.Equal(t, uint64(4), snap.ReadBytes)
	assert.Equal(t, uint64(2), snap.WriteBytes)
}

func TestDeviceLogsTransfers(t *testing.T) {
	var buf bytes.Buffer
	dev, m := mockDevice("ATA-0")
	dev.SetLogger(logging.NewLogger(&logging.Config{
		Level:   logging.LevelDebug,
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}))
	m.Fill(3, []byte{1, 2, 3, 4})

	require.NoError(t, dev.Seek(3))
	_, err := dev.Read(make([]byte, 4))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "I/O operation starting")
	assert.Contains(t, lines[0], "device=ATA-0")
	assert.Contains(t, lines[0], "op=read")
	assert.Contains(t, lines[0], "lba=3")
	assert.Contains(t, lines[1], "I/O operation completed")
	assert.Contains(t, lines[1], "length=4")
	assert.Contains(t, lines[1], "latency_us=")

	buf.Reset()
	m.FailNext(ErrTimeout)
	_, err = dev.Write([]byte{1})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "I/O operation starting")
	assert.Contains(t, buf.String(), "I/O operation failed")
	assert.NotContains(t, buf.String(), "I/O operation completed")
}

func TestDeviceErrorsCarryName(t *testing.T) {
	dev, m := mockDevice("ATA-1")

	m.FailNext(ErrTimeout)
	n, err := dev.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrTimeout)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "ATA-1", e.Device)
	assert.Equal(t, "read", e.Op)

	m.SetReadOnly(true)
	_, err = dev.Write([]byte{1})
	assert.ErrorIs(t, err, ErrUnsupported)

	// past the end of the mock
	require.NoError(t, dev.Seek(100))
	_, err = dev.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	snap := dev.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.ReadErrors)
	assert.Equal(t, uint64(1), snap.WriteErrors)
	assert.Equal(t, uint64(1), snap.Timeouts)
}

type recordingObserver struct {
	mu    sync.Mutex
	reads []string
	seeks []uint64
}

func (o *recordingObserver) ObserveRead(device string, bytes, _ uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads = append(o.reads, fmt.Sprintf("%s:%d:%t", device, bytes, success))
}

func (o *recordingObserver) ObserveWrite(string, uint64, uint64, bool) {}

func (o *recordingObserver) ObserveSeek(_ string, pos uint64, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seeks = append(o.seeks, pos)
}

func TestDeviceObserver(t *testing.T) {
	dev, _ := mockDevice("ATA-2")
	obs := &recordingObserver{}
	dev.SetObserver(obs)

	require.NoError(t, dev.Seek(7))
	_, err := dev.Read(make([]byte, 16))
	require.NoError(t, err)
	require.NoError(t, dev.Seek(8))
	_, err = dev.Read(make([]byte, 16))
	require.Error(t, err)

	assert.Equal(t, []uint64{7, 8}, obs.seeks)
	assert.Equal(t, []string{"ATA-2:16:true", "ATA-2:0:false"}, obs.reads)

	// nil restores the no-op observer
	dev.SetObserver(nil)
	_, err = dev.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Len(t, obs.reads, 2)
}
