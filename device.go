package ata

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/go-ata/internal/logging"
)

// Kind is the coarse access class higher layers use for dispatch policy,
// independent of the ATA class
type Kind int

const (
	KindRandomAccess Kind = iota
	KindSequential
)

func (k Kind) String() string {
	switch k {
	case KindRandomAccess:
		return "random-access"
	case KindSequential:
		return "sequential"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Device is a named, registered device. It forwards every operation to its
// Backing and records metrics; the Backing is never inspected.
type Device struct {
	name    string
	kind    Kind
	backing Backing

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger
}

// NewDevice wraps backing under name
func NewDevice(name string, kind Kind, backing Backing) *Device {
	return &Device{
		name:     name,
		kind:     kind,
		backing:  backing,
		metrics:  NewMetrics(),
		observer: NoOpObserver{},
		logger:   logging.Default().WithDevice(name),
	}
}

// SetObserver installs an observer called after every operation
func (d *Device) SetObserver(o Observer) {
	if o == nil {
		o = NoOpObserver{}
	}
	d.observer = o
}

// SetLogger replaces the device logger
func (d *Device) SetLogger(l *logging.Logger) {
	if l != nil {
		d.logger = l.WithDevice(d.name)
	}
}

func (d *Device) Name() string      { return d.name }
func (d *Device) Kind() Kind        { return d.kind }
func (d *Device) Backing() Backing  { return d.backing }
func (d *Device) Metrics() *Metrics { return d.metrics }

// Read fills at most len(p) bytes from the current position and returns the
// number of bytes actually transferred
func (d *Device) Read(p []byte) (int, error) {
	pos := d.positionHint()
	d.logger.IOStart("read", pos, len(p))
	start := time.Now()
	n, err := d.backing.Read(p)
	latency := uint64(time.Since(start).Nanoseconds())

	if n > len(p) {
		n = len(p)
	}
	if err != nil {
		err = d.wrap("read", err)
		n = 0
	} else {
		d.logger.IOComplete("read", pos, n, int64(latency/1000))
	}
	d.metrics.RecordRead(uint64(n), latency, err == nil)
	d.observer.ObserveRead(d.name, uint64(n), latency, err == nil)
	return n, err
}

// Write sends at most len(p) bytes to the current position
func (d *Device) Write(p []byte) (int, error) {
	pos := d.positionHint()
	d.logger.IOStart("write", pos, len(p))
	start := time.Now()
	n, err := d.backing.Write(p)
	latency := uint64(time.Since(start).Nanoseconds())

	if err != nil {
		err = d.wrap("write", err)
		n = 0
	} else {
		d.logger.IOComplete("write", pos, n, int64(latency/1000))
	}
	d.metrics.RecordWrite(uint64(n), latency, err == nil)
	d.observer.ObserveWrite(d.name, uint64(n), latency, err == nil)
	return n, err
}

// Seek sets the block position for the next transfer
func (d *Device) Seek(pos uint64) error {
	err := d.backing.Seek(pos)
	if err != nil {
		err = d.wrap("seek", err)
	}
	d.metrics.RecordSeek(err == nil)
	d.observer.ObserveSeek(d.name, pos, err == nil)
	return err
}

func (d *Device) wrap(op string, err error) error {
	e := WrapError(op, err)
	e.Device = d.name
	if e.Code == ErrCodeTimeout {
		d.metrics.RecordTimeout()
	}
	if e.Code != ErrCodeNotSupported {
		d.logger.IOError(op, d.positionHint(), 0, e)
	}
	return e
}

// positionHint returns the backing position when it exposes one
func (d *Device) positionHint() uint64 {
	if p, ok := d.backing.(interface{ Position() uint64 }); ok {
		return p.Position()
	}
	return 0
}
