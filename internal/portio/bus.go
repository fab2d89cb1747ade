package portio

import (
	"fmt"
	"sync"
)

// Access sizes reported to a Handler
const (
	SizeByte = 1
	SizeWord = 2
)

// FloatingByte is what an unclaimed port reads as: with no device driving
// the bus the data lines are pulled high.
const FloatingByte = 0xFF

// Handler emulates the device behind a range of ports.
type Handler interface {
	// In services a read of size bytes from port
	In(port uint16, size int) uint16

	// Out services a write of size bytes to port
	Out(port uint16, size int, v uint16)
}

// Access is one recorded port operation
type Access struct {
	Write bool
	Port  uint16
	Size  int
	Value uint16
}

func (a Access) String() string {
	dir := "in"
	if a.Write {
		dir = "out"
	}
	return fmt.Sprintf("%s%d 0x%03x=0x%x", dir, a.Size*8, a.Port, a.Value)
}

// Bus is a simulated port space that routes each port to a Handler.
// Unclaimed ports read as floating and swallow writes.
type Bus struct {
	mu      sync.Mutex
	ports   map[uint16]Handler
	tracing bool
	trace   []Access
}

// NewBus creates an empty port space
func NewBus() *Bus {
	return &Bus{
		ports: make(map[uint16]Handler),
	}
}

// Attach routes ports [start, end] to h. It fails if any port in the range is
// already claimed.
func (b *Bus) Attach(start, end uint16, h Handler) error {
	if h == nil {
		return fmt.Errorf("portio: nil handler for ports 0x%x-0x%x", start, end)
	}
	if end < start {
		return fmt.Errorf("portio: invalid range 0x%x-0x%x", start, end)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for port := uint32(start); port <= uint32(end); port++ {
		if _, ok := b.ports[uint16(port)]; ok {
			return fmt.Errorf("portio: port 0x%x already attached", port)
		}
	}
	for port := uint32(start); port <= uint32(end); port++ {
		b.ports[uint16(port)] = h
	}
	return nil
}

// SetTracing turns access recording on or off and clears the trace
func (b *Bus) SetTracing(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracing = on
	b.trace = nil
}

// Trace returns a copy of the recorded accesses
func (b *Bus) Trace() []Access {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Access, len(b.trace))
	copy(out, b.trace)
	return out
}

func (b *Bus) in(port uint16, size int) uint16 {
	b.mu.Lock()
	h := b.ports[port]
	b.mu.Unlock()

	v := uint16(FloatingByte)
	if size == SizeWord {
		v = 0xFFFF
	}
	if h != nil {
		v = h.In(port, size)
	}
	b.record(Access{Port: port, Size: size, Value: v})
	return v
}

func (b *Bus) out(port uint16, size int, v uint16) {
	b.mu.Lock()
	h := b.ports[port]
	b.mu.Unlock()

	if h != nil {
		h.Out(port, size, v)
	}
	b.record(Access{Write: true, Port: port, Size: size, Value: v})
}

func (b *Bus) record(a Access) {
	b.mu.Lock()
	if b.tracing {
		b.trace = append(b.trace, a)
	}
	b.mu.Unlock()
}

// Inb implements Port
func (b *Bus) Inb(port uint16) uint8 {
	return uint8(b.in(port, SizeByte))
}

// Outb implements Port
func (b *Bus) Outb(port uint16, v uint8) {
	b.out(port, SizeByte, uint16(v))
}

// Inw implements Port
func (b *Bus) Inw(port uint16) uint16 {
	return b.in(port, SizeWord)
}

// Outw implements Port
func (b *Bus) Outw(port uint16, v uint16) {
	b.out(port, SizeWord, v)
}

// Insw implements Port
func (b *Bus) Insw(port uint16, dst []uint16) {
	for i := range dst {
		dst[i] = b.in(port, SizeWord)
	}
}

// Outsw implements Port
func (b *Bus) Outsw(port uint16, src []uint16) {
	for _, w := range src {
		b.out(port, SizeWord, w)
	}
}

var _ Port = (*Bus)(nil)
