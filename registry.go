package ata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ehrlich-b/go-ata/internal/constants"
)

// Registry maps device names to devices. It is bounded; the default bound
// matches the four legacy ATA slots.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*Device
	capacity int
}

// NewRegistry creates a registry holding at most capacity devices. A
// capacity of zero or less selects MaxDevices.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = constants.MaxDevices
	}
	return &Registry{
		devices:  make(map[string]*Device, capacity),
		capacity: capacity,
	}
}

// Register adds dev under its name. It fails with ErrDuplicateName if the
// name is taken and ErrTableFull when the registry is at capacity; a failed
// registration leaves the registry unchanged.
func (r *Registry) Register(dev *Device) error {
	const op = "register"
	if dev == nil || dev.Name() == "" || dev.Backing() == nil {
		return NewError(op, ErrCodeInvalidParameters, "device needs a name and a backing")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[dev.Name()]; ok {
		return NewDeviceError(op, dev.Name(), ErrCodeDuplicateName, "name already registered")
	}
	if len(r.devices) >= r.capacity {
		return NewDeviceError(op, dev.Name(), ErrCodeTableFull,
			fmt.Sprintf("registry holds %d devices", r.capacity))
	}
	r.devices[dev.Name()] = dev
	return nil
}

// Lookup returns the device registered under name or ErrNotFound
func (r *Registry) Lookup(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[name]
	if !ok {
		return nil, NewDeviceError("lookup", name, ErrCodeDeviceNotFound, "no such device")
	}
	return dev, nil
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Devices returns the registered devices sorted by name
func (r *Registry) Devices() []*Device {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(names))
	for _, name := range names {
		if dev, ok := r.devices[name]; ok {
			out = append(out, dev)
		}
	}
	return out
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Capacity returns the registry bound
func (r *Registry) Capacity() int {
	return r.capacity
}

// Read looks up name and reads into p. The returned count is the number of
// bytes transferred, at most len(p).
func (r *Registry) Read(name string, p []byte) (int, error) {
	dev, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}
	return dev.Read(p)
}

// Write looks up name and writes p
func (r *Registry) Write(name string, p []byte) (int, error) {
	dev, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}
	return dev.Write(p)
}

// Seek looks up name and sets its position
func (r *Registry) Seek(name string, pos uint64) error {
	dev, err := r.Lookup(name)
	if err != nil {
		return err
	}
	return dev.Seek(pos)
}
