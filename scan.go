package ata

import (
	"fmt"

	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/logging"
)

// Slot is one channel/drive position on the bus
type Slot struct {
	Name     string // registry name for a drive found here
	Channel  string // channel name, shared by master and slave
	Base     uint16
	Control  uint16
	Selector Selector
}

// DefaultSlots returns the four legacy slots, named ATA-0 through ATA-3
func DefaultSlots() []Slot {
	return []Slot{
		{Name: "ATA-0", Channel: "primary", Base: constants.PrimaryBase, Control: constants.PrimaryControl, Selector: Master},
		{Name: "ATA-1", Channel: "primary", Base: constants.PrimaryBase, Control: constants.PrimaryControl, Selector: Slave},
		{Name: "ATA-2", Channel: "secondary", Base: constants.SecondaryBase, Control: constants.SecondaryControl, Selector: Master},
		{Name: "ATA-3", Channel: "secondary", Base: constants.SecondaryBase, Control: constants.SecondaryControl, Selector: Slave},
	}
}

// ScanOptions configures a bus scan
type ScanOptions struct {
	// Timing bounds every wait; the zero value selects DefaultTiming
	Timing Timing

	// Slots to probe; nil selects DefaultSlots
	Slots []Slot

	// Logger for per-slot diagnostics; nil selects the default logger
	Logger *Logger

	// Observer is attached to every registered device
	Observer Observer
}

// SlotResult is the outcome of probing one slot
type SlotResult struct {
	Slot       Slot
	Descriptor *Descriptor // nil if detection failed
	Device     *Device     // nil unless registered
	Err        error       // detection or registration failure
}

// Found reports whether a device was registered for the slot
func (r SlotResult) Found() bool {
	return r.Device != nil
}

// Scan probes every slot in order, registers each detected drive in reg
// under its slot name and returns one result per slot. Slots on the same
// ports share a Channel. A slot without a drive yields a detection failure
// in its result.
func Scan(reg *Registry, port Port, opts ScanOptions) []SlotResult {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timing := opts.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	slots := opts.Slots
	if slots == nil {
		slots = DefaultSlots()
	}

	type channelKey struct{ base, control uint16 }
	channels := make(map[channelKey]*Channel)

	results := make([]SlotResult, 0, len(slots))
	for _, slot := range slots {
		key := channelKey{slot.Base, slot.Control}
		ch, ok := channels[key]
		if !ok {
			name := slot.Channel
			if name == "" {
				name = fmt.Sprintf("ata@0x%03x", slot.Base)
			}
			ch = NewChannel(name, slot.Base, slot.Control, port, timing, logger)
			channels[key] = ch
		}

		results = append(results, scanSlot(reg, ch, slot, opts.Observer, logger.WithSlot(slot.Name)))
	}
	return results
}

func scanSlot(reg *Registry, ch *Channel, slot Slot, observer Observer, logger *Logger) SlotResult {
	res := SlotResult{Slot: slot}

	desc, err := Detect(ch, slot.Selector, logger)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Slot = slot.Name
		}
		logger.Debug("no device", "error", err)
		res.Err = err
		return res
	}
	res.Descriptor = desc

	dev := NewDevice(slot.Name, KindRandomAccess, desc)
	dev.SetLogger(logger)
	if observer != nil {
		dev.SetObserver(observer)
	}
	if err := reg.Register(dev); err != nil {
		logger.Warn("registration failed", "error", err)
		res.Err = err
		return res
	}
	res.Device = dev

	logger.Info("device registered", "device", slot.Name, "class", desc.Class.String(), "model", desc.Model)
	return res
}

// Install runs Scan and registers every detected drive. Failures are logged
// per slot and never returned.
func Install(reg *Registry, port Port, opts ScanOptions) {
	results := Scan(reg, port, opts)

	found := 0
	for _, r := range results {
		if r.Found() {
			found++
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("bus scan complete", "slots", len(results), "devices", found)
}
