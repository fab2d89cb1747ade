package config

import (
	"fmt"
	"os"

	"github.com/ehrlich-b/go-ata/backend"
	"github.com/ehrlich-b/go-ata/internal/portio"
	"github.com/ehrlich-b/go-ata/internal/simdrive"
)

// defaultSimSectors is the media size of a simulated drive without an image
const defaultSimSectors = 64

// SimulatedBus builds a port space with one simulated channel per distinct
// slot port pair and the configured drives inserted. Channels without drives
// are attached too, so their slots read as empty rather than floating.
func (c *Config) SimulatedBus() (*portio.Bus, error) {
	bus := portio.NewBus()

	type key struct{ base, control uint16 }
	channels := make(map[key]*simdrive.Channel)
	slots := make(map[string]SlotConfig, len(c.Slots))
	for _, s := range c.Slots {
		slots[s.Name] = s
		k := key{s.Base, s.Control}
		if _, ok := channels[k]; ok {
			continue
		}
		ch := simdrive.NewChannel(s.Base, s.Control)
		if err := ch.Attach(bus); err != nil {
			return nil, fmt.Errorf("slot %s: %w", s.Name, err)
		}
		channels[k] = ch
	}

	for _, d := range c.Simulate.Drives {
		s, ok := slots[d.Slot]
		if !ok {
			return nil, fmt.Errorf("simulated drive: unknown slot %q", d.Slot)
		}
		drive, err := d.build()
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", d.Slot, err)
		}
		channels[key{s.Base, s.Control}].Insert(s.Slave, drive)
	}
	return bus, nil
}

func (d DriveConfig) build() (*simdrive.Drive, error) {
	kind, err := simdrive.ParseKind(d.Class)
	if err != nil {
		return nil, err
	}
	bs := kind.BlockSize()

	var media *backend.Memory
	sectors := d.Sectors
	if d.Image != "" {
		buf, err := os.ReadFile(d.Image)
		if err != nil {
			return nil, err
		}
		media = backend.NewMemoryBlocks(buf, bs)
		if sectors == 0 {
			sectors = media.Blocks()
		}
	} else {
		if sectors == 0 {
			sectors = defaultSimSectors
		}
		media = backend.NewMemoryBlocks(make([]byte, sectors*uint64(bs)), bs)
	}

	model := d.Model
	if model == "" {
		model = "SIM " + kind.String()
	}
	return &simdrive.Drive{
		Kind:      kind,
		Media:     media,
		Sectors:   sectors,
		Model:     model,
		Serial:    d.Serial,
		Firmware:  "sim",
		LBA48:     d.LBA48,
		BusyReads: d.BusyReads,
	}, nil
}
