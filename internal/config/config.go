// Package config loads the YAML configuration shared by the atascan tool:
// logging, polling bounds, the slot layout and an optional set of simulated
// drives.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/ehrlich-b/go-ata"
	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/logging"
	"github.com/ehrlich-b/go-ata/internal/simdrive"
)

// Config is the top-level configuration document
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Timing   TimingConfig   `yaml:"timing"`
	Slots    []SlotConfig   `yaml:"slots"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// LogConfig selects the log level ("debug", "info", "warn", "error") and
// format ("text" or "json")
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TimingConfig bounds every status wait. PollTimeout accepts Go duration
// strings such as "250ms"; zero disables the wall-clock bound.
type TimingConfig struct {
	PollAttempts int           `yaml:"poll_attempts"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	SettleReads  int           `yaml:"settle_reads"`
}

// SlotConfig is one channel/drive position to probe
type SlotConfig struct {
	Name    string `yaml:"name"`
	Channel string `yaml:"channel,omitempty"`
	Base    uint16 `yaml:"base"`
	Control uint16 `yaml:"control"`
	Slave   bool   `yaml:"slave"`
}

// SimulateConfig lists drives attached to a simulated bus
type SimulateConfig struct {
	Drives []DriveConfig `yaml:"drives"`
}

// DriveConfig describes one simulated drive, placed in the named slot.
// Media comes from Image when set, otherwise Sectors zeroed blocks.
type DriveConfig struct {
	Slot      string `yaml:"slot"`
	Class     string `yaml:"class"`
	Sectors   uint64 `yaml:"sectors"`
	Model     string `yaml:"model"`
	Serial    string `yaml:"serial"`
	Image     string `yaml:"image"`
	LBA48     bool   `yaml:"lba48"`
	BusyReads int    `yaml:"busy_reads"`
}

// Default returns the legacy four-slot layout with default timing
func Default() *Config {
	cfg := &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Timing: TimingConfig{
			PollAttempts: constants.DefaultPollAttempts,
			PollTimeout:  constants.DefaultPollTimeout,
			SettleReads:  constants.DefaultSettleReads,
		},
	}
	for _, s := range ata.DefaultSlots() {
		cfg.Slots = append(cfg.Slots, SlotConfig{
			Name:    s.Name,
			Channel: s.Channel,
			Base:    s.Base,
			Control: s.Control,
			Slave:   s.Selector == ata.Slave,
		})
	}
	return cfg
}

// Load reads path and overlays it on Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default and validates the result
func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(buf)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(buf))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the driver cannot run with
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Timing.PollAttempts < 0 || c.Timing.PollTimeout < 0 || c.Timing.SettleReads < 0 {
		return fmt.Errorf("timing values must not be negative")
	}

	if len(c.Slots) == 0 {
		return fmt.Errorf("no slots configured")
	}
	if len(c.Slots) > constants.MaxDevices {
		return fmt.Errorf("%d slots configured, at most %d supported", len(c.Slots), constants.MaxDevices)
	}
	slots := make(map[string]SlotConfig, len(c.Slots))
	for _, s := range c.Slots {
		if s.Name == "" {
			return fmt.Errorf("slot without a name")
		}
		if _, dup := slots[s.Name]; dup {
			return fmt.Errorf("duplicate slot name %q", s.Name)
		}
		if s.Base == 0 || s.Control == 0 {
			return fmt.Errorf("slot %s: base and control ports must be set", s.Name)
		}
		if s.Control >= s.Base && s.Control <= s.Base+constants.RegCommand {
			return fmt.Errorf("slot %s: control port 0x%x overlaps the command block", s.Name, s.Control)
		}
		slots[s.Name] = s
	}

	used := make(map[string]bool)
	for i, d := range c.Simulate.Drives {
		if _, ok := slots[d.Slot]; !ok {
			return fmt.Errorf("simulated drive %d: unknown slot %q", i, d.Slot)
		}
		if used[d.Slot] {
			return fmt.Errorf("simulated drive %d: slot %s already has a drive", i, d.Slot)
		}
		used[d.Slot] = true
		if _, err := simdrive.ParseKind(d.Class); err != nil {
			return fmt.Errorf("simulated drive %d: %w", i, err)
		}
		if d.BusyReads < 0 {
			return fmt.Errorf("simulated drive %d: busy_reads must not be negative", i)
		}
	}
	return nil
}

// ScanTiming converts the timing section to driver timing
func (c *Config) ScanTiming() ata.Timing {
	return ata.Timing{
		PollAttempts: c.Timing.PollAttempts,
		PollTimeout:  c.Timing.PollTimeout,
		SettleReads:  c.Timing.SettleReads,
	}
}

// ScanSlots converts the slot section to scan slots, in order
func (c *Config) ScanSlots() []ata.Slot {
	out := make([]ata.Slot, 0, len(c.Slots))
	for _, s := range c.Slots {
		sel := ata.Master
		if s.Slave {
			sel = ata.Slave
		}
		out = append(out, ata.Slot{
			Name:     s.Name,
			Channel:  s.Channel,
			Base:     s.Base,
			Control:  s.Control,
			Selector: sel,
		})
	}
	return out
}

// LoggerConfig returns the logging configuration. CLI output is written
// synchronously so nothing is lost at exit.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	lc.Sync = true
	return lc, nil
}
