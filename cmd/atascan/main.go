package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-ata"
	"github.com/ehrlich-b/go-ata/internal/config"
	"github.com/ehrlich-b/go-ata/internal/logging"
	"github.com/ehrlich-b/go-ata/internal/portio/host"
)

var (
	root = &cobra.Command{
		Use:           "atascan [command]",
		Short:         "Probe legacy ATA channels and read from detected drives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmdScan = &cobra.Command{
		Use:   "scan",
		Short: "Detect drives in every slot and list them",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}

	cmdRead = &cobra.Command{
		Use:   "read NAME",
		Short: "Read one block from a detected drive and hex dump it",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}

	configPath string
	simulate   bool
	verbose    bool
	logFormat  string

	readLBA  uint64
	readSize int
)

func init() {
	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.BoolVar(&simulate, "simulate", false, "scan the simulated drives from the configuration instead of host ports")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")

	cmdRead.Flags().Uint64Var(&readLBA, "lba", 0, "block address to read")
	cmdRead.Flags().IntVar(&readSize, "size", 0, "buffer size in bytes (default: the drive's block size)")

	root.AddCommand(cmdScan)
	root.AddCommand(cmdRead)
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, opens the port space and scans it
func setup() (*ata.Registry, []ata.SlotResult, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, nil, err
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logConfig, err := cfg.LoggerConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var port ata.Port
	if simulate {
		bus, err := cfg.SimulatedBus()
		if err != nil {
			return nil, nil, err
		}
		port = bus
	} else {
		if port, err = host.Open(host.LegacyATARanges); err != nil {
			return nil, nil, fmt.Errorf("open host ports (try --simulate): %w", err)
		}
	}

	reg := ata.NewRegistry(0)
	results := ata.Scan(reg, port, ata.ScanOptions{
		Timing: cfg.ScanTiming(),
		Slots:  cfg.ScanSlots(),
		Logger: logger,
	})
	return reg, results, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	_, results, err := setup()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tPORTS\tCLASS\tMODEL\tBLOCKS\tSTATUS")
	for _, r := range results {
		ports := fmt.Sprintf("0x%03x/%s", r.Slot.Base, r.Slot.Selector)
		if r.Descriptor == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t%v\n", r.Slot.Name, ports, r.Err)
			continue
		}
		status := "registered"
		if r.Err != nil {
			status = r.Err.Error()
		}
		d := r.Descriptor
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Slot.Name, ports, d.Class, d.Model, d.Blocks(), status)
	}
	return w.Flush()
}

func runRead(cmd *cobra.Command, args []string) error {
	name := args[0]
	reg, _, err := setup()
	if err != nil {
		return err
	}

	dev, err := reg.Lookup(name)
	if err != nil {
		return err
	}

	size := readSize
	if size <= 0 {
		size = ata.SectorSize
		if bb, ok := dev.Backing().(ata.BlockBacking); ok {
			size = bb.BlockSize()
		}
	}

	if err := reg.Seek(name, readLBA); err != nil {
		return err
	}
	buf := make([]byte, size)
	n, err := reg.Read(name, buf)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d bytes at block %d\n", name, n, readLBA)
	fmt.Fprint(out, hex.Dump(buf[:n]))
	return nil
}
