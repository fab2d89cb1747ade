// Package portio defines the x86 I/O port primitives consumed by the ATA
// driver, and a simulated port space for running the driver without hardware.
package portio

// Port is the hardware port interface. Each call is a single atomic port
// access and calls are never reordered with respect to each other.
type Port interface {
	// Inb reads one byte from port
	Inb(port uint16) uint8

	// Outb writes one byte to port
	Outb(port uint16, v uint8)

	// Inw reads one 16-bit word from port
	Inw(port uint16) uint16

	// Outw writes one 16-bit word to port
	Outw(port uint16, v uint16)

	// Insw reads len(dst) words from port (string I/O)
	Insw(port uint16, dst []uint16)

	// Outsw writes src to port one word at a time (string I/O)
	Outsw(port uint16, src []uint16)
}
