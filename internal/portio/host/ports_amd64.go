package host

import "github.com/ehrlich-b/go-ata/internal/portio"

// Implemented in ports_amd64.s
func inb(port uint16) uint8
func outb(port uint16, val uint8)
func inw(port uint16) uint16
func outw(port uint16, val uint16)
func insw(port uint16, buf *uint16, count int)
func outsw(port uint16, buf *uint16, count int)

// Ports issues real IN/OUT instructions. The calling thread must hold I/O
// permission for every port it touches (see Open).
type Ports struct{}

// Inb implements portio.Port
func (Ports) Inb(port uint16) uint8 { return inb(port) }

// Outb implements portio.Port
func (Ports) Outb(port uint16, v uint8) { outb(port, v) }

// Inw implements portio.Port
func (Ports) Inw(port uint16) uint16 { return inw(port) }

// Outw implements portio.Port
func (Ports) Outw(port uint16, v uint16) { outw(port, v) }

// Insw implements portio.Port
func (Ports) Insw(port uint16, dst []uint16) {
	if len(dst) == 0 {
		return
	}
	insw(port, &dst[0], len(dst))
}

// Outsw implements portio.Port
func (Ports) Outsw(port uint16, src []uint16) {
	if len(src) == 0 {
		return
	}
	outsw(port, &src[0], len(src))
}

var _ portio.Port = Ports{}
