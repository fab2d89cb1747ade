// Package wire encodes and decodes the data blocks exchanged with ATA and
// ATAPI devices: the 256-word IDENTIFY page and the 12-byte command packet.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/ehrlich-b/go-ata/internal/constants"
)

// IdentifyPage is the raw 256-word IDENTIFY (PACKET) DEVICE response
type IdentifyPage [constants.IdentifyWords]uint16

// Word 0 general configuration bits
const (
	GeneralConfigNotATA  = 1 << 15 // cleared for ATA devices
	GeneralConfigATAPI14 = 1 << 14 // set with bit 15 for ATAPI (protocol type 10b)
)

// Word indexes used by the driver
const (
	wordGeneralConfig = 0
	wordSerial        = 10 // ..19
	wordFirmware      = 23 // ..26
	wordModel         = 27 // ..46
	wordCapabilities  = 49
	wordLBA28Total    = 60 // ..61
	wordCommandSet2   = 83
	wordLBA48Total    = 100 // ..103

	serialWords   = 10
	firmwareWords = 4
	modelWords    = 20
)

const (
	capabilityLBA   = 1 << 9  // word 49
	commandSetLBA48 = 1 << 10 // word 83
)

// Identity is the decoded subset of an IDENTIFY page the driver uses
type Identity struct {
	GeneralConfig uint16
	Serial        string
	Firmware      string
	Model         string
	LBA           bool
	LBA48         bool
	LBA28Sectors  uint32
	LBA48Sectors  uint64
}

// IsPacket reports whether word 0 describes a packet (ATAPI) device: bit 15
// or bit 14 set.
func (p *IdentifyPage) IsPacket() bool {
	return p[wordGeneralConfig]&(GeneralConfigNotATA|GeneralConfigATAPI14) != 0
}

// IsATA reports whether word 0 describes an ATA device: bit 15 clear.
func (p *IdentifyPage) IsATA() bool {
	return p[wordGeneralConfig]&GeneralConfigNotATA == 0
}

// Decode extracts the identity fields from the page
func (p *IdentifyPage) Decode() Identity {
	id := Identity{
		GeneralConfig: p[wordGeneralConfig],
		Serial:        p.str(wordSerial, serialWords),
		Firmware:      p.str(wordFirmware, firmwareWords),
		Model:         p.str(wordModel, modelWords),
		LBA:           p[wordCapabilities]&capabilityLBA != 0,
		LBA48:         p[wordCommandSet2]&commandSetLBA48 != 0,
	}
	if id.LBA {
		id.LBA28Sectors = uint32(p[wordLBA28Total]) | uint32(p[wordLBA28Total+1])<<16
	}
	if id.LBA48 {
		for i := 3; i >= 0; i-- {
			id.LBA48Sectors = id.LBA48Sectors<<16 | uint64(p[wordLBA48Total+i])
		}
	}
	return id
}

// ATA strings carry the first character in the high byte of each word
func (p *IdentifyPage) str(first, words int) string {
	buf := make([]byte, words*2)
	for i := 0; i < words; i++ {
		binary.BigEndian.PutUint16(buf[i*2:], p[first+i])
	}
	return string(bytes.TrimSpace(bytes.TrimRight(buf, "\x00")))
}

func (p *IdentifyPage) putStr(first, words int, s string) {
	buf := bytes.Repeat([]byte{' '}, words*2)
	copy(buf, s)
	for i := 0; i < words; i++ {
		p[first+i] = binary.BigEndian.Uint16(buf[i*2:])
	}
}

// EncodeIdentify builds the IDENTIFY page a device with this identity returns
func EncodeIdentify(id Identity) *IdentifyPage {
	var p IdentifyPage
	p[wordGeneralConfig] = id.GeneralConfig
	p.putStr(wordSerial, serialWords, id.Serial)
	p.putStr(wordFirmware, firmwareWords, id.Firmware)
	p.putStr(wordModel, modelWords, id.Model)
	if id.LBA {
		p[wordCapabilities] |= capabilityLBA
		p[wordLBA28Total] = uint16(id.LBA28Sectors)
		p[wordLBA28Total+1] = uint16(id.LBA28Sectors >> 16)
	}
	if id.LBA48 {
		p[wordCommandSet2] |= commandSetLBA48
		for i := 0; i < 4; i++ {
			p[wordLBA48Total+i] = uint16(id.LBA48Sectors >> (16 * i))
		}
	}
	return &p
}
