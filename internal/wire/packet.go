package wire

import (
	"encoding/binary"

	"github.com/ehrlich-b/go-ata/internal/constants"
)

// Packet is a 12-byte ATAPI command block
type Packet [constants.PacketSize]byte

// Error is a codec failure
type Error string

func (e Error) Error() string {
	return string(e)
}

// ErrShortPacket is returned when decoding fewer than six words
const ErrShortPacket Error = "wire: packet shorter than 12 bytes"

// Read12 builds a SCSI READ(12) packet for a single logical block at lba.
// The LBA field is big-endian at offsets 2..5; offset 9 holds the low byte of
// the big-endian transfer length (6..9).
func Read12(lba uint32) Packet {
	var p Packet
	p[0] = constants.SCSIRead12
	binary.BigEndian.PutUint32(p[2:6], lba)
	p[9] = 1
	return p
}

// Opcode returns byte 0
func (p Packet) Opcode() uint8 {
	return p[0]
}

// LBA returns the big-endian logical block address at offsets 2..5
func (p Packet) LBA() uint32 {
	return binary.BigEndian.Uint32(p[2:6])
}

// TransferLength returns the big-endian block count at offsets 6..9
func (p Packet) TransferLength() uint32 {
	return binary.BigEndian.Uint32(p[6:10])
}

// Words packs the packet into the six data-port words that carry it. The
// data port is little-endian: byte 0 goes out in the low half of word 0.
func (p Packet) Words() [constants.PacketWords]uint16 {
	var w [constants.PacketWords]uint16
	for i := range w {
		w[i] = binary.LittleEndian.Uint16(p[i*2:])
	}
	return w
}

// PacketFromWords reassembles a packet from six data-port words
func PacketFromWords(words []uint16) (Packet, error) {
	var p Packet
	if len(words) < constants.PacketWords {
		return p, ErrShortPacket
	}
	for i := 0; i < constants.PacketWords; i++ {
		binary.LittleEndian.PutUint16(p[i*2:], words[i])
	}
	return p, nil
}

// PutWords copies little-endian data-port words into dst and returns the
// number of bytes copied. A trailing odd byte of dst receives the low half
// of the final word.
func PutWords(dst []byte, words []uint16) int {
	n := 0
	for _, w := range words {
		if n >= len(dst) {
			break
		}
		dst[n] = byte(w)
		n++
		if n >= len(dst) {
			break
		}
		dst[n] = byte(w >> 8)
		n++
	}
	return n
}

// WordsFromBytes packs bytes into little-endian data-port words, padding an
// odd tail with zero.
func WordsFromBytes(src []byte) []uint16 {
	words := make([]uint16, (len(src)+1)/2)
	for i := range words {
		lo := uint16(src[i*2])
		var hi uint16
		if i*2+1 < len(src) {
			hi = uint16(src[i*2+1])
		}
		words[i] = lo | hi<<8
	}
	return words
}
