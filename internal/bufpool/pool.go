// Package bufpool provides pooled 16-bit word buffers for PIO transfers.
package bufpool

import "sync"

// Uses size-bucketed pools matching the transfer shapes the driver issues:
// one sector or IDENTIFY page (256 words), one ATAPI block (1024 words), and
// the largest DRQ chunk a byte-count limit allows (32767 words).
//
// Uses *[]uint16 pattern to avoid sync.Pool interface allocation overhead.

// Buffer size thresholds in words
const (
	SectorWords = 256
	BlockWords  = 1024
	ChunkWords  = 32767
)

var globalPool = struct {
	sector sync.Pool
	block  sync.Pool
	chunk  sync.Pool
}{
	sector: sync.Pool{New: func() any { b := make([]uint16, SectorWords); return &b }},
	block:  sync.Pool{New: func() any { b := make([]uint16, BlockWords); return &b }},
	chunk:  sync.Pool{New: func() any { b := make([]uint16, ChunkWords); return &b }},
}

// GetWords returns a pooled buffer of exactly n words.
// Requests above ChunkWords are allocated directly.
// Caller must call PutWords when done.
func GetWords(n int) []uint16 {
	switch {
	case n <= SectorWords:
		return (*globalPool.sector.Get().(*[]uint16))[:n]
	case n <= BlockWords:
		return (*globalPool.block.Get().(*[]uint16))[:n]
	case n <= ChunkWords:
		return (*globalPool.chunk.Get().(*[]uint16))[:n]
	default:
		return make([]uint16, n)
	}
}

// PutWords returns a buffer to the pool.
// The buffer's capacity determines which pool it goes to.
func PutWords(buf []uint16) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case SectorWords:
		globalPool.sector.Put(&buf)
	case BlockWords:
		globalPool.block.Put(&buf)
	case ChunkWords:
		globalPool.chunk.Put(&buf)
		// Buffers with non-standard capacity are not returned to pool
	}
}
