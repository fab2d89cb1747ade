// Package backend provides standard device backings
package backend

import (
	"errors"
	"io"
	"sync"

	"github.com/ehrlich-b/go-ata/internal/constants"
	"github.com/ehrlich-b/go-ata/internal/interfaces"
)

// ErrOutOfRange is returned for transfers that start beyond the end of the
// backing
var ErrOutOfRange = errors.New("backend: position beyond end of device")

// Memory provides a RAM-based block backing. It also serves as media for
// simulated drives through ReadAt.
type Memory struct {
	data      []byte
	size      int64
	blockSize int
	cursor    uint64
	mu        sync.RWMutex
}

// NewMemory creates a new memory backing of the specified size with
// 512-byte blocks
func NewMemory(size int64) *Memory {
	return NewMemoryBlocks(make([]byte, size), constants.SectorSize)
}

// NewMemoryBlocks wraps data as a backing with the given block size. The
// slice is used directly, not copied.
func NewMemoryBlocks(data []byte, blockSize int) *Memory {
	if blockSize <= 0 {
		blockSize = constants.SectorSize
	}
	return &Memory{
		data:      data,
		size:      int64(len(data)),
		blockSize: blockSize,
	}
}

// ReadAt implements io.ReaderAt: a read that ends short of len(p) returns
// io.EOF with the bytes it did copy
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= m.size {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:m.size])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off >= m.size {
		return 0, ErrOutOfRange
	}

	// Calculate how much we can actually write
	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size returns the size of the backing in bytes
func (m *Memory) Size() int64 {
	return m.size
}

// BlockSize implements interfaces.BlockBacking
func (m *Memory) BlockSize() int {
	return m.blockSize
}

// Blocks implements interfaces.BlockBacking
func (m *Memory) Blocks() uint64 {
	return uint64(m.size) / uint64(m.blockSize)
}

func (m *Memory) offset() (int64, error) {
	m.mu.RLock()
	pos := m.cursor
	m.mu.RUnlock()

	if pos >= m.Blocks() {
		return 0, ErrOutOfRange
	}
	return int64(pos) * int64(m.blockSize), nil
}

// Read implements interfaces.Backing: it reads up to len(p) bytes starting
// at the current block.
func (m *Memory) Read(p []byte) (int, error) {
	off, err := m.offset()
	if err != nil {
		return 0, err
	}
	n, err := m.ReadAt(p, off)
	if err == io.EOF {
		// a transfer larger than the remaining blocks is truncated
		err = nil
	}
	return n, err
}

// Write implements interfaces.Backing: it writes up to len(p) bytes
// starting at the current block.
func (m *Memory) Write(p []byte) (int, error) {
	off, err := m.offset()
	if err != nil {
		return 0, err
	}
	return m.WriteAt(p, off)
}

// Seek implements interfaces.Backing. Positions past the end are accepted
// and fail on the next transfer.
func (m *Memory) Seek(pos uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = pos
	return nil
}

// Position returns the current block
func (m *Memory) Position() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

// Stats implements the StatBacking interface
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"type":       "memory",
		"size":       m.size,
		"block_size": m.blockSize,
		"position":   m.cursor,
	}
}

// Compile-time interface checks
var (
	_ interfaces.Backing      = (*Memory)(nil)
	_ interfaces.BlockBacking = (*Memory)(nil)
	_ interfaces.StatBacking  = (*Memory)(nil)
)
