package ata

import "sync"

// MockBacking provides a mock implementation of Backing for testing.
// It serves fixed-size blocks from memory and tracks method calls for
// verification.
type MockBacking struct {
	data      []byte
	blockSize int
	cursor    uint64
	readOnly  bool
	failNext  error
	stats     map[string]interface{}

	// Method call tracking
	mu         sync.RWMutex
	readCalls  int
	writeCalls int
	seekCalls  int
}

// NewMockBacking creates a mock backing of blocks blocks of blockSize bytes.
// This is useful for unit testing code that consumes registry devices.
func NewMockBacking(blocks, blockSize int) *MockBacking {
	return &MockBacking{
		data:      make([]byte, blocks*blockSize),
		blockSize: blockSize,
		stats:     make(map[string]interface{}),
	}
}

func (m *MockBacking) block() ([]byte, error) {
	off := m.cursor * uint64(m.blockSize)
	if off >= uint64(len(m.data)) {
		return nil, ErrInvalidParameters
	}
	return m.data[off : off+uint64(m.blockSize)], nil
}

// Read implements the Backing interface: one block at the cursor
func (m *MockBacking) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++

	if err := m.takeFailure(); err != nil {
		return 0, err
	}

	blk, err := m.block()
	if err != nil {
		return 0, err
	}
	return copy(p, blk), nil
}

// Write implements the Backing interface
func (m *MockBacking) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++

	if m.readOnly {
		return 0, ErrUnsupported
	}

	if err := m.takeFailure(); err != nil {
		return 0, err
	}

	blk, err := m.block()
	if err != nil {
		return 0, err
	}
	return copy(blk, p), nil
}

// Seek implements the Backing interface
func (m *MockBacking) Seek(pos uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seekCalls++
	m.cursor = pos
	return nil
}

// BlockSize implements the BlockBacking interface
func (m *MockBacking) BlockSize() int {
	return m.blockSize
}

// Blocks implements the BlockBacking interface
func (m *MockBacking) Blocks() uint64 {
	return uint64(len(m.data) / m.blockSize)
}

// Stats implements the StatBacking interface
func (m *MockBacking) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]interface{})
	for k, v := range m.stats {
		stats[k] = v
	}

	stats["read_calls"] = m.readCalls
	stats["write_calls"] = m.writeCalls
	stats["seek_calls"] = m.seekCalls

	return stats
}

// Testing utility methods

// Position returns the current cursor
func (m *MockBacking) Position() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

// SetReadOnly makes Write fail with ErrUnsupported
func (m *MockBacking) SetReadOnly(ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = ro
}

// FailNext makes the next Read or Write return err
func (m *MockBacking) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MockBacking) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// Fill writes data at block pos without going through the Backing interface
func (m *MockBacking) Fill(pos uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.data[pos*uint64(m.blockSize):], data)
}

// CallCounts returns the number of times each method has been called
func (m *MockBacking) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"seek":  m.seekCalls,
	}
}

// Reset resets all call counters
func (m *MockBacking) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls = 0
	m.writeCalls = 0
	m.seekCalls = 0
}

// SetCustomStats allows setting custom statistics for testing
func (m *MockBacking) SetCustomStats(stats map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = make(map[string]interface{})
	for k, v := range stats {
		m.stats[k] = v
	}
}

// Compile-time interface checks
var (
	_ Backing      = (*MockBacking)(nil)
	_ BlockBacking = (*MockBacking)(nil)
	_ StatBacking  = (*MockBacking)(nil)
)
