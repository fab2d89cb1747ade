package interfaces

// Backing is the capability set behind a registered device. The registry
// never inspects a Backing; it forwards read, write and seek calls.
//
// Positions are logical block addresses. Read and Write transfer at the
// current position and do not move it; only Seek does.
type Backing interface {
	// Read transfers at most len(p) bytes from the current block into p.
	// It returns the number of bytes stored. On error the position and any
	// previously returned data are unchanged.
	Read(p []byte) (n int, err error)

	// Write transfers at most len(p) bytes from p to the current block.
	// A backing without a write protocol returns an unsupported error and
	// must not touch its state.
	Write(p []byte) (n int, err error)

	// Seek sets the current block. Backings that cannot validate the
	// position accept any value.
	Seek(pos uint64) error
}

// BlockBacking is an optional interface for backings with known geometry
type BlockBacking interface {
	Backing

	// BlockSize returns the logical block size in bytes
	BlockSize() int

	// Blocks returns the number of addressable blocks, or 0 if unknown
	Blocks() uint64
}

// StatBacking is an optional interface that provides backing statistics.
type StatBacking interface {
	Backing

	// Stats returns backing-specific statistics.
	// The returned map contains string keys with numeric or string values.
	Stats() map[string]interface{}
}
