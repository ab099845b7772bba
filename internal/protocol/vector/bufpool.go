package vector

import (
	"sync"
)

// ============================================================================
// Chunk Pool for Element Decoding
// ============================================================================
//
// Vector elements are read in fixed-size chunks rather than materialized per
// vector, so memory per connection does not depend on the declared length.
// Chunks are recycled through a sync.Pool and owned by exactly one batch at a
// time; release happens through the func returned by acquireChunk.

const (
	// chunkElements is the number of uint32 elements decoded per read.
	chunkElements = 4096

	// chunkSize is the byte size of a pooled chunk.
	chunkSize = chunkElements * 4
)

var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, chunkSize)
		return &buf
	},
}

// acquireChunk returns a chunkSize buffer and the func that gives it back.
// The buffer must not be used after release.
//
// Usage:
//
//	buf, release := acquireChunk()
//	defer release()
func acquireChunk() ([]byte, func()) {
	bufPtr := chunkPool.Get().(*[]byte)
	buf := (*bufPtr)[:chunkSize]

	var once sync.Once
	return buf, func() {
		once.Do(func() {
			full := buf[:cap(buf)]
			chunkPool.Put(&full)
		})
	}
}
