package tiffio

import (
	"fmt"
	"io"
)

// Buffer is an in-memory io.WriteSeeker, so a DNG can be encoded to memory
// instead of a file.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer returns an empty in-memory sink.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Bytes returns the written stream.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		if need > cap(b.data) {
			grown := make([]byte, need, need*2)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:need]
		}
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	if pos > int64(len(b.data)) {
		grown := make([]byte, pos)
		copy(grown, b.data)
		b.data = grown
	}
	b.pos = int(pos)
	return pos, nil
}
