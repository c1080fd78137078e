// Package raw converts sensor-native Bayer buffers (packed, unpacked or
// block-compressed) into byte-aligned sample streams suitable for DNG
// storage, plus a full-precision 16-bit view used for derived images.
package raw

import (
	"errors"
	"fmt"
)

// StreamInfo describes the shape of one raw buffer, as negotiated with the
// capture pipeline. It is read-only to this package.
type StreamInfo struct {
	Width       int
	Height      int
	Stride      int // bytes per row, >= Width*Bits/8
	PixelFormat Format
}

// Depth selects the bit depth of the produced byte stream.
type Depth int

const (
	DepthNative Depth = iota
	Depth8
	Depth10
)

// Buffers holds the per-frame conversion results. Bytes carries samples at
// the output depth, tightly packed per that depth. Samples16 carries the
// reconstructed native-precision values, one row every Stride16 samples;
// its backing array is always PaddedWidth*Height long because the block
// decoder works in groups of 8 columns.
type Buffers struct {
	Bytes     []byte
	Samples16 []uint16
	Stride16  int // samples per row in Samples16

	BitsPerSample  int     // depth recorded in the container
	BytesPerSample float64 // bytes per sample in Bytes: 1, 1.25, 1.5 or 2
}

// RowBytes returns the length in bytes of one full-width row of Bytes.
func (b *Buffers) RowBytes(width int) int {
	return int(float64(width) * b.BytesPerSample)
}

// ErrShortBuffer is returned when the source buffer cannot hold
// Stride*Height bytes.
var ErrShortBuffer = errors.New("raw buffer shorter than stride * height")

func paddedWidth(w int) int { return (w + 7) &^ 7 }

// Unpack converts one raw frame into its output byte stream and 16-bit
// sample buffer. The force depth is honoured on packed 12-bit streams,
// which are rescaled to 8 or 10 bits; other formats keep their native
// depth. The individual unpack routines assume correctly sized buffers and
// perform no bounds validation of their own.
func Unpack(src []byte, info StreamInfo, force Depth) (*Buffers, error) {
	bf, err := Lookup(info.PixelFormat)
	if err != nil {
		return nil, err
	}
	if len(src) < info.Stride*info.Height {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(src), info.Stride*info.Height)
	}

	bits := 16
	bytesPer := 2.0
	switch {
	case bf.Compressed:
		// Decoded to full 16-bit range.
	case bf.Packed:
		bits = bf.Bits
		bytesPer = float64(bf.Bits) / 8
		if bf.Bits == 12 {
			switch force {
			case Depth8:
				bits, bytesPer = 8, 1
			case Depth10:
				bits, bytesPer = 10, 1.25
			}
		}
	case bf.Bits == 8:
		bits, bytesPer = 8, 1
	}

	buf := &Buffers{
		Bytes:          make([]byte, int(float64(info.Width)*bytesPer)*info.Height),
		Samples16:      make([]uint16, paddedWidth(info.Width)*info.Height),
		Stride16:       info.Width,
		BitsPerSample:  bits,
		BytesPerSample: bytesPer,
	}

	switch {
	case bf.Compressed:
		uncompress(src, info, buf.Samples16)
		buf.Stride16 = paddedWidth(info.Width)
		packSamples16(buf.Samples16, info, buf.Stride16, buf.Bytes)
	case bf.Packed && bf.Bits == 10:
		unpack10(src, info, buf.Bytes, buf.Samples16)
	case bf.Packed: // 12
		switch force {
		case Depth8:
			unpack12to8(src, info, buf.Bytes, buf.Samples16)
		case Depth10:
			unpack12to10(src, info, buf.Bytes, buf.Samples16)
		default:
			unpack12(src, info, buf.Bytes, buf.Samples16)
		}
	case bf.Bits == 8:
		copy8(src, info, buf.Bytes, buf.Samples16)
	default:
		unpack16(src, info, buf.Bytes, buf.Samples16)
	}

	return buf, nil
}
