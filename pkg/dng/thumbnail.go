package dng

import (
	"math"

	"github.com/wassoc/shadowgraph/pkg/raw"
	"github.com/wassoc/shadowgraph/pkg/tiffio"
)

// writeThumbnail renders a small greyscale preview from the full-precision
// sample buffer and writes its scanlines into the directory under
// construction. Each thumbnail pixel sums one 2x2 Bayer cell, normalizes by
// the native bit depth and takes a square root as a cheap gamma, then
// replicates the value across R, G and B.
func writeThumbnail(tw *tiffio.Writer, buf *raw.Buffers, info raw.StreamInfo, bits, shift int) error {
	thumbW := info.Width >> shift
	thumbH := info.Height >> shift
	row := make([]byte, 3*thumbW)

	for y := 0; y < thumbH; y++ {
		for x := 0; x < thumbW; x++ {
			off := (y*buf.Stride16 + x) << shift
			grey := uint32(buf.Samples16[off]) +
				uint32(buf.Samples16[off+1]) +
				uint32(buf.Samples16[off+buf.Stride16]) +
				uint32(buf.Samples16[off+buf.Stride16+1])
			grey = (grey << 14) >> bits
			g := byte(math.Sqrt(float64(grey)))
			row[3*x] = g
			row[3*x+1] = g
			row[3*x+2] = g
		}
		if err := tw.WriteScanline(row, y); err != nil {
			return writeErr("thumbnail", err)
		}
	}
	return nil
}
