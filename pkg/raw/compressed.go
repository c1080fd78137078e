package raw

// Decoder for the fixed-ratio block compression used by the 16-bit
// compressed sensor modes: every 8 pixels are carried in two little-endian
// 32-bit words, each encoding 4 quantized values selected by its low two
// bits ("qmode"). All helpers are pure functions over fixed-size words.

const (
	compressMode   = 1
	compressOffset = 2048
)

// dequantize expands a quantized value through the per-qmode piecewise
// gain table.
func dequantize(q int, qmode int) uint16 {
	switch qmode {
	case 0:
		if q < 320 {
			return uint16(16 * q)
		}
		return uint16(32 * (q - 160))
	case 1:
		return uint16(64 * q)
	case 2:
		return uint16(128 * q)
	default:
		if q < 94 {
			return uint16(256 * q)
		}
		v := 512 * (q - 47)
		if v > 0xFFFF {
			v = 0xFFFF
		}
		return uint16(v)
	}
}

// postprocess applies the fixed output offset and, when the compress mode
// has the companding bit set, reverses the non-linear range compression.
// The current mode (1) leaves companding off.
func postprocess(a uint16) uint16 {
	if compressMode&2 != 0 {
		switch {
		case compressMode == 3 && a < 0x4000:
			a >>= 2
		case a < 0x1000:
			a >>= 4
		case a < 0x1800:
			a = (a - 0x800) >> 3
		case a < 0x3000:
			a = (a - 0x1000) >> 2
		case a < 0x6000:
			a = (a - 0x2000) >> 1
		case a < 0xC000:
			a -= 0x4000
		default:
			a = 2 * (a - 0x8000)
		}
	}
	v := int(a) + compressOffset
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v)
}

// subBlock decodes one 32-bit word into 4 dequantized values, stored at
// d[0], d[2], d[4], d[6] (the two words of a group interleave).
func subBlock(d []uint16, w uint32) {
	var q [4]int
	qmode := int(w & 3)
	if qmode < 3 {
		field0 := int(w>>2) & 511
		field1 := int(w>>11) & 127
		field2 := int(w>>18) & 127
		field3 := int(w>>25) & 127
		if qmode == 2 && field0 >= 384 {
			q[1] = field0
			q[2] = field1 + 384
		} else if field1 >= 64 {
			q[1] = field0
			q[2] = field0 + field1 - 64
		} else {
			q[1] = field0 + 64 - field1
			q[2] = field0
		}
		p1 := q[1] - 64
		if p1 < 0 {
			p1 = 0
		}
		p2 := q[2] - 64
		if p2 < 0 {
			p2 = 0
		}
		if qmode == 2 {
			if p1 > 384 {
				p1 = 384
			}
			if p2 > 384 {
				p2 = 384
			}
		}
		q[0] = p1 + field2
		q[3] = p2 + field3
	} else {
		pack0 := int(w>>2) & 32767
		pack1 := int(w>>17) & 32767
		q[0] = (pack0 & 15) + 16*((pack0>>8)/11)
		q[1] = (pack0 >> 4) % 176
		q[2] = (pack1 & 15) + 16*((pack1>>8)/11)
		q[3] = (pack1 >> 4) % 176
	}
	d[0] = dequantize(q[0], qmode)
	d[2] = dequantize(q[1], qmode)
	d[4] = dequantize(q[2], qmode)
	d[6] = dequantize(q[3], qmode)
}

// uncompress decodes a compressed frame into dst, whose rows are padded to
// a multiple of 8 samples. It never reads beyond Stride bytes per source
// row; malformed input yields undefined pixel values, never a fault.
func uncompress(src []byte, info StreamInfo, dst []uint16) {
	stride16 := paddedWidth(info.Width)
	for y := 0; y < info.Height; y++ {
		dp := dst[y*stride16:]
		sp := src[y*info.Stride:]
		for x := 0; x < info.Width; x += 8 {
			if compressMode&1 != 0 {
				w0 := uint32(sp[0]) | uint32(sp[1])<<8 | uint32(sp[2])<<16 | uint32(sp[3])<<24
				w1 := uint32(sp[4]) | uint32(sp[5])<<8 | uint32(sp[6])<<16 | uint32(sp[7])<<24
				sp = sp[8:]
				subBlock(dp[x:], w0)
				subBlock(dp[x+1:], w1)
				for i := 0; i < 8; i++ {
					dp[x+i] = postprocess(dp[x+i])
				}
			} else {
				for i := 0; i < 8; i++ {
					dp[x+i] = postprocess(uint16(sp[0]) << 8)
					sp = sp[1:]
				}
			}
		}
	}
}
