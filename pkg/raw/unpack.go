package raw

import "encoding/binary"

// The unpack routines below walk the source row by row, advancing by
// info.Stride bytes per row so padded rows are tolerated. Row widths are
// rounded down to the packing group size (4 pixels for 10-bit, 2 for
// 12-bit); remainder columns at the row tail are left unprocessed. The
// sensor modes this targets (4056, 2028, 1012 wide) never hit that case.

// unpack10 reconstructs CSI-2 packed 10-bit samples (4 pixels in 5 bytes,
// the 5th byte holding the 2 LSBs of all four) and re-packs them MSB-first
// into the output stream while recording full values in dst16.
func unpack10(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	wAlign := info.Width &^ 3
	di, si16 := 0, 0
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		for x, p := 0, 0; x < wAlign; x, p = x+4, p+5 {
			val1 := uint16(row[p])<<2 | uint16(row[p+4])&3
			val2 := uint16(row[p+1])<<2 | uint16(row[p+4]>>2)&3
			val3 := uint16(row[p+2])<<2 | uint16(row[p+4]>>4)&3
			val4 := uint16(row[p+3])<<2 | uint16(row[p+4]>>6)&3

			dst[di] = byte(val1 >> 2)
			dst[di+1] = byte(val1&3)<<6 | byte(val2>>4)
			dst[di+2] = byte(val2&0xf)<<4 | byte(val3>>6)
			dst[di+3] = byte(val3&0x3f)<<2 | byte(val4>>8)
			dst[di+4] = byte(val4)
			di += 5

			dst16[si16] = val1
			dst16[si16+1] = val2
			dst16[si16+2] = val3
			dst16[si16+3] = val4
			si16 += 4
		}
	}
}

// unpack12 reconstructs CSI-2 packed 12-bit samples (2 pixels in 3 bytes,
// the 3rd byte holding both 4-bit LSB nibbles).
func unpack12(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	wAlign := info.Width &^ 1
	di, si16 := 0, 0
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		for x, p := 0, 0; x < wAlign; x, p = x+2, p+3 {
			val1 := uint16(row[p])<<4 | uint16(row[p+2])&15
			val2 := uint16(row[p+1])<<4 | uint16(row[p+2]>>4)&15

			dst[di] = byte(val1 >> 4)
			dst[di+1] = byte(val1&0xf)<<4 | byte(val2>>8)
			dst[di+2] = byte(val2)
			di += 3

			dst16[si16] = val1
			dst16[si16+1] = val2
			si16 += 2
		}
	}
}

// unpack12to8 rescales packed 12-bit samples to an 8-bit output stream.
// dst16 still receives the full 12-bit values.
func unpack12to8(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	wAlign := info.Width &^ 1
	di, si16 := 0, 0
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		for x, p := 0, 0; x < wAlign; x, p = x+2, p+3 {
			val1 := uint16(row[p])<<4 | uint16(row[p+2])&15
			val2 := uint16(row[p+1])<<4 | uint16(row[p+2]>>4)&15

			dst[di] = byte(float32(val1) / 4096 * 256)
			dst[di+1] = byte(float32(val2) / 4096 * 256)
			di += 2

			dst16[si16] = val1
			dst16[si16+1] = val2
			si16 += 2
		}
	}
}

// unpack12to10 rescales packed 12-bit samples to 10 bits and re-packs them
// in the 4-pixels-in-5-bytes layout. Rows are consumed four pixels at a
// time (two source groups per output group).
func unpack12to10(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	wAlign := info.Width &^ 1
	di, si16 := 0, 0
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		for x, p := 0, 0; x+4 <= wAlign; x, p = x+4, p+6 {
			val1 := uint16(row[p])<<4 | uint16(row[p+2])&15
			val2 := uint16(row[p+1])<<4 | uint16(row[p+2]>>4)&15
			val3 := uint16(row[p+3])<<4 | uint16(row[p+5])&15
			val4 := uint16(row[p+4])<<4 | uint16(row[p+5]>>4)&15

			s1 := uint16(float32(val1) / 4096 * 1024)
			s2 := uint16(float32(val2) / 4096 * 1024)
			s3 := uint16(float32(val3) / 4096 * 1024)
			s4 := uint16(float32(val4) / 4096 * 1024)

			dst[di] = byte(s1 >> 2)
			dst[di+1] = byte(s1&3)<<6 | byte(s2>>4)
			dst[di+2] = byte(s2&0xf)<<4 | byte(s3>>6)
			dst[di+3] = byte(s3&0x3f)<<2 | byte(s4>>8)
			dst[di+4] = byte(s4)
			di += 5

			dst16[si16] = val1
			dst16[si16+1] = val2
			dst16[si16+2] = val3
			dst16[si16+3] = val4
			si16 += 4
		}
	}
}

// unpack16 copies 2-byte samples straight through and mirrors them into
// dst16. Sample values are taken as little endian.
func unpack16(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	w := info.Width
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		copy(dst[y*2*w:], row[:2*w])
		for x := 0; x < w; x++ {
			dst16[y*w+x] = binary.LittleEndian.Uint16(row[2*x:])
		}
	}
}

// copy8 copies 8-bit samples and widens them into dst16.
func copy8(src []byte, info StreamInfo, dst []byte, dst16 []uint16) {
	w := info.Width
	for y := 0; y < info.Height; y++ {
		row := src[y*info.Stride:]
		copy(dst[y*w:], row[:w])
		for x := 0; x < w; x++ {
			dst16[y*w+x] = uint16(row[x])
		}
	}
}

// packSamples16 serializes decoded 16-bit samples (stride16 samples per
// row) into a little-endian 2-byte output stream of exactly Width columns.
func packSamples16(samples []uint16, info StreamInfo, stride16 int, dst []byte) {
	for y := 0; y < info.Height; y++ {
		row := samples[y*stride16:]
		for x := 0; x < info.Width; x++ {
			binary.LittleEndian.PutUint16(dst[(y*info.Width+x)*2:], row[x])
		}
	}
}
