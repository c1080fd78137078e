package raw

import (
	"errors"
	"fmt"
)

// Format identifies a sensor pixel format as delivered by the capture
// stream.
type Format string

const (
	// 8-bit Bayer

	FormatSGRBG8 Format = "GRBG8"

	// 10-bit Bayer, CSI-2 packed (4 pixels in 5 bytes)

	FormatSRGGB10P Format = "RGGB10P"
	FormatSGRBG10P Format = "GRBG10P"
	FormatSBGGR10P Format = "BGGR10P"
	FormatSGBRG10P Format = "GBRG10P"

	// 10-bit Bayer, unpacked (2 bytes per pixel, 10 significant bits)

	FormatSRGGB10 Format = "RGGB10"
	FormatSGRBG10 Format = "GRBG10"
	FormatSBGGR10 Format = "BGGR10"
	FormatSGBRG10 Format = "GBRG10"

	// 12-bit Bayer, CSI-2 packed (2 pixels in 3 bytes)

	FormatSRGGB12P Format = "RGGB12P"
	FormatSGRBG12P Format = "GRBG12P"
	FormatSBGGR12P Format = "BGGR12P"
	FormatSGBRG12P Format = "GBRG12P"

	// 12-bit Bayer, unpacked

	FormatSRGGB12 Format = "RGGB12"
	FormatSGRBG12 Format = "GRBG12"
	FormatSBGGR12 Format = "BGGR12"
	FormatSGBRG12 Format = "GBRG12"

	// 16-bit Bayer, unpacked

	FormatSRGGB16 Format = "RGGB16"
	FormatSGRBG16 Format = "GRBG16"
	FormatSBGGR16 Format = "BGGR16"
	FormatSGBRG16 Format = "GBRG16"

	// Mono variants reported by some sensors; stored as BGGR.

	FormatR10P Format = "R10P"
	FormatR10  Format = "R10"
	FormatR12  Format = "R12"

	// Block-compressed 16-bit Bayer (fixed 2:1 scheme, 8 pixels in two
	// 32-bit words).

	FormatRGGB16C Format = "RGGB16C"
	FormatGRBG16C Format = "GRBG16C"
	FormatGBRG16C Format = "GBRG16C"
	FormatBGGR16C Format = "BGGR16C"
)

// CFAPattern maps each cell of the 2x2 Bayer repeat block, row major, to a
// colour plane index: 0=R, 1=G, 2=B.
type CFAPattern [4]byte

var (
	CFARGGB = CFAPattern{0, 1, 1, 2}
	CFAGRBG = CFAPattern{1, 0, 2, 1}
	CFABGGR = CFAPattern{2, 1, 1, 0}
	CFAGBRG = CFAPattern{1, 2, 0, 1}
	CFAMono = CFAPattern{0, 0, 0, 0}
)

// BayerFormat describes the memory layout of one pixel format. The table
// below is static; descriptors are never mutated after init.
type BayerFormat struct {
	Name       string
	Bits       int
	Order      CFAPattern
	Packed     bool
	Compressed bool
}

var bayerFormats = map[Format]BayerFormat{
	FormatSGRBG8: {"GRBG-8", 8, CFAGRBG, false, false},

	FormatSRGGB10P: {"RGGB-10", 10, CFARGGB, true, false},
	FormatSGRBG10P: {"GRBG-10", 10, CFAGRBG, true, false},
	FormatSBGGR10P: {"BGGR-10", 10, CFABGGR, true, false},
	FormatSGBRG10P: {"GBRG-10", 10, CFAGBRG, true, false},

	FormatSRGGB10: {"RGGB-10", 10, CFARGGB, false, false},
	FormatSGRBG10: {"GRBG-10", 10, CFAGRBG, false, false},
	FormatSBGGR10: {"BGGR-10", 10, CFABGGR, false, false},
	FormatSGBRG10: {"GBRG-10", 10, CFAGBRG, false, false},

	FormatSRGGB12P: {"RGGB-12", 12, CFARGGB, true, false},
	FormatSGRBG12P: {"GRBG-12", 12, CFAGRBG, true, false},
	FormatSBGGR12P: {"BGGR-12", 12, CFABGGR, true, false},
	FormatSGBRG12P: {"GBRG-12", 12, CFAGBRG, true, false},

	FormatSRGGB12: {"RGGB-12", 12, CFARGGB, false, false},
	FormatSGRBG12: {"GRBG-12", 12, CFAGRBG, false, false},
	FormatSBGGR12: {"BGGR-12", 12, CFABGGR, false, false},
	FormatSGBRG12: {"GBRG-12", 12, CFAGBRG, false, false},

	FormatSRGGB16: {"RGGB-16", 16, CFARGGB, false, false},
	FormatSGRBG16: {"GRBG-16", 16, CFAGRBG, false, false},
	FormatSBGGR16: {"BGGR-16", 16, CFABGGR, false, false},
	FormatSGBRG16: {"GBRG-16", 16, CFAGBRG, false, false},

	FormatR10P: {"BGGR-10", 10, CFABGGR, true, false},
	FormatR10:  {"BGGR-10", 10, CFABGGR, false, false},
	FormatR12:  {"BGGR-12", 12, CFABGGR, false, false},

	FormatRGGB16C: {"RGGB-16-COMP", 16, CFARGGB, false, true},
	FormatGRBG16C: {"GRBG-16-COMP", 16, CFAGRBG, false, true},
	FormatGBRG16C: {"GBRG-16-COMP", 16, CFAGBRG, false, true},
	FormatBGGR16C: {"BGGR-16-COMP", 16, CFABGGR, false, true},
}

// ErrUnsupportedFormat is returned when a pixel format has no descriptor
// in the static table.
var ErrUnsupportedFormat = errors.New("unsupported Bayer format")

// Lookup resolves a pixel format identifier to its layout descriptor.
func Lookup(f Format) (BayerFormat, error) {
	bf, ok := bayerFormats[f]
	if !ok {
		return BayerFormat{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return bf, nil
}

// MinStride returns the smallest legal stride, in bytes, for a row of the
// given width in this format.
func (bf BayerFormat) MinStride(width int) int {
	switch {
	case bf.Compressed:
		// Two 32-bit words per 8 pixels.
		return ((width + 7) / 8) * 8
	case bf.Packed:
		switch bf.Bits {
		case 10:
			return (width / 4) * 5
		default: // 12
			return (width / 2) * 3
		}
	case bf.Bits == 8:
		return width
	default:
		return 2 * width
	}
}
