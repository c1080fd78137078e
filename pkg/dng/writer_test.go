package dng

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wassoc/shadowgraph/pkg/camera"
	"github.com/wassoc/shadowgraph/pkg/raw"
	"github.com/wassoc/shadowgraph/pkg/tiffio"
)

// Minimal TIFF reader, enough to verify the directory layout and the tag
// values the container promises.

type ifdEntry struct {
	typ   uint16
	count uint32
	value []byte
}

type ifd struct {
	offset  uint32
	entries map[uint16]ifdEntry
	next    uint32
}

func entrySize(typ uint16) int {
	switch typ {
	case tiffio.TypeShort:
		return 2
	case tiffio.TypeLong, tiffio.TypeFloat:
		return 4
	case tiffio.TypeRational, tiffio.TypeSRational, tiffio.TypeDouble:
		return 8
	}
	return 1
}

func readIFD(t *testing.T, data []byte, off uint32) ifd {
	t.Helper()
	n := binary.LittleEndian.Uint16(data[off:])
	d := ifd{offset: off, entries: make(map[uint16]ifdEntry)}
	for i := 0; i < int(n); i++ {
		e := data[off+2+uint32(i)*12:]
		tag := binary.LittleEndian.Uint16(e)
		typ := binary.LittleEndian.Uint16(e[2:])
		count := binary.LittleEndian.Uint32(e[4:])
		size := entrySize(typ) * int(count)
		value := e[8 : 8+4]
		if size > 4 {
			voff := binary.LittleEndian.Uint32(e[8:])
			value = data[voff : voff+uint32(size)]
		}
		d.entries[tag] = ifdEntry{typ: typ, count: count, value: value}
	}
	d.next = binary.LittleEndian.Uint32(data[off+2+uint32(n)*12:])
	return d
}

func readChain(t *testing.T, data []byte) []ifd {
	t.Helper()
	require.Equal(t, byte('I'), data[0])
	var dirs []ifd
	for off := binary.LittleEndian.Uint32(data[4:]); off != 0; {
		d := readIFD(t, data, off)
		dirs = append(dirs, d)
		off = d.next
	}
	return dirs
}

func (d ifd) long(t *testing.T, tag uint16) uint32 {
	t.Helper()
	e, ok := d.entries[tag]
	require.True(t, ok, "missing tag %d", tag)
	return binary.LittleEndian.Uint32(e.value)
}

func (d ifd) short(t *testing.T, tag uint16) uint16 {
	t.Helper()
	e, ok := d.entries[tag]
	require.True(t, ok, "missing tag %d", tag)
	return binary.LittleEndian.Uint16(e.value)
}

func (d ifd) rationals(t *testing.T, tag uint16) []float64 {
	t.Helper()
	e, ok := d.entries[tag]
	require.True(t, ok, "missing tag %d", tag)
	vals := make([]float64, e.count)
	for i := range vals {
		num := binary.LittleEndian.Uint32(e.value[8*i:])
		den := binary.LittleEndian.Uint32(e.value[8*i+4:])
		if e.typ == tiffio.TypeSRational {
			vals[i] = float64(int32(num)) / float64(int32(den))
		} else {
			vals[i] = float64(num) / float64(den)
		}
	}
	return vals
}

func packed12Frame(w, h int) ([]byte, raw.StreamInfo) {
	info := raw.StreamInfo{
		Width:       w,
		Height:      h,
		Stride:      w * 3 / 2,
		PixelFormat: raw.FormatSBGGR12P,
	}
	return make([]byte, info.Stride*info.Height), info
}

func TestBlackLevelReordering(t *testing.T) {
	// The control is ordered R, Gr, Gb, B with 16-bit scaling; at 12 bits
	// each value divides by 16 on its way into the container.
	control := []float64{1000, 2000, 3000, 4000}
	cases := []struct {
		format raw.Format
		want   [4]float64 // physical cell order
	}{
		{raw.FormatSRGGB12P, [4]float64{62.5, 125, 187.5, 250}},
		{raw.FormatSBGGR12P, [4]float64{250, 187.5, 125, 62.5}},
		{raw.FormatSGRBG12P, [4]float64{125, 62.5, 250, 187.5}},
		{raw.FormatSGBRG12P, [4]float64{187.5, 250, 62.5, 125}},
	}
	for _, c := range cases {
		bf, err := raw.Lookup(c.format)
		require.NoError(t, err)

		meta := camera.NewMetadata()
		meta.Set(camera.KeySensorBlackLevels, control)

		cal := computeCalibration(meta, bf, bf.Bits)
		assert.Equal(t, c.want, cal.blackLevels, "format %s", c.format)
	}
}

func TestDefaultBlackLevelFollowsProducedDepth(t *testing.T) {
	cases := []struct {
		format  raw.Format
		outBits int
		want    float64
	}{
		{raw.FormatSBGGR12P, 12, 256},
		{raw.FormatSBGGR12P, 8, 28},  // rescaled
		{raw.FormatSBGGR12P, 10, 68}, // rescaled
		{raw.FormatSBGGR10P, 10, 64},
		{raw.FormatSGRBG8, 8, 16},
		{raw.FormatSRGGB16, 16, 4096},
	}
	for _, c := range cases {
		bf, err := raw.Lookup(c.format)
		require.NoError(t, err)

		cal := computeCalibration(nil, bf, c.outBits)
		assert.Equal(t, [4]float64{c.want, c.want, c.want, c.want}, cal.blackLevels,
			"%s at %d output bits", c.format, c.outBits)
	}
}

func TestForce8BitIgnoredOn10BitKeepsNativeBlack(t *testing.T) {
	// The depth override only rescales packed 12-bit frames; a 10-bit
	// frame keeps both its depth and its computed black level.
	info := raw.StreamInfo{Width: 64, Height: 32, Stride: 80, PixelFormat: raw.FormatSBGGR10P}
	src := make([]byte, info.Stride*info.Height)

	data, err := EncodeBytes(src, info, nil, "shadowgraph-v3", Options{Force8Bit: true})
	require.NoError(t, err)

	main := readChain(t, data)[1]
	assert.Equal(t, uint16(10), main.short(t, tiffio.TagBitsPerSample))
	assert.Equal(t, []float64{64, 64, 64, 64}, main.rationals(t, tiffio.TagBlackLevel))
}

func TestROIClamping(t *testing.T) {
	cases := []struct {
		name    string
		opts    Options
		outBits int
		want    region
	}{
		{"full frame by default", Options{}, 12, region{0, 0, 4056, 3040}},
		{"width clamps to frame", Options{ROIX: 0.5, ROIWidth: 0.75}, 16, region{2028, 0, 2028, 3040}},
		{"height clamps to frame", Options{ROIY: 0.5, ROIHeight: 0.9}, 16, region{0, 1520, 4056, 1520}},
		{"start x aligns to 4 at 10 bit", Options{ROIX: 0.25}, 10, region{1012, 0, 3044, 3040}},
		{"start x aligns to 2 at 12 bit", Options{ROIX: 0.1}, 12, region{404, 0, 3652, 3040}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, clampROI(c.opts, 4056, 3040, c.outBits))
		})
	}
}

func TestEncodeDefaults(t *testing.T) {
	// A full-size 12-bit packed BGGR frame with no metadata at all.
	src, info := packed12Frame(4056, 3040)

	data, err := EncodeBytes(src, info, camera.NewMetadata(), "shadowgraph-v3", Options{})
	require.NoError(t, err)

	dirs := readChain(t, data)
	require.Len(t, dirs, 2, "exactly thumbnail and raw directories in the chain")

	thumb := dirs[0]
	assert.Equal(t, tiffio.SubfileTypeReduced, thumb.long(t, tiffio.TagNewSubfileType))
	assert.Equal(t, uint32(4056>>4), thumb.long(t, tiffio.TagImageWidth))
	assert.Equal(t, uint32(3040>>4), thumb.long(t, tiffio.TagImageLength))
	assert.Equal(t, []byte{1, 1, 0, 0}, thumb.entries[tiffio.TagDNGVersion].value)
	assert.Equal(t, uint16(illuminantD65), thumb.short(t, tiffio.TagCalibrationIlluminant1))

	main := dirs[1]
	assert.Equal(t, main.offset, thumb.long(t, tiffio.TagSubIFDs), "SubIFDs points at the raw directory")
	assert.Equal(t, tiffio.SubfileTypeFull, main.long(t, tiffio.TagNewSubfileType))
	assert.Equal(t, uint32(4056), main.long(t, tiffio.TagImageWidth))
	assert.Equal(t, uint32(3040), main.long(t, tiffio.TagImageLength))
	assert.Equal(t, uint16(12), main.short(t, tiffio.TagBitsPerSample))
	assert.Equal(t, uint16(tiffio.PhotometricCFA), main.short(t, tiffio.TagPhotometric))
	assert.Equal(t, []byte{2, 1, 1, 0}, main.entries[tiffio.TagCFAPattern].value, "BGGR plane colors")
	assert.Equal(t, uint32(4095), main.long(t, tiffio.TagWhiteLevel))
	assert.Equal(t, []float64{256, 256, 256, 256}, main.rationals(t, tiffio.TagBlackLevel))
	assert.Equal(t, uint32(4056*3040*3/2), main.long(t, tiffio.TagStripByteCounts))

	// The EXIF directory is off the chain but reachable by pointer, with
	// the documented defaults.
	exif := readIFD(t, data, thumb.long(t, tiffio.TagExifIFD))
	assert.Zero(t, exif.next)
	assert.Equal(t, uint16(100), exif.short(t, tiffio.TagISOSpeedRatings))
	assert.Equal(t, []float64{0.01}, exif.rationals(t, tiffio.TagExposureTime))
}

func TestEncodeForce8Bit(t *testing.T) {
	src, info := packed12Frame(4056, 3040)

	data, err := EncodeBytes(src, info, camera.NewMetadata(), "shadowgraph-v3", Options{Force8Bit: true})
	require.NoError(t, err)

	dirs := readChain(t, data)
	require.Len(t, dirs, 2)

	main := dirs[1]
	assert.Equal(t, uint16(8), main.short(t, tiffio.TagBitsPerSample))
	assert.Equal(t, []float64{28, 28, 28, 28}, main.rationals(t, tiffio.TagBlackLevel))
	assert.Equal(t, uint32(4056*3040), main.long(t, tiffio.TagStripByteCounts), "one byte per pixel")
}

func TestEncodeColourCalibration(t *testing.T) {
	src, info := packed12Frame(64, 32)

	meta := camera.NewMetadata()
	meta.Set(camera.KeyColourGains, []float64{2.0, 1.5})
	meta.Set(camera.KeyColourCorrectionMatrix, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	data, err := EncodeBytes(src, info, meta, "shadowgraph-v3", Options{})
	require.NoError(t, err)

	dirs := readChain(t, data)
	require.Len(t, dirs, 2)

	neutral := dirs[0].rationals(t, tiffio.TagAsShotNeutral)
	require.Len(t, neutral, 3)
	assert.InDelta(t, 0.5, neutral[0], 1e-6)
	assert.InDelta(t, 1.0, neutral[1], 1e-6)
	assert.InDelta(t, 1.0/1.5, neutral[2], 1e-6)

	want := rgb2xyz.Mul(NewDiagonal(2.0, 1, 1.5)).Inverse()
	got := dirs[0].rationals(t, tiffio.TagColorMatrix1)
	require.Len(t, got, 9)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4)
	}
}

func TestEncodeMonochrome(t *testing.T) {
	src, info := packed12Frame(64, 32)

	data, err := EncodeBytes(src, info, nil, "shadowgraph-v3", Options{Monochrome: true})
	require.NoError(t, err)

	main := readChain(t, data)[1]
	dim := main.entries[tiffio.TagCFARepeatPatternDim]
	assert.Equal(t, uint32(2), dim.count)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(dim.value))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(dim.value[2:]))
	cfa := main.entries[tiffio.TagCFAPattern]
	assert.Equal(t, uint32(1), cfa.count)
	assert.Equal(t, byte(0), cfa.value[0])
}

func TestEncodeROI(t *testing.T) {
	src, info := packed12Frame(64, 32)

	data, err := EncodeBytes(src, info, nil, "shadowgraph-v3",
		Options{ROIX: 0.25, ROIY: 0.25, ROIWidth: 0.5, ROIHeight: 0.5})
	require.NoError(t, err)

	main := readChain(t, data)[1]
	assert.Equal(t, uint32(32), main.long(t, tiffio.TagImageWidth))
	assert.Equal(t, uint32(16), main.long(t, tiffio.TagImageLength))
	assert.Equal(t, uint32(32*16*3/2), main.long(t, tiffio.TagStripByteCounts))
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	info := raw.StreamInfo{Width: 16, Height: 16, Stride: 32, PixelFormat: raw.Format("video/x-nope")}
	_, err := EncodeBytes(make([]byte, 32*16), info, nil, "shadowgraph-v3", Options{})
	require.ErrorIs(t, err, raw.ErrUnsupportedFormat)
}

func TestEncodeShortBuffer(t *testing.T) {
	_, info := packed12Frame(64, 32)
	_, err := EncodeBytes(make([]byte, 10), info, nil, "shadowgraph-v3", Options{})
	require.ErrorIs(t, err, raw.ErrShortBuffer)
}

// failAfterSink forwards to an in-memory buffer until a set number of
// writes have succeeded, then fails every write.
type failAfterSink struct {
	*tiffio.Buffer
	writes    int
	failAfter int // -1 never fails
}

func (s *failAfterSink) Write(p []byte) (int, error) {
	if s.failAfter >= 0 && s.writes >= s.failAfter {
		return 0, errors.New("sink failure")
	}
	s.writes++
	return s.Buffer.Write(p)
}

func TestEncodeSurfacesEverySinkFailure(t *testing.T) {
	// Kill the sink at each write the protocol performs in turn,
	// including the in-place pointer patches at the end. Every single
	// failure point must surface as a WriteError, never as success.
	src, info := packed12Frame(64, 32)

	counter := &failAfterSink{Buffer: tiffio.NewBuffer(), failAfter: -1}
	require.NoError(t, Encode(counter, src, info, nil, "shadowgraph-v3", Options{}))
	require.Greater(t, counter.writes, 0)

	for k := 0; k < counter.writes; k++ {
		sink := &failAfterSink{Buffer: tiffio.NewBuffer(), failAfter: k}
		err := Encode(sink, src, info, nil, "shadowgraph-v3", Options{})
		require.Error(t, err, "sink failure at write %d was swallowed", k)

		var we *WriteError
		require.ErrorAs(t, err, &we, "sink failure at write %d", k)
	}
}

func TestWriteErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := writeErr("raw image", inner)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "raw image", we.Stage)
	assert.ErrorIs(t, err, inner)
}
