// Package dng encodes one raw Bayer frame and its control metadata into a
// DNG container: a reduced greyscale thumbnail as IFD0, the full-resolution
// CFA image as a sub-IFD, and an EXIF directory reached by pointer.
package dng

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/wassoc/shadowgraph/internal/logging"
	"github.com/wassoc/shadowgraph/pkg/camera"
	"github.com/wassoc/shadowgraph/pkg/raw"
	"github.com/wassoc/shadowgraph/pkg/tiffio"
)

const (
	makeString = "Wassoc"
	software   = "shadowgraph-raw"

	// CalibrationIlluminant1 value for D65.
	illuminantD65 = 21

	// Thumbnail edge lengths are the frame's shifted right by this many
	// bits. At shift 4 a 4056x3040 frame yields a ~144KB thumbnail, small
	// enough to keep per-image overhead negligible while still being
	// recognizable.
	defaultThumbnailShift = 4
)

var logger = logging.NewLogger("dng")

// sRGB D65 reference primaries (Bruce Lindbloom).
var rgb2xyz = Matrix{
	0.4124564, 0.3575761, 0.1804375,
	0.2126729, 0.7151522, 0.0721750,
	0.0193339, 0.1191920, 0.9503041,
}

// Fallback colour correction matrix for pipelines that publish none. It is
// merely plausible; real captures are expected to carry their own.
var defaultCCM = Matrix{
	1.90255, -0.77478, -0.12777,
	-0.31338, 1.88197, -0.56858,
	-0.06001, -0.61785, 1.67786,
}

// Options control depth conversion, cropping and thumbnail generation.
type Options struct {
	// Force8Bit and Force10Bit rescale packed 12-bit frames down to the
	// requested depth. Force8Bit wins if both are set.
	Force8Bit  bool
	Force10Bit bool

	// Region of interest as fractions of the full frame in [0,1].
	// Zero width or height means the full remaining extent.
	ROIX      float64
	ROIY      float64
	ROIWidth  float64
	ROIHeight float64

	// Monochrome suppresses the CFA mosaic description, reporting a flat
	// 1x1 pattern instead.
	Monochrome bool

	// ThumbnailShift is the right-shift applied to the frame dimensions
	// to size the thumbnail. Zero selects the default.
	ThumbnailShift int
}

func (o Options) depth() raw.Depth {
	switch {
	case o.Force8Bit:
		return raw.Depth8
	case o.Force10Bit:
		return raw.Depth10
	}
	return raw.DepthNative
}

func (o Options) thumbShift() int {
	if o.ThumbnailShift <= 0 {
		return defaultThumbnailShift
	}
	return o.ThumbnailShift
}

// WriteError reports a container serialization failure and the stage it
// occurred in. Any WriteError aborts the whole frame.
type WriteError struct {
	Stage string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("dng: %s failed: %v", e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeErr(stage string, err error) error {
	return &WriteError{Stage: stage, Err: err}
}

// calibration holds the per-frame radiometric values derived from the
// control metadata, with defaults substituted for anything missing.
type calibration struct {
	blackLevels  [4]float64 // physical CFA cell order
	exposureTime float64    // seconds
	iso          uint16
	neutral      [3]float64
	camXYZ       Matrix
}

// computeCalibration fishes the radiometric controls out of the metadata.
// Every control is optional; a missing one logs a warning and falls back
// to a documented default. outBits is the depth actually produced by the
// unpacker, which differs from the native depth only when a rescale
// happened; the fixed overrides apply only then.
func computeCalibration(meta *camera.Metadata, bf raw.BayerFormat, outBits int) calibration {
	var c calibration

	black := 4096 * float64(int(1)<<bf.Bits) / 65536.0
	if outBits != bf.Bits {
		switch outBits {
		case 8:
			// 16 is the computed value; the extra 12 renders better.
			black = 16 + 12
		case 10:
			// 64 is the computed value; the extra 4 renders better.
			black = 64 + 4
		}
	}
	c.blackLevels = [4]float64{black, black, black, black}
	if bl, ok := meta.Floats(camera.KeySensorBlackLevels); ok && len(bl) == 4 {
		// The control is ordered R, Gr, Gb, B; re-order it into the
		// physical cell order of this frame's CFA pattern.
		for i := 0; i < 4; i++ {
			j := int(bf.Order[i])
			switch j {
			case 0:
			case 2:
				j = 3
			default:
				j = 1
				if bf.Order[i^1] != 0 {
					j = 2
				}
			}
			c.blackLevels[j] = bl[i] * float64(int(1)<<bf.Bits) / 65536.0
		}
	} else {
		logger.Warnf("no black level found, using default %v", black)
	}

	c.exposureTime = 10000
	if exp, ok := meta.Float(camera.KeyExposureTime); ok {
		c.exposureTime = exp
	} else {
		logger.Warnf("defaulting to exposure time of %vus", c.exposureTime)
	}
	c.exposureTime /= 1e6

	c.iso = 100
	if ag, ok := meta.Float(camera.KeyAnalogueGain); ok {
		c.iso = uint16(ag * 100.0)
	} else {
		logger.Warnf("defaulting to ISO %d", c.iso)
	}

	c.neutral = [3]float64{1, 1, 1}
	wbGains := Identity()
	if cg, ok := meta.Floats(camera.KeyColourGains); ok && len(cg) == 2 {
		c.neutral[0] = 1.0 / cg[0]
		c.neutral[2] = 1.0 / cg[1]
		wbGains = NewDiagonal(cg[0], 1, cg[1])
	}

	ccm := defaultCCM
	if m, ok := meta.Floats(camera.KeyColourCorrectionMatrix); ok && len(m) == 9 {
		copy(ccm[:], m)
	} else {
		logger.Warnf("no colour correction matrix found, using default")
	}

	c.camXYZ = rgb2xyz.Mul(ccm).Mul(wbGains).Inverse()

	logger.Debugf("black levels %v, exposure %vus, ISO %d, neutral %v",
		c.blackLevels, c.exposureTime*1e6, c.iso, c.neutral)
	return c
}

// region is the persisted sub-rectangle of the frame, in pixels.
type region struct {
	startX, startY int
	width, height  int
}

// clampROI converts the fractional region request into pixels, aligns the
// X origin to the packing group so byte-packed boundaries stay intact, and
// clamps the extent to the frame.
func clampROI(opts Options, frameW, frameH, outBits int) region {
	r := region{
		startX: int(float64(frameW) * opts.ROIX),
		startY: int(float64(frameH) * opts.ROIY),
		width:  int(float64(frameW) * opts.ROIWidth),
		height: int(float64(frameH) * opts.ROIHeight),
	}

	switch outBits {
	case 10:
		// 4 pixels per 5-byte group.
		r.startX -= r.startX % 4
	case 12:
		// 2 pixels per 3-byte group.
		r.startX -= r.startX % 2
	}

	if r.width == 0 {
		r.width = frameW - r.startX
	}
	if r.height == 0 {
		r.height = frameH
	}
	if r.startX+r.width > frameW {
		r.width = frameW - r.startX
	}
	if r.startY+r.height > frameH {
		r.height = frameH - r.startY
	}
	return r
}

// Encode converts one raw frame and writes a complete DNG stream to w.
// Missing metadata degrades to defaults; unpacking and serialization
// failures abort the frame.
func Encode(w io.WriteSeeker, src []byte, info raw.StreamInfo, meta *camera.Metadata, model string, opts Options) error {
	bf, err := raw.Lookup(info.PixelFormat)
	if err != nil {
		return err
	}
	logger.Debugf("bayer format is %s", bf.Name)

	buf, err := raw.Unpack(src, info, opts.depth())
	if err != nil {
		return err
	}

	cal := computeCalibration(meta, bf, buf.BitsPerSample)
	white := uint32(int(1)<<bf.Bits - 1)
	uniqueModel := makeString + " " + model
	shift := opts.thumbShift()

	tw, err := tiffio.NewWriter(w)
	if err != nil {
		return writeErr("header", err)
	}

	// IFD0 is the thumbnail, written first so software that reads only
	// the first directory still sees an image. The identity and
	// calibration tags live here because they belong to IFD0.
	tw.SetLong(tiffio.TagNewSubfileType, tiffio.SubfileTypeReduced)
	tw.SetLong(tiffio.TagImageWidth, uint32(info.Width>>shift))
	tw.SetLong(tiffio.TagImageLength, uint32(info.Height>>shift))
	tw.SetShort(tiffio.TagBitsPerSample, 8)
	tw.SetShort(tiffio.TagCompression, tiffio.CompressionNone)
	tw.SetShort(tiffio.TagPhotometric, tiffio.PhotometricRGB)
	tw.SetASCII(tiffio.TagMake, makeString)
	tw.SetASCII(tiffio.TagModel, model)
	tw.SetUndefined(tiffio.TagDNGVersion, 1, 1, 0, 0)
	tw.SetUndefined(tiffio.TagDNGBackwardVersion, 1, 0, 0, 0)
	tw.SetASCII(tiffio.TagUniqueCameraModel, uniqueModel)
	tw.SetShort(tiffio.TagOrientation, tiffio.OrientationTopLeft)
	tw.SetShort(tiffio.TagSamplesPerPixel, 3)
	tw.SetShort(tiffio.TagPlanarConfiguration, tiffio.PlanarConfigContig)
	tw.SetASCII(tiffio.TagSoftware, software)
	tw.SetSRational(tiffio.TagColorMatrix1, cal.camXYZ[:]...)
	tw.SetRational(tiffio.TagAsShotNeutral, cal.neutral[:]...)
	tw.SetShort(tiffio.TagCalibrationIlluminant1, illuminantD65)
	// Pointer placeholders, patched once the targets are written.
	tw.SetLong(tiffio.TagSubIFDs, 0)
	tw.SetLong(tiffio.TagExifIFD, 0)

	if err := writeThumbnail(tw, buf, info, bf.Bits, shift); err != nil {
		return err
	}
	if err := tw.WriteDirectory(); err != nil {
		return writeErr("thumbnail", err)
	}

	// The main image, which tends to show up in viewers as "sub-image 1".
	roi := clampROI(opts, info.Width, info.Height, buf.BitsPerSample)

	tw.SetLong(tiffio.TagNewSubfileType, tiffio.SubfileTypeFull)
	tw.SetLong(tiffio.TagImageWidth, uint32(roi.width))
	tw.SetLong(tiffio.TagImageLength, uint32(roi.height))
	tw.SetShort(tiffio.TagBitsPerSample, uint16(buf.BitsPerSample))
	tw.SetShort(tiffio.TagCompression, tiffio.CompressionNone)
	tw.SetShort(tiffio.TagPhotometric, tiffio.PhotometricCFA)
	tw.SetShort(tiffio.TagSamplesPerPixel, 1)
	tw.SetShort(tiffio.TagPlanarConfiguration, tiffio.PlanarConfigContig)
	if opts.Monochrome {
		tw.SetShort(tiffio.TagCFARepeatPatternDim, 1, 1)
		tw.SetByte(tiffio.TagCFAPattern, 0)
	} else {
		tw.SetShort(tiffio.TagCFARepeatPatternDim, 2, 2)
		tw.SetByte(tiffio.TagCFAPattern, bf.Order[:]...)
	}
	tw.SetLong(tiffio.TagWhiteLevel, white)
	tw.SetShort(tiffio.TagBlackLevelRepeatDim, 2, 2)
	tw.SetRational(tiffio.TagBlackLevel, cal.blackLevels[:]...)

	rowBytes := buf.RowBytes(info.Width)
	roiOffset := int(float64(roi.startX) * buf.BytesPerSample)
	roiBytes := int(float64(roi.width) * buf.BytesPerSample)
	for y, row := roi.startY, 0; y < roi.startY+roi.height; y, row = y+1, row+1 {
		start := y*rowBytes + roiOffset
		if err := tw.WriteScanline(buf.Bytes[start:start+roiBytes], row); err != nil {
			return writeErr("raw image", err)
		}
	}

	// The directory offset only becomes valid once checkpointed.
	if err := tw.CheckpointDirectory(); err != nil {
		return writeErr("raw image", err)
	}
	subIFD := tw.CurrentDirOffset()
	if err := tw.WriteDirectory(); err != nil {
		return writeErr("raw image", err)
	}

	// EXIF tags are only valid inside their own directory, so one is
	// created just for them and reached by pointer rather than the chain.
	tw.CreateEXIFDirectory()
	tw.SetASCII(tiffio.TagDateTimeOriginal, time.Now().Format("2006:01:02 15:04:05"))
	tw.SetShort(tiffio.TagISOSpeedRatings, cal.iso)
	tw.SetRational(tiffio.TagExposureTime, cal.exposureTime)
	if lp, ok := meta.Float(camera.KeyLensPosition); ok {
		dist := math.Inf(1)
		if lp > 0 {
			dist = 1.0 / lp
		}
		tw.SetRational(tiffio.TagSubjectDistance, dist)
	}
	if lamp, ok := meta.String(camera.KeyLampColour); ok {
		// EXIF UserComment carries an 8-byte character code prefix.
		tw.SetUndefined(tiffio.TagUserComment, append([]byte("ASCII\x00\x00\x00"), lamp...)...)
	}
	if serial, ok := meta.String(camera.KeySerialNumber); ok {
		tw.SetASCII(tiffio.TagBodySerialNumber, serial)
	}
	if err := tw.CheckpointDirectory(); err != nil {
		return writeErr("exif", err)
	}
	exifIFD := tw.CurrentDirOffset()
	if err := tw.WriteDirectory(); err != nil {
		return writeErr("exif", err)
	}

	// Go back to IFD0 and fill in the two pointers that are only now
	// known.
	if err := tw.SetDirectory(0); err != nil {
		return writeErr("finalize", err)
	}
	tw.SetLong(tiffio.TagSubIFDs, subIFD)
	tw.SetLong(tiffio.TagExifIFD, exifIFD)
	if err := tw.WriteDirectory(); err != nil {
		return writeErr("finalize", err)
	}

	// The EXIF directory also appears in the next-IFD chain, where some
	// tools flag it as a phantom IFD2. Unlinking it from the chain leaves
	// it reachable only through the ExifIFD pointer, which is where it
	// belongs.
	if err := tw.UnlinkDirectory(2); err != nil {
		return writeErr("finalize", err)
	}
	if err := tw.Close(); err != nil {
		return writeErr("finalize", err)
	}
	return nil
}

// EncodeBytes encodes to memory.
func EncodeBytes(src []byte, info raw.StreamInfo, meta *camera.Metadata, model string, opts Options) ([]byte, error) {
	buf := tiffio.NewBuffer()
	if err := Encode(buf, src, info, meta, model, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeFile encodes to a file, removing the partial file on failure.
func EncodeFile(path string, src []byte, info raw.StreamInfo, meta *camera.Metadata, model string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return writeErr("open", err)
	}
	if err := Encode(f, src, info, meta, model, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return writeErr("close", err)
	}
	return nil
}
