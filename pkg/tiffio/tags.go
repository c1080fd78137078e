package tiffio

// TIFF field types.
const (
	TypeByte      uint16 = 1
	TypeASCII     uint16 = 2
	TypeShort     uint16 = 3
	TypeLong      uint16 = 4
	TypeRational  uint16 = 5
	TypeUndefined uint16 = 7
	TypeSRational uint16 = 10
	TypeFloat     uint16 = 11
	TypeDouble    uint16 = 12
)

// Baseline TIFF tags.
const (
	TagNewSubfileType      uint16 = 254
	TagImageWidth          uint16 = 256
	TagImageLength         uint16 = 257
	TagBitsPerSample       uint16 = 258
	TagCompression         uint16 = 259
	TagPhotometric         uint16 = 262
	TagMake                uint16 = 271
	TagModel               uint16 = 272
	TagStripOffsets        uint16 = 273
	TagOrientation         uint16 = 274
	TagSamplesPerPixel     uint16 = 277
	TagRowsPerStrip        uint16 = 278
	TagStripByteCounts     uint16 = 279
	TagPlanarConfiguration uint16 = 284
	TagSoftware            uint16 = 305
	TagDateTime            uint16 = 306
	TagSubIFDs             uint16 = 330
	TagExifIFD             uint16 = 34665
)

// CFA tags (TIFF/EP).
const (
	TagCFARepeatPatternDim uint16 = 33421
	TagCFAPattern          uint16 = 33422
)

// DNG tags.
const (
	TagDNGVersion             uint16 = 50706
	TagDNGBackwardVersion     uint16 = 50707
	TagUniqueCameraModel      uint16 = 50708
	TagBlackLevelRepeatDim    uint16 = 50713
	TagBlackLevel             uint16 = 50714
	TagWhiteLevel             uint16 = 50717
	TagColorMatrix1           uint16 = 50721
	TagAsShotNeutral          uint16 = 50728
	TagCalibrationIlluminant1 uint16 = 50778
)

// EXIF tags, valid inside an EXIF directory.
const (
	TagExposureTime     uint16 = 33434
	TagISOSpeedRatings  uint16 = 34855
	TagDateTimeOriginal uint16 = 36867
	TagSubjectDistance  uint16 = 37382
	TagUserComment      uint16 = 37510
	TagBodySerialNumber uint16 = 42033
)

// Common field values. The SHORT-typed ones match the setter they are
// passed to.
const (
	CompressionNone       uint16 = 1
	PhotometricMinIsBlack uint16 = 1
	PhotometricRGB        uint16 = 2
	PhotometricCFA        uint16 = 32803
	OrientationTopLeft    uint16 = 1
	PlanarConfigContig    uint16 = 1
	SubfileTypeFull       uint32 = 0
	SubfileTypeReduced    uint32 = 1
)
