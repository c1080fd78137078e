package camera

// Control keys published by the capture pipeline alongside each frame.
const (
	// SensorBlackLevels: 4 values ordered R, Gr, Gb, B, scaled to 16 bits.
	KeySensorBlackLevels = "SensorBlackLevels"
	// ExposureTime in microseconds.
	KeyExposureTime = "ExposureTime"
	// AnalogueGain as a multiplier (1.0 == ISO 100).
	KeyAnalogueGain = "AnalogueGain"
	// ColourGains: R and B white balance multipliers.
	KeyColourGains = "ColourGains"
	// ColourCorrectionMatrix: row-major 3x3, camera RGB to reference RGB.
	KeyColourCorrectionMatrix = "ColourCorrectionMatrix"
	// LensPosition in diopters; 0 means focused at infinity.
	KeyLensPosition = "LensPosition"

	// Free-form annotations, consumed only for EXIF enrichment.

	KeyLampColour   = "exif.lamp_colour"
	KeySerialNumber = "exif.serial_number"
)

// Metadata is the per-frame control dictionary handed over by the capture
// pipeline. Lookups are typed and optional; a missing key is an expected
// condition, not an error.
type Metadata struct {
	values map[string]interface{}
}

// NewMetadata returns an empty dictionary.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]interface{})}
}

// Set stores a value under key. Supported value kinds are float64,
// []float64 and string.
func (m *Metadata) Set(key string, value interface{}) {
	m.values[key] = value
}

// Float looks up a scalar control.
func (m *Metadata) Float(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m.values[key].(float64)
	return v, ok
}

// Floats looks up an array control.
func (m *Metadata) Floats(key string) ([]float64, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key].([]float64)
	return v, ok
}

// String looks up an annotation.
func (m *Metadata) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key].(string)
	return v, ok
}
