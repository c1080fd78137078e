// Package config loads the capture configuration from a YAML file and maps
// it onto the camera and encoder options.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wassoc/shadowgraph/pkg/dng"
	"github.com/wassoc/shadowgraph/pkg/raw"
)

// ROIConfig is the persisted sub-rectangle, each value a fraction of the
// full frame in [0,1]. Zero width or height means the full remaining
// extent.
type ROIConfig struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// EncodeConfig selects the container options.
type EncodeConfig struct {
	Force8Bit      bool      `yaml:"force_8_bit"`
	Force10Bit     bool      `yaml:"force_10_bit"`
	ROI            ROIConfig `yaml:"roi"`
	Monochrome     bool      `yaml:"monochrome"`
	ThumbnailShift int       `yaml:"thumbnail_shift"`
}

// Config is the top-level structure of the capture configuration file.
type Config struct {
	Device    string       `yaml:"device"`
	Width     int          `yaml:"width"`
	Height    int          `yaml:"height"`
	Format    string       `yaml:"format"`
	Model     string       `yaml:"model"`
	OutputDir string       `yaml:"output_dir"`
	Workers   int          `yaml:"workers"`
	Frames    int          `yaml:"frames"`
	Encode    EncodeConfig `yaml:"encode"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device:    "/dev/video0",
		Width:     4056,
		Height:    3040,
		Format:    string(raw.FormatSBGGR12P),
		Model:     "shadowgraph-v3",
		OutputDir: ".",
	}
}

// Load reads and parses a configuration file, layering it over the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot act on.
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("config: device must be set")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("config: geometry %dx%d is invalid", c.Width, c.Height)
	}
	if _, err := raw.Lookup(raw.Format(c.Format)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, f := range []float64{c.Encode.ROI.X, c.Encode.ROI.Y, c.Encode.ROI.Width, c.Encode.ROI.Height} {
		if f < 0 || f > 1 {
			return fmt.Errorf("config: roi fraction %v outside [0,1]", f)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	return nil
}

// PixelFormat returns the configured raw format.
func (c Config) PixelFormat() raw.Format {
	return raw.Format(c.Format)
}

// Options maps the encode section onto the container options.
func (c Config) Options() dng.Options {
	return dng.Options{
		Force8Bit:      c.Encode.Force8Bit,
		Force10Bit:     c.Encode.Force10Bit,
		ROIX:           c.Encode.ROI.X,
		ROIY:           c.Encode.ROI.Y,
		ROIWidth:       c.Encode.ROI.Width,
		ROIHeight:      c.Encode.ROI.Height,
		Monochrome:     c.Encode.Monochrome,
		ThumbnailShift: c.Encode.ThumbnailShift,
	}
}
