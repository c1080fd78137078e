//go:build linux

// Package camera captures raw Bayer frames from a V4L2 device and hands
// them to the encoder together with their stream geometry and metadata.
package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/blackjack/webcam"

	"github.com/wassoc/shadowgraph/internal/logging"
	"github.com/wassoc/shadowgraph/pkg/raw"
)

const maxEmptyFrameCount = 5

var (
	errReadTimeout = errors.New("frame read timeout")
	errEmptyFrame  = errors.New("empty frame")
)

var logger = logging.NewLogger("camera")

func fourcc(a, b, c, d byte) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// V4L2 Bayer fourcc codes, from videodev2.h.
var formats = map[webcam.PixelFormat]raw.Format{
	fourcc('G', 'R', 'B', 'G'): raw.FormatSGRBG8,

	fourcc('p', 'R', 'A', 'A'): raw.FormatSRGGB10P,
	fourcc('p', 'g', 'A', 'A'): raw.FormatSGRBG10P,
	fourcc('p', 'G', 'A', 'A'): raw.FormatSGBRG10P,
	fourcc('p', 'B', 'A', 'A'): raw.FormatSBGGR10P,

	fourcc('R', 'G', '1', '0'): raw.FormatSRGGB10,
	fourcc('B', 'A', '1', '0'): raw.FormatSGRBG10,
	fourcc('G', 'B', '1', '0'): raw.FormatSGBRG10,
	fourcc('B', 'G', '1', '0'): raw.FormatSBGGR10,

	fourcc('p', 'R', 'C', 'C'): raw.FormatSRGGB12P,
	fourcc('p', 'g', 'C', 'C'): raw.FormatSGRBG12P,
	fourcc('p', 'G', 'C', 'C'): raw.FormatSGBRG12P,
	fourcc('p', 'B', 'C', 'C'): raw.FormatSBGGR12P,

	fourcc('R', 'G', '1', '2'): raw.FormatSRGGB12,
	fourcc('B', 'A', '1', '2'): raw.FormatSGRBG12,
	fourcc('G', 'B', '1', '2'): raw.FormatSGBRG12,
	fourcc('B', 'G', '1', '2'): raw.FormatSBGGR12,

	fourcc('R', 'G', '1', '6'): raw.FormatSRGGB16,
	fourcc('G', 'R', '1', '6'): raw.FormatSGRBG16,
	fourcc('G', 'B', '1', '6'): raw.FormatSGBRG16,
	fourcc('B', 'Y', 'R', '2'): raw.FormatSBGGR16,
}

var reversedFormats = func() map[raw.Format]webcam.PixelFormat {
	m := make(map[raw.Format]webcam.PixelFormat, len(formats))
	for k, v := range formats {
		m[v] = k
	}
	return m
}()

// Camera reads raw frames from one V4L2 device.
type Camera struct {
	path    string
	cam     *webcam.Webcam
	info    raw.StreamInfo
	started bool
}

// Open opens the device node but does not start streaming.
func Open(path string) (*Camera, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Camera{path: path, cam: cam}, nil
}

// SetFormat negotiates a raw Bayer format and geometry with the driver and
// returns the resulting stream description. The driver may adjust the
// geometry; the returned StreamInfo is authoritative.
func (c *Camera) SetFormat(f raw.Format, width, height int) (raw.StreamInfo, error) {
	bf, err := raw.Lookup(f)
	if err != nil {
		return raw.StreamInfo{}, err
	}
	pf, ok := reversedFormats[f]
	if !ok {
		return raw.StreamInfo{}, fmt.Errorf("%w: %s has no V4L2 mapping", raw.ErrUnsupportedFormat, f)
	}
	_, w, h, err := c.cam.SetImageFormat(pf, uint32(width), uint32(height))
	if err != nil {
		return raw.StreamInfo{}, fmt.Errorf("set format %s %dx%d: %w", f, width, height, err)
	}
	c.info = raw.StreamInfo{
		Width:       int(w),
		Height:      int(h),
		Stride:      bf.MinStride(int(w)),
		PixelFormat: f,
	}
	logger.Infof("negotiated %s %dx%d stride %d", bf.Name, c.info.Width, c.info.Height, c.info.Stride)
	return c.info, nil
}

// StreamInfo returns the negotiated stream description.
func (c *Camera) StreamInfo() raw.StreamInfo {
	return c.info
}

// Start begins streaming.
func (c *Camera) Start() error {
	if c.started {
		return nil
	}
	if err := c.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	c.started = true
	return nil
}

// ReadFrame blocks for the next frame, tolerating a bounded run of empty
// reads the way the V4L2 event loop does. The returned slice aliases the
// driver buffer and is only valid until the next ReadFrame call.
func (c *Camera) ReadFrame(timeout time.Duration) ([]byte, error) {
	for empty := 0; ; {
		err := c.cam.WaitForFrame(uint32(timeout / time.Second))
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			return nil, errReadTimeout
		default:
			return nil, err
		}
		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, err
		}
		if len(frame) > 0 {
			return frame, nil
		}
		empty++
		if empty >= maxEmptyFrameCount {
			return nil, errEmptyFrame
		}
	}
}

// Metadata assembles the per-frame control dictionary. V4L2 exposes far
// less than the full camera pipeline; controls that the driver does not
// publish are simply absent and the encoder falls back to its defaults.
func (c *Camera) Metadata() *Metadata {
	return NewMetadata()
}

// Close stops streaming and releases the device.
func (c *Camera) Close() error {
	if c.cam == nil {
		return nil
	}
	if c.started {
		c.cam.StopStreaming()
		c.started = false
	}
	return c.cam.Close()
}
