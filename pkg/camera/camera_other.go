//go:build !linux

// Package camera captures raw Bayer frames from a V4L2 device and hands
// them to the encoder together with their stream geometry and metadata.
package camera

import (
	"errors"
	"time"

	"github.com/wassoc/shadowgraph/pkg/raw"
)

var errUnsupported = errors.New("raw capture is only supported on linux")

// Camera reads raw frames from one V4L2 device. Capture is only available
// on linux; this stub keeps the rest of the pipeline portable.
type Camera struct{}

func Open(path string) (*Camera, error) {
	return nil, errUnsupported
}

func (c *Camera) SetFormat(f raw.Format, width, height int) (raw.StreamInfo, error) {
	return raw.StreamInfo{}, errUnsupported
}

func (c *Camera) StreamInfo() raw.StreamInfo { return raw.StreamInfo{} }

func (c *Camera) Start() error { return errUnsupported }

func (c *Camera) ReadFrame(timeout time.Duration) ([]byte, error) {
	return nil, errUnsupported
}

func (c *Camera) Metadata() *Metadata { return NewMetadata() }

func (c *Camera) Close() error { return nil }
