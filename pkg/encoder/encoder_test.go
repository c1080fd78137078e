package encoder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wassoc/shadowgraph/pkg/camera"
	"github.com/wassoc/shadowgraph/pkg/raw"
)

func submitN(p *Pool, n int) {
	info := raw.StreamInfo{Width: 8, Height: 2, Stride: 12, PixelFormat: raw.FormatSBGGR12P}
	for i := 0; i < n; i++ {
		p.Submit(make([]byte, info.Stride*info.Height), info, nil)
	}
	p.Close()
}

func collect(t *testing.T, p *Pool) []Result {
	t.Helper()
	var results []Result
	timeout := time.After(10 * time.Second)
	for {
		select {
		case r, ok := <-p.Results():
			if !ok {
				return results
			}
			results = append(results, r)
		case <-timeout:
			t.Fatal("pool did not drain")
		}
	}
}

func TestPoolOrderUnderOutOfOrderCompletion(t *testing.T) {
	// Early frames finish last, so ordering can only come from the
	// sequencer.
	var mu sync.Mutex
	var started []uint64
	p := newPool(Config{Workers: 4, QueueDepth: 32}, func(f Frame) ([]byte, error) {
		mu.Lock()
		started = append(started, f.Seq)
		mu.Unlock()
		time.Sleep(time.Duration(16-f.Seq) * 5 * time.Millisecond)
		return []byte{byte(f.Seq)}, nil
	})

	submitN(p, 16)
	results := collect(t, p)

	require.Len(t, results, 16)
	for i, r := range results {
		assert.Equal(t, uint64(i), r.Seq)
		assert.Equal(t, []byte{byte(i)}, r.DNG)
		assert.NoError(t, r.Err)
	}
	assert.Len(t, started, 16)
}

func TestPoolFailedFrameKeepsSequenceMoving(t *testing.T) {
	boom := errors.New("boom")
	p := newPool(Config{Workers: 3}, func(f Frame) ([]byte, error) {
		if f.Seq == 2 {
			return nil, boom
		}
		return []byte{byte(f.Seq)}, nil
	})

	submitN(p, 6)
	results := collect(t, p)

	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, uint64(i), r.Seq)
		if i == 2 {
			assert.ErrorIs(t, r.Err, boom)
			assert.Nil(t, r.DNG)
		} else {
			assert.NoError(t, r.Err)
		}
	}
}

func TestPoolEncodesRealFrames(t *testing.T) {
	p := New(Config{Workers: 2, Model: "shadowgraph-v3"})

	info := raw.StreamInfo{Width: 16, Height: 8, Stride: 24, PixelFormat: raw.FormatSBGGR12P}
	for i := 0; i < 4; i++ {
		meta := camera.NewMetadata()
		meta.Set(camera.KeyExposureTime, 20000.0)
		p.Submit(make([]byte, info.Stride*info.Height), info, meta)
	}
	p.Close()

	results := collect(t, p)
	require.Len(t, results, 4)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, byte('I'), r.DNG[0], "little-endian TIFF header")
		assert.Equal(t, byte('I'), r.DNG[1])
	}
}

func TestPoolCloseIsIdempotent(t *testing.T) {
	p := New(Config{Workers: 1})
	p.Close()
	p.Close()
	results := collect(t, p)
	assert.Empty(t, results)
}
