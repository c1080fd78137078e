// Package encoder fans raw frames out to a pool of DNG encode workers and
// delivers the results strictly in submission order.
package encoder

import (
	"runtime"
	"sync"

	"github.com/wassoc/shadowgraph/internal/logging"
	"github.com/wassoc/shadowgraph/pkg/camera"
	"github.com/wassoc/shadowgraph/pkg/dng"
	"github.com/wassoc/shadowgraph/pkg/raw"
)

var logger = logging.NewLogger("encoder")

// Frame is one unit of work: a raw buffer plus everything the container
// needs to describe it. The pool owns Data after Submit.
type Frame struct {
	Seq  uint64
	Data []byte
	Info raw.StreamInfo
	Meta *camera.Metadata
}

// Result is one encoded frame. Results arrive in Seq order; a frame that
// failed to encode still occupies its slot, with Err set and DNG nil.
type Result struct {
	Seq uint64
	DNG []byte
	Err error
}

// Config sizes the pool and fixes the per-frame encode parameters.
type Config struct {
	// Workers is the number of concurrent encodes. Zero means GOMAXPROCS.
	Workers int
	// QueueDepth bounds the submit backlog. Zero means 2x workers.
	QueueDepth int

	Model   string
	Options dng.Options
}

// Pool runs encodes concurrently while preserving submission order on the
// output side.
type Pool struct {
	encode func(Frame) ([]byte, error)

	submit chan Frame
	done   chan Result
	out    chan Result

	next uint64 // next sequence number to assign

	workers sync.WaitGroup
	closed  sync.Once
}

// New starts the pool.
func New(cfg Config) *Pool {
	return newPool(cfg, func(f Frame) ([]byte, error) {
		return dng.EncodeBytes(f.Data, f.Info, f.Meta, cfg.Model, cfg.Options)
	})
}

func newPool(cfg Config, encode func(Frame) ([]byte, error)) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 2 * workers
	}

	p := &Pool{
		encode: encode,
		submit: make(chan Frame, depth),
		done:   make(chan Result, depth),
		out:    make(chan Result, depth),
	}

	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go func() {
		p.workers.Wait()
		close(p.done)
	}()
	go p.sequence()

	logger.Debugf("started %d workers, queue depth %d", workers, depth)
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for f := range p.submit {
		data, err := p.encode(f)
		if err != nil {
			logger.Errorf("frame %d: %v", f.Seq, err)
		}
		p.done <- Result{Seq: f.Seq, DNG: data, Err: err}
	}
}

// sequence holds completed results until all their predecessors have been
// released, so the output channel sees strict submission order. Failed
// frames release their slot like any other; the sequence never stalls on
// an error.
func (p *Pool) sequence() {
	pending := make(map[uint64]Result)
	var next uint64
	for r := range p.done {
		pending[r.Seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			p.out <- ready
			next++
		}
	}
	close(p.out)
}

// Submit queues one frame and returns its sequence number. Submit must not
// be called concurrently with itself or after Close.
func (p *Pool) Submit(data []byte, info raw.StreamInfo, meta *camera.Metadata) uint64 {
	seq := p.next
	p.next++
	p.submit <- Frame{Seq: seq, Data: data, Info: info, Meta: meta}
	return seq
}

// Results returns the ordered output channel. It is closed once Close has
// been called and all in-flight frames have been delivered.
func (p *Pool) Results() <-chan Result {
	return p.out
}

// Close stops intake. In-flight frames still complete and reach Results.
func (p *Pool) Close() {
	p.closed.Do(func() {
		close(p.submit)
	})
}
