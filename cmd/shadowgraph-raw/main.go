// shadowgraph-raw streams raw Bayer frames from a V4L2 camera and persists
// each one as a DNG file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wassoc/shadowgraph/internal/logging"
	"github.com/wassoc/shadowgraph/pkg/camera"
	"github.com/wassoc/shadowgraph/pkg/config"
	"github.com/wassoc/shadowgraph/pkg/encoder"
	"github.com/wassoc/shadowgraph/pkg/output"
)

const frameTimeout = 5 * time.Second

var logger = logging.NewLogger("shadowgraph-raw")

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	device := flag.String("device", "", "override the configured V4L2 device")
	outputDir := flag.String("output", "", "override the configured output directory")
	frames := flag.Int("frames", -1, "override the configured frame count (0 = until interrupted)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatal(err)
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *frames >= 0 {
		cfg.Frames = *frames
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	cam, err := camera.Open(cfg.Device)
	if err != nil {
		fatal(err)
	}
	defer cam.Close()

	info, err := cam.SetFormat(cfg.PixelFormat(), cfg.Width, cfg.Height)
	if err != nil {
		fatal(err)
	}

	out, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		fatal(err)
	}

	pool := encoder.New(encoder.Config{
		Workers: cfg.Workers,
		Model:   cfg.Model,
		Options: cfg.Options(),
	})

	written := make(chan struct{})
	go func() {
		defer close(written)
		for r := range pool.Results() {
			if r.Err != nil {
				logger.Errorf("frame %d dropped: %v", r.Seq, r.Err)
				continue
			}
			path, err := out.Write(r.Seq, r.DNG)
			if err != nil {
				logger.Errorf("frame %d: %v", r.Seq, err)
				continue
			}
			logger.Infof("frame %d -> %s", r.Seq, path)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if err := cam.Start(); err != nil {
		fatal(err)
	}
	logger.Infof("capturing %dx%d %s from %s", info.Width, info.Height, info.PixelFormat, cfg.Device)

capture:
	for n := 0; cfg.Frames == 0 || n < cfg.Frames; n++ {
		select {
		case <-sigs:
			logger.Infof("interrupted after %d frames", n)
			break capture
		default:
		}

		frame, err := cam.ReadFrame(frameTimeout)
		if err != nil {
			logger.Errorf("read frame: %v", err)
			break
		}
		// The frame aliases the driver buffer, which is recycled on the
		// next read.
		pool.Submit(append([]byte(nil), frame...), info, cam.Metadata())
	}

	pool.Close()
	<-written
}
