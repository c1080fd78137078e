// Package output persists encoded DNG buffers as files, one per frame,
// named by capture session and frame sequence number.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/wassoc/shadowgraph/internal/logging"
)

var logger = logging.NewLogger("output")

// Writer writes encoded frames into one directory. Every Writer gets a
// fresh session id so interleaved captures into the same directory cannot
// collide.
type Writer struct {
	dir     string
	session string
}

// NewWriter creates the output directory if needed and starts a session.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	session := uuid.NewString()[:8]
	logger.Infof("session %s writing to %s", session, dir)
	return &Writer{dir: dir, session: session}, nil
}

// Path returns the file name frame seq will be written to.
func (w *Writer) Path(seq uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%05d.dng", w.session, seq))
}

// Write persists one encoded frame. A partially written file is removed.
func (w *Writer) Write(seq uint64, data []byte) (string, error) {
	path := w.Path(seq)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	logger.Debugf("wrote %s (%d bytes)", path, len(data))
	return path, nil
}
