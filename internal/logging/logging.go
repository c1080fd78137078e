package logging

import (
	"github.com/pion/logging"
)

var loggerFactory = logging.NewDefaultLoggerFactory()

// NewLogger returns a leveled logger for the given scope. Verbosity is
// controlled through the PION_LOG_* environment variables understood by
// the default factory (e.g. PION_LOG_DEBUG=dng).
func NewLogger(scope string) logging.LeveledLogger {
	return loggerFactory.NewLogger(scope)
}
