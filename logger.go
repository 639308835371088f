package gpufilter

import (
	"log/slog"
	"sync/atomic"
)

// silent discards every record. Enabled reports false, so disabled log
// calls skip attribute formatting.
var silent = slog.New(slog.DiscardHandler)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(silent)
}

// SetLogger sets the logger shared by gpufilter and its sub-packages.
// gpufilter is silent until SetLogger is called; nil restores silence.
// SetLogger may be called concurrently with logging.
//
// Levels:
//   - [slog.LevelDebug]: command completion, module cache hits, pool growth
//   - [slog.LevelInfo]: runtime and device opened
//   - [slog.LevelWarn]: operator construction failed, allocator release errors
//
// Example:
//
//	gpufilter.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	logger.Store(l)
}

// Logger returns the current logger. compute, shader and the operator
// packages call it at each log site, so SetLogger takes effect
// immediately everywhere.
func Logger() *slog.Logger {
	return logger.Load()
}
