package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupOptions controls Configure.
type SetupOptions struct {
	// LogFilePath, if non-empty, rotates logs through lumberjack in
	// addition to stderr.
	LogFilePath string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Level       log.Level
	// ThrottleNonCritical enables the ring-buffer hook throttling described
	// in spec.md §4.5.
	ThrottleNonCritical bool
}

// Configure wires logrus output, the global ring buffer, and (if requested)
// the throttled hook and log-file rotation, mirroring how the teacher's
// daemon bootstraps logging.
func Configure(opts SetupOptions) {
	log.SetLevel(opts.Level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var out io.Writer = os.Stderr
	if opts.LogFilePath != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.LogFilePath,
			MaxSize:    firstPositive(opts.MaxSizeMB, 50),
			MaxBackups: firstPositive(opts.MaxBackups, 5),
			MaxAge:     firstPositive(opts.MaxAgeDays, 30),
			Compress:   true,
		})
	}
	log.SetOutput(out)

	var bufferHook log.Hook = globalBuffer
	if opts.ThrottleNonCritical {
		bufferHook = NewThrottledHook(globalBuffer, DefaultThrottleInterval)
	}
	log.AddHook(bufferHook)
}

func firstPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
