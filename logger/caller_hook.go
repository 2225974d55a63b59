package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// skipFrames marks function paths that wrap the actual call site: logrus
// internals and this package's helpers.
var skipFrames = []string{
	"sirupsen/logrus",
	"quoteflow/logger",
}

// callerHook adjusts the caller reported by logrus so it points
// to the original call site outside of the logger package.
type callerHook struct{}

// Levels returns all log levels for this hook.
func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire sets the entry's Caller to the first frame not marked as a wrapper.
func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// Skip runtime.Callers, this method and the logrus dispatch above it.
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		if isWrapperFrame(frame.Function) {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}

func isWrapperFrame(fn string) bool {
	for _, prefix := range skipFrames {
		if strings.Contains(fn, prefix) {
			return true
		}
	}
	return false
}
