package hooks

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// contextHook tags each entry with the file:line of the logging call site.
type contextHook struct {
}

func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "sirupsen/logrus") && !strings.HasSuffix(frame.File, "context_hook.go") {
			entry.Data["file:line"] = fmt.Sprintf("%s:%d", trimPath(frame.File), frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func trimPath(file string) string {
	parts := strings.Split(file, "htcproxy/")
	return parts[len(parts)-1]
}
