package hooks

import (
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Entries carry this key with the caller's source location relative to the module root.
const FileLineKey = "file:line"

const modulePathMarker = "depsched/"

type contextHook struct{}

// NewContextHook returns a logrus hook that annotates every entry with the
// file and line of the code that emitted it.
func NewContextHook() log.Hook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	entry.Data[FileLineKey] = callerFromStack(string(debug.Stack()))
	return nil
}

// The goroutine dump lists function/location line pairs. Everything up to and including
// the hook's own frame is skipped, as are the logrus frames that invoked it, leaving
// the first frame outside the logging library.
func callerFromStack(stack string) string {
	lines := strings.Split(stack, "\n")
	foundHook := false
	for i := 0; i+1 < len(lines); i++ {
		if !foundHook {
			if strings.Contains(lines[i], "context_hook.go:") {
				foundHook = true
			}
			continue
		}
		fn, loc := lines[i], lines[i+1]
		if !strings.HasPrefix(loc, "\t") {
			continue
		}
		i++
		if strings.Contains(fn, "sirupsen/logrus") {
			continue
		}
		ctx := strings.Split(loc, modulePathMarker)
		return trimOffset(strings.TrimSpace(ctx[len(ctx)-1]))
	}
	return ""
}

// Drops the " +0x1f" program counter suffix.
func trimOffset(loc string) string {
	if idx := strings.Index(loc, " +0x"); idx >= 0 {
		return loc[:idx]
	}
	return loc
}
