// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger = newDefault()
	debug  = map[string]string{}
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Logger returns the process-wide logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetVerbosity maps a repeated -v count to a logrus level: 0=info, 1=debug,
// 2+=trace.
func SetVerbosity(count int) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case count <= 0:
		logger.SetLevel(logrus.InfoLevel)
	case count == 1:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.TraceLevel)
	}
}

// SetDebugFlags parses the --debug K[=V],... flag into a named facility map,
// e.g. "cli-bin-paths=/tmp/map.json,dryrun".
func SetDebugFlags(raw string) {
	mu.Lock()
	defer mu.Unlock()
	debug = map[string]string{}
	if raw == "" {
		return
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			debug[part[:idx]] = part[idx+1:]
		} else {
			debug[part] = ""
		}
	}
}

// DebugFlag returns the named debug facility's value and whether it was set.
func DebugFlag(name string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := debug[name]
	return v, ok
}
