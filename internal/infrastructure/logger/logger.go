package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	global = zerolog.New(consoleWriter()).With().Timestamp().Logger()
)

// GetLogger returns the process-wide logger. Until Init runs it logs to the
// console at the default level.
func GetLogger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Init builds the logger from service configuration and installs it as the
// process-wide instance. Service and environment are stamped on every line so
// aggregated logs from several deployments stay separable.
func Init(level, format, service, environment string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", level, err)
	}
	out, err := formatWriter(format)
	if err != nil {
		return zerolog.Logger{}, err
	}

	ctx := zerolog.New(out).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	if environment != "" {
		ctx = ctx.Str("environment", environment)
	}
	log := ctx.Logger().Level(lvl)
	zerolog.SetGlobalLevel(lvl)

	mu.Lock()
	global = log
	mu.Unlock()
	return log, nil
}

func formatWriter(format string) (io.Writer, error) {
	switch strings.ToLower(format) {
	case "json":
		return os.Stdout, nil
	case "console":
		return consoleWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}
