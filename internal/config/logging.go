package config

import (
	"fmt"
	"strings"

	"github.com/pion/logging"
)

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// NewLoggerFactory returns a pion logger factory at the named level.
// PION_LOG_* environment variables still override individual scopes.
func NewLoggerFactory(level string) (*logging.DefaultLoggerFactory, error) {
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = l
	return f, nil
}
