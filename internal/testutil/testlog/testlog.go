package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// Start returns a debug-level logger routed through t and records the test
// name at the top of the log.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	logger.Info().Str("test", t.Name()).Msg("start")
	return logger
}
