package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsLoggerForEachLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown-defaults-to-info"} {
		logger, err := New(level, "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	}
}

func TestNewSupportsConsoleEncoding(t *testing.T) {
	logger, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
