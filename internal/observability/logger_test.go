package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestCLILoggerDefaultsToNop(t *testing.T) {
	assert.NotNil(t, CLILogger)
	assert.NotPanics(t, func() { CLILogger.Info("ignored") })
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("jobscope", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.InfoLevel))

	InitCLILogger("jobscope", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewServerLogger(t *testing.T) {
	logger, err := NewServerLogger("jobscope", "warn", ProfileStructured)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewServerLogger("jobscope", "debug", ProfileConsole)
	require.NoError(t, err)

	_, err = NewServerLogger("jobscope", "loud", ProfileStructured)
	assert.Error(t, err)

	_, err = NewServerLogger("jobscope", "info", "xml")
	assert.Error(t, err)
}
