package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetGlobal() {
	globalLogger = nil
	once = sync.Once{}
}

func TestInitGlobalLogger(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil)

	assert.NotNil(t, globalLogger)
	assert.Equal(t, "kazapay", globalLogger.service)
	assert.False(t, globalLogger.enableSink)
}

func TestGetGlobalLogger(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	logger := GetGlobalLogger()
	assert.NotNil(t, logger)
	assert.Same(t, logger, GetGlobalLogger())
}

func TestGlobalLoggerConvenienceFunctions(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil)
	globalLogger.enableConsole = false

	Debug("Debug message")
	Info("Info message")
	Warn("Warning message")
	Error("Error message", nil)

	ctx := LogContext{RequestID: "req-1"}
	Info("Info with context", ctx)
	Error("Error with context", nil, ctx)

	cl := WithRequest("kazawallet", "req-2")
	assert.Equal(t, "kazawallet", cl.context.Provider)
	assert.Equal(t, "req-2", cl.context.RequestID)
}
