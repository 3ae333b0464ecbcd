package logger

import (
	"sync"

	"github.com/mstgnz/kazapay/infra/config"
)

var (
	globalLogger *SystemLogger
	once         sync.Once
)

// InitGlobalLogger initializes the global system logger. sink may be nil.
func InitGlobalLogger(sink Sink) {
	once.Do(func() {
		cfg := config.GetAppConfig()
		loggerConfig := SystemLoggerConfig{
			EnableConsole: true,
			EnableSink:    sink != nil,
			MinLevel:      ParseLevel(cfg.LoggingLevel),
			Service:       "kazapay",
			Version:       "1.0.0",
			Environment:   cfg.Environment,
		}

		if loggerConfig.Environment == "development" {
			loggerConfig.MinLevel = LevelDebug
		}

		globalLogger = NewSystemLogger(sink, loggerConfig)
	})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	if globalLogger == nil {
		// Fallback to console-only logger if not initialized
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       "kazapay",
			Version:       "1.0.0",
			Environment:   "production",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithRequest creates a context logger for one inbound request
func WithRequest(provider, requestID string) *ContextLogger {
	return WithContext(LogContext{Provider: provider, RequestID: requestID})
}
