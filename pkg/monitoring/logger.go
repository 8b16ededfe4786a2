package monitoring

import "go.uber.org/zap"

// logger is single singleton instance of logger
// default logger do nothing
var logger = zap.NewNop()

// sugaredLogger extend version on zap.Logger that allow
// using sting format functions
var sugaredLogger = logger.Sugar()

// RegisterLogger new logger as main logger for service
// RegisterLogger is NOT THREAD SAFE
func RegisterLogger(l *zap.Logger) {
	logger = l
	sugaredLogger = l.Sugar()
}

// Log returns correct registered logger
func Log() *zap.Logger {
	return logger
}

// Logs return sugared zap logger
func Logs() *zap.SugaredLogger {
	return sugaredLogger
}

// NewLogger creates zap logger for given log level ("prod" or "dev")
func NewLogger(level string) (*zap.Logger, error) {
	if level == "dev" {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
