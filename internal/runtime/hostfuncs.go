package runtime

import "log/slog"

// logObject provides log.Debug/Info/Warn/Error methods for Risor scripts,
// forwarding to the runtime's slog logger.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) {
	l.logger.Debug(msg)
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
