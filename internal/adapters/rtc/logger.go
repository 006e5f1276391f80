package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLoggerFactory routes pion's internal logs into the global zerolog logger.
func NewLoggerFactory() logging.LoggerFactory {
	return loggerFactory{}
}

type loggerFactory struct{}

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope}
}

// pionLogger resolves log.Logger on every call so output changes made in main apply.
type pionLogger struct {
	scope string
}

func (l *pionLogger) event(level zerolog.Level) *zerolog.Event {
	return log.WithLevel(level).Str("module", "pion").Str("scope", l.scope)
}

func (l *pionLogger) Trace(msg string) { l.event(zerolog.TraceLevel).Msg(msg) }
func (l *pionLogger) Tracef(format string, args ...any) {
	l.event(zerolog.TraceLevel).Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Debug(msg string) { l.event(zerolog.DebugLevel).Msg(msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	l.event(zerolog.DebugLevel).Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Info(msg string) { l.event(zerolog.InfoLevel).Msg(msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.event(zerolog.InfoLevel).Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Warn(msg string) { l.event(zerolog.WarnLevel).Msg(msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	l.event(zerolog.WarnLevel).Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Error(msg string) { l.event(zerolog.ErrorLevel).Msg(msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	l.event(zerolog.ErrorLevel).Msg(fmt.Sprintf(format, args...))
}
