package util

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/pterm/pterm"
)

// PionLoggerFactory routes pion's internal logs through the pterm logger.
// pion is chatty at info level, so its info output is demoted to debug.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// quietWarnScopes are pion scopes whose warnings are routine on a normal
// close, e.g. the ICE agent reporting it is already closed.
var quietWarnScopes = map[string]bool{
	"ice": true,
}

func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := &pionLogger{scope: scope, warnLevel: pterm.LogLevelWarn}
	if quietWarnScopes[scope] {
		l.warnLevel = pterm.LogLevelDebug
	}
	return l
}

type pionLogger struct {
	scope     string
	warnLevel pterm.LogLevel
}

func (l *pionLogger) prefix(msg string) string {
	return fmt.Sprintf("pion/%s: %s", l.scope, msg)
}

func (l *pionLogger) Trace(msg string) {}

func (l *pionLogger) Tracef(format string, args ...interface{}) {}

func (l *pionLogger) Debug(msg string) {
	if DebugEnabled() {
		LogDebug("%s", l.prefix(msg))
	}
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	if DebugEnabled() {
		LogDebug("%s", l.prefix(fmt.Sprintf(format, args...)))
	}
}

func (l *pionLogger) Info(msg string) { l.Debug(msg) }

func (l *pionLogger) Infof(format string, args ...interface{}) { l.Debugf(format, args...) }

func (l *pionLogger) Warn(msg string) {
	logAt(l.warnLevel, "%s", l.prefix(msg))
}

func (l *pionLogger) Warnf(format string, args ...interface{}) {
	logAt(l.warnLevel, "%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *pionLogger) Error(msg string) {
	LogError("%s", l.prefix(msg))
}

func (l *pionLogger) Errorf(format string, args ...interface{}) {
	LogError("%s", l.prefix(fmt.Sprintf(format, args...)))
}
