package logsvc

import (
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

// Logger writes to the standard logger and, once a Rollbar token is
// configured, reports warnings and errors there too.
type Logger struct {
	std     *log.Logger
	rollbar bool
}

// New returns a Logger on std (log.Default() when nil). An empty token keeps
// Rollbar disabled.
func New(std *log.Logger, token, env string) *Logger {
	if std == nil {
		std = log.Default()
	}
	l := &Logger{std: std}
	if token != "" {
		rollbar.SetToken(token)
		rollbar.SetEnvironment(env)
		if host, err := os.Hostname(); err == nil {
			rollbar.SetServerHost(host)
		}
		rollbar.SetStackTracer(rollbarerrors.StackTracer)
		rollbar.SetEnabled(true)
		l.rollbar = true
	} else {
		rollbar.SetEnabled(false)
	}
	return l
}

var std = New(nil, "", "")

// Default is the process-wide logger used by packages that have no injected one.
func Default() *Logger { return std }

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		std = l
	}
}

// Std exposes the wrapped *log.Logger.
func (l *Logger) Std() *log.Logger { return l.std }

// expected args: error, map[string]interface{} for extra fields
func (l *Logger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		l.std.Printf("  %+v", arg)
	}
}

func (l *Logger) report(level, msg string, args []interface{}) {
	if !l.rollbar {
		return
	}
	rollbar.Log(level, append([]interface{}{msg}, args...)...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.print("info", msg, args)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.print("warn", msg, args)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.print("error", msg, args)
}

// Fatal reports, flushes Rollbar and exits.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.print("fatal", msg, args)
	l.Close()
	l.std.Fatal(msg)
}

// Close waits for queued Rollbar items.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Close()
	}
}
