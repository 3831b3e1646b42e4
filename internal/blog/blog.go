// Package blog is the structured logger used throughout bcache: leveled
// calls taking a message followed by alternating key/value pairs, backed
// by logrus.
package blog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts the minimum level emitted by the package logger.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Trace logs at trace level.
func Trace(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Trace(msg) }

// Debug logs at debug level.
func Debug(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Debug(msg) }

// Info logs at info level.
func Info(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Info(msg) }

// Warn logs at warning level.
func Warn(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Warn(msg) }

// Error logs at error level.
func Error(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Error(msg) }

// Crit logs at error severity and then panics, for programmer-error
// conditions that must never be silently tolerated (releasing or writing
// a buffer that isn't held, a use-after-release reference).
func Crit(msg string, kv ...interface{}) {
	std.WithFields(fields(kv)).Error(msg)
	panic(msg)
}
