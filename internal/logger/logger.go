// Package logger provides leveled structured logging.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var defaultLogger *logrus.Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if strings.ToLower(format) == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	defaultLogger = l
}

func get() *logrus.Logger {
	if defaultLogger == nil {
		Init("info", "json")
	}
	return defaultLogger
}

func Debug(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	get().Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}
