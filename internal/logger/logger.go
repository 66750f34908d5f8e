// Package logger wraps charmbracelet/log with the convenience functions
// and level handling tx2tx uses everywhere else in the tree.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var (
	Logger        *log.Logger
	currentWriter io.Writer = os.Stderr
)

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	SetLevel(strings.ToUpper(os.Getenv("TX2TX_LOG_LEVEL")))
}

// SetLevel sets the log level from a string; unrecognised values fall back
// to INFO.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		Logger.SetLevel(log.DebugLevel)
	case "WARN", "WARNING":
		Logger.SetLevel(log.WarnLevel)
	case "ERROR":
		Logger.SetLevel(log.ErrorLevel)
	case "FATAL":
		Logger.SetLevel(log.FatalLevel)
	default:
		Logger.SetLevel(log.InfoLevel)
	}
}

// SetOutput redirects logger output, preserving the current level.
func SetOutput(w io.Writer) {
	currentWriter = w
	level := Logger.GetLevel()
	Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	Logger.SetLevel(level)
}

// SetPrefix tags every subsequent line with prefix (e.g. "SERVER", "CLIENT").
func SetPrefix(prefix string) {
	level := Logger.GetLevel()
	Logger = log.NewWithOptions(currentWriter, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          prefix,
	})
	Logger.SetLevel(level)
}

func Debug(msg interface{}, kv ...interface{}) { Logger.Debug(msg, kv...) }
func Info(msg interface{}, kv ...interface{})  { Logger.Info(msg, kv...) }
func Warn(msg interface{}, kv ...interface{})  { Logger.Warn(msg, kv...) }
func Error(msg interface{}, kv ...interface{}) { Logger.Error(msg, kv...) }
func Fatal(msg interface{}, kv ...interface{}) { Logger.Fatal(msg, kv...) }

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { Logger.Fatalf(format, args...) }

// Get returns the underlying logger, for callers that need charmbracelet/log
// directly (e.g. to attach a sub-logger).
func Get() *log.Logger { return Logger }
