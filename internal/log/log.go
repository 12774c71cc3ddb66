// Package log defines the logger used by the MetaDefender client, the scan
// workflow and the mdscan command. By default it writes through the Go logger
// to stderr, but it can be replaced with a user-defined logger.
package log

import (
	"io"
	"log"
	"os"
)

// Logger is the logging interface used across the module.
type Logger interface {
	Errorf(format string, args ...any)
	Error(args ...any)
	Warnf(format string, args ...any)
	Warn(args ...any)
	Infof(format string, args ...any)
	Info(args ...any)
	Debugf(format string, args ...any)
	Debug(args ...any)
}

var logger Logger = NewDefaultLogger(os.Stderr, false)

// SetLogger overwrites the default logger with a user specified one.
func SetLogger(l Logger) { logger = l }

// Errorf is the static formatted error logging function.
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }

// Warnf is the static formatted warning logging function.
func Warnf(format string, args ...any) { logger.Warnf(format, args...) }

// Infof is the static formatted info logging function.
func Infof(format string, args ...any) { logger.Infof(format, args...) }

// Debugf is the static formatted debug logging function.
func Debugf(format string, args ...any) { logger.Debugf(format, args...) }

// Error is the static error logging function.
func Error(args ...any) { logger.Error(args...) }

// Warn is the static warning logging function.
func Warn(args ...any) { logger.Warn(args...) }

// Info is the static info logging function.
func Info(args ...any) { logger.Info(args...) }

// Debug is the static debug logging function.
func Debug(args ...any) { logger.Debug(args...) }

// DefaultLogger is the Logger implementation used by default.
// Every line is prefixed with its level.
type DefaultLogger struct {
	Verbose bool // Whether debug logs should be shown.
	l       *log.Logger
}

// NewDefaultLogger returns a DefaultLogger writing to w.
func NewDefaultLogger(w io.Writer, verbose bool) *DefaultLogger {
	return &DefaultLogger{Verbose: verbose, l: log.New(w, "", log.LstdFlags)}
}

func (d *DefaultLogger) printf(level, format string, args ...any) {
	d.l.Printf(level+" "+format, args...)
}

func (d *DefaultLogger) println(level string, args ...any) {
	d.l.Println(append([]any{level}, args...)...)
}

// Errorf is the formatted error logging function.
func (d *DefaultLogger) Errorf(format string, args ...any) { d.printf("ERROR", format, args...) }

// Warnf is the formatted warning logging function.
func (d *DefaultLogger) Warnf(format string, args ...any) { d.printf("WARN", format, args...) }

// Infof is the formatted info logging function.
func (d *DefaultLogger) Infof(format string, args ...any) { d.printf("INFO", format, args...) }

// Debugf is the formatted debug logging function.
func (d *DefaultLogger) Debugf(format string, args ...any) {
	if d.Verbose {
		d.printf("DEBUG", format, args...)
	}
}

// Error is the error logging function.
func (d *DefaultLogger) Error(args ...any) { d.println("ERROR", args...) }

// Warn is the warning logging function.
func (d *DefaultLogger) Warn(args ...any) { d.println("WARN", args...) }

// Info is the info logging function.
func (d *DefaultLogger) Info(args ...any) { d.println("INFO", args...) }

// Debug is the debug logging function.
func (d *DefaultLogger) Debug(args ...any) {
	if d.Verbose {
		d.println("DEBUG", args...)
	}
}
