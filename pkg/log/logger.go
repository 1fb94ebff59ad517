// Structured logging for the probing and calibration core
//
// Provides leveled, prefixed loggers so every subsystem (probe, calibrate,
// status) reports through its own component logger. Calibration reports are
// logged at INFO; the real-time tick path never logs.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

var (
	defaultLevelMu sync.Mutex
	defaultLevel   = INFO
)

// SetDefaultLevel sets the level that subsequently created loggers start at.
// Existing loggers are not changed.
func SetDefaultLevel(level LogLevel) {
	defaultLevelMu.Lock()
	defer defaultLevelMu.Unlock()
	defaultLevel = level
}

func newLoggerLevel() LogLevel {
	defaultLevelMu.Lock()
	defer defaultLevelMu.Unlock()
	return defaultLevel
}

// Logger is a leveled logger with a component prefix
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      LogLevel
	timeFormat string
}

// New creates a new logger with the given component prefix
func New(prefix string) *Logger {
	return &Logger{
		prefix:     prefix,
		writer:     os.Stderr,
		level:      newLoggerLevel(),
		timeFormat: "2006-01-02 15:04:05.000",
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// format renders a single log line: timestamp, level, prefix, message, fields
func (l *Logger) format(level LogLevel, msg string, fields Fields) string {
	var sb strings.Builder

	sb.WriteString(time.Now().Format(l.timeFormat))
	sb.WriteString(" [")
	sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	sb.WriteString("] ")
	sb.WriteString(l.prefix)
	sb.WriteString(": ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		sb.WriteString(" {")
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", fields[k]))
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")
	return sb.String()
}

func (l *Logger) log(level LogLevel, fields Fields, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	io.WriteString(l.writer, l.format(level, msg, fields))
}

// Debugf logs a formatted message at DEBUG level
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.log(DEBUG, nil, msg, args...)
}

// Infof logs a formatted message at INFO level
func (l *Logger) Infof(msg string, args ...interface{}) {
	l.log(INFO, nil, msg, args...)
}

// Warnf logs a formatted message at WARN level
func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.log(WARN, nil, msg, args...)
}

// Errorf logs a formatted message at ERROR level
func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.log(ERROR, nil, msg, args...)
}

// WithFields logs a message at the given level with structured fields
func (l *Logger) WithFields(level LogLevel, fields Fields, msg string, args ...interface{}) {
	l.log(level, fields, msg, args...)
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process-wide default logger
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("main")
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
