package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Logger provides levelled, timestamped logging throughout the pipeline.
type Logger struct {
	info    *log.Logger
	warn    *log.Logger
	err     *log.Logger
	debug   *log.Logger
	verbose bool
}

// NewLogger creates a Logger writing to stdout/stderr. Debug output is
// enabled when level is "debug".
func NewLogger(level string) *Logger {
	return NewLoggerTo(os.Stdout, os.Stderr, level)
}

// NewLoggerTo creates a Logger on the given writers.
func NewLoggerTo(out, errOut io.Writer, level string) *Logger {
	flags := 0
	return &Logger{
		info:    log.New(out, "", flags),
		warn:    log.New(out, "", flags),
		err:     log.New(errOut, "", flags),
		debug:   log.New(out, "", flags),
		verbose: strings.EqualFold(level, "debug"),
	}
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, io.Discard, "debug")
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(fmt.Sprintf("[%s] \033[32mINFO\033[0m  %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(fmt.Sprintf("[%s] \033[33mWARN\033[0m  %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("[%s] \033[31mERROR\033[0m %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.debug.Printf(fmt.Sprintf("[%s] \033[36mDEBUG\033[0m %s\n", l.timestamp(), format), args...)
}
