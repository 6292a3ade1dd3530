// Package logx provides leveled, component-prefixed logging with
// env-controlled debug domains.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level identifies a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled log lines prefixed with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	debugOnce    sync.Once
	debugEnabled bool
	debugDomains map[string]bool
)

// SetOutput redirects all loggers to the given writer.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS once.
// DEBUG=1 enables debug for all components; DEBUG_DOMAINS=tools,executor
// restricts it to the named components.
func initDebugFromEnv() {
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugEnabled = true
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				debugDomains[d] = true
			}
		}
	}
}

// NewLogger creates a logger for the given component.
func NewLogger(component string) *Logger {
	debugOnce.Do(initDebugFromEnv)
	return &Logger{
		component: component,
		logger:    log.New(writerFunc(write), "", log.LstdFlags),
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func write(p []byte) (int, error) {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output.Write(p)
}

func (l *Logger) logf(level Level, format string, args ...any) {
	l.logger.Printf("[%s] %s: %s", level, l.component, fmt.Sprintf(format, args...))
}

// Debug logs a debug message if debug logging is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabled {
		return
	}
	if debugDomains != nil && !debugDomains[l.component] {
		return
	}
	l.logf(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.logf(LevelError, format, args...)
}
