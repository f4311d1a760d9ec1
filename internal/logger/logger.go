// Package logger is the logging capability handed to every component of the
// display service. Nothing in the service logs through a package-level logger;
// the orchestrator, clients and sinks all receive a Logger at construction.
package logger

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Logger is the leveled, printf-style logger used across the service.
type Logger interface {
	// Info logs routine progress (e.g. "Data unchanged - skipping display update").
	Info(format string, args ...interface{})

	// Warning logs a recoverable problem (e.g. "fetch attempt 2/3 failed").
	Warning(format string, args ...interface{})

	// Error logs a failure that ended a tick or a command.
	Error(format string, args ...interface{})
}

// StandardLogger writes through a stdlib *log.Logger with a level prefix.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger wraps l.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// New returns a StandardLogger writing to w with date and time stamps.
func New(w io.Writer) *StandardLogger {
	return NewStandardLogger(log.New(w, "", log.LstdFlags))
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// NopLogger discards everything.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (NopLogger) Info(string, ...interface{})    {}
func (NopLogger) Warning(string, ...interface{}) {}
func (NopLogger) Error(string, ...interface{})   {}

// MockLogger records formatted messages per level so tests can assert on them.
type MockLogger struct {
	mu           sync.Mutex
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.mu.Lock()
	m.InfoCalls = append(m.InfoCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.mu.Lock()
	m.WarningCalls = append(m.WarningCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.mu.Lock()
	m.ErrorCalls = append(m.ErrorCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Counts returns the number of info, warning and error messages recorded.
func (m *MockLogger) Counts() (info, warning, errs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InfoCalls), len(m.WarningCalls), len(m.ErrorCalls)
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = NopLogger{}
	_ Logger = (*MockLogger)(nil)
)
