package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the log level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARNING"
	LogLevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 10,
	LogLevelInfo:  20,
	LogLevelWarn:  30,
	LogLevelError: 40,
}

var levelColor = map[LogLevel]*color.Color{
	LogLevelDebug: color.New(color.FgHiBlack),
	LogLevelInfo:  color.New(color.FgGreen),
	LogLevelWarn:  color.New(color.FgYellow),
	LogLevelError: color.New(color.FgRed),
}

// ParseLevel maps a config log level to a LogLevel. CRITICAL folds into ERROR
// and WARN into WARNING. Unknown values yield INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR", "CRITICAL":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Service   string    `json:"service"`
	Operation string    `json:"operation,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes human readable lines to a console writer and, when a file is
// attached, JSON lines to that file.
type Logger struct {
	mu      sync.Mutex
	service string
	level   LogLevel
	console io.Writer
	file    *os.File
	logPath string
	now     func() time.Time
}

// New creates a console logger that writes to w at the given level.
func New(w io.Writer, level LogLevel, service string) *Logger {
	return &Logger{
		service: service,
		level:   level,
		console: w,
		now:     time.Now,
	}
}

// SetFile attaches a JSON log file, creating its directory as needed.
func (l *Logger) SetFile(logPath string) error {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
	}
	l.file = file
	l.logPath = logPath
	return nil
}

// Enabled reports whether messages at level are emitted.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return levelRank[level] >= levelRank[l.level]
}

// Path returns the attached log file path, if any.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) log(level LogLevel, message, operation, errText string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[level] < levelRank[l.level] {
		return
	}

	ts := l.now()

	if l.console != nil {
		prefix := levelColor[level].Sprintf("%-8s", level)
		_, _ = fmt.Fprintf(l.console, "[%s %s] %s\n", prefix, ts.Format("15:04:05"), message)
	}

	if l.file == nil {
		return
	}

	entry := LogEntry{
		Timestamp: ts,
		Level:     level,
		Message:   message,
		Service:   l.service,
		Operation: operation,
		Error:     errText,
	}
	jsonData, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		_, _ = fmt.Fprintf(l.file, "{\"timestamp\":\"%s\",\"level\":\"%s\",\"message\":%q,\"service\":\"%s\"}\n",
			ts.Format(time.RFC3339), level, message, l.service)
		return
	}
	_, _ = fmt.Fprintln(l.file, string(jsonData))
}
