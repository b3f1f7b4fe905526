package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"occupancy/internal/config"
)

// LogFileName is the name of the rotating service log inside the log directory.
const LogFileName = "occupancy.log"

// Logger provides leveled logging to stdout and a rotating file.
type Logger struct {
	entry   *logrus.Entry
	file    *lumberjack.Logger
	logPath string
	mu      *sync.Mutex
}

// NewLogger creates a Logger writing to stdout and <LogDirectory>/occupancy.log.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.LogDirectory, LogFileName)
	file := &lumberjack.Logger{
		Filename:   logPath,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
	}

	base := newLogrus(io.MultiWriter(os.Stdout, file), cfg.LogLevel)
	return &Logger{
		entry:   logrus.NewEntry(base),
		file:    file,
		logPath: logPath,
		mu:      &sync.Mutex{},
	}, nil
}

// New wraps an arbitrary writer. Used by tools and tests that do not want log files.
func New(w io.Writer, level string) *Logger {
	return &Logger{
		entry: logrus.NewEntry(newLogrus(w, level)),
		mu:    &sync.Mutex{},
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error")
}

func newLogrus(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetReportCaller(true)
	l.AddHook(callerHook{})
	l.SetFormatter(&formatter.Formatter{
		NoColors:        true,
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// WithField returns a child logger that tags every entry with key=value.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		entry:   l.entry.WithField(key, value),
		file:    l.file,
		logPath: l.logPath,
		mu:      l.mu,
	}
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// Path returns the service log file path, or "" when logging to a plain writer.
func (l *Logger) Path() string {
	return l.logPath
}

// CleanLogs truncates the service log file.
func (l *Logger) CleanLogs() error {
	if l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	if err := os.Truncate(l.logPath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	l.Info("Log file has been cleared")
	return nil
}

// Close flushes and closes the rotating file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
