package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger levels
const (
	DEBUG = iota
	INFO
	WARN
	ERROR
)

var (
	globalLogger *Logger
	globalMu     sync.Mutex

	defaultLogDir  = filepath.Join(".qarun", "logs")
	defaultLogFile = "qarun.log"
	maxLogSize     = int64(10 * 1024 * 1024) // 10MB
	maxLogAge      = 7 * 24 * time.Hour
)

// Logger is a leveled, printf-style logger writing to a rotating file and,
// optionally, a mirror writer such as stderr.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	logger  *log.Logger
	mirror  io.Writer
	level   int
	logPath string

	maxSize     int64
	currentSize int64
}

// Initialize sets up the global logger under projectDir/.qarun/logs.
func Initialize(projectDir string) error {
	l := &Logger{level: INFO, maxSize: maxLogSize}
	if err := l.open(filepath.Join(projectDir, defaultLogDir)); err != nil {
		return err
	}

	globalMu.Lock()
	old := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// New creates a logger that writes only to w. Used by tests and by commands
// that must not touch the project directory.
func New(w io.Writer, level int) *Logger {
	return &Logger{
		logger:  log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		level:   level,
		maxSize: -1,
	}
}

// SetGlobal replaces the global logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetLogger returns the global logger, falling back to a stderr logger when
// Initialize has not been called.
func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = New(os.Stderr, WARN)
	}
	return globalLogger
}

func (l *Logger) open(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	l.logPath = filepath.Join(logDir, defaultLogFile)
	return l.openLogFile()
}

func (l *Logger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if info, err := file.Stat(); err == nil {
		l.currentSize = info.Size()
	}

	l.file = file
	l.logger = log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

// rotateIfNeeded renames the current file once it grows past maxSize.
func (l *Logger) rotateIfNeeded() error {
	if l.file == nil || l.maxSize < 0 || l.currentSize < l.maxSize {
		return nil
	}

	l.file.Close()

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := filepath.Join(filepath.Dir(l.logPath), fmt.Sprintf("qarun-%s.log", timestamp))
	if err := os.Rename(l.logPath, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := l.openLogFile(); err != nil {
		return err
	}

	go cleanOldLogs(filepath.Dir(l.logPath), time.Now().Add(-maxLogAge))
	return nil
}

// cleanOldLogs removes rotated log files last modified before cutoff.
func cleanOldLogs(logDir string, cutoff time.Time) {
	files, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() || file.Name() == defaultLogFile || filepath.Ext(file.Name()) != ".log" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(logDir, file.Name()))
		}
	}
}

func (l *Logger) write(level int, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.logger == nil {
		return
	}

	if err := l.rotateIfNeeded(); err != nil && l.mirror != nil {
		fmt.Fprintf(l.mirror, "[WARN] %v\n", err)
	}

	msg := fmt.Sprintf("[%s] %s", levelString(level), fmt.Sprintf(format, v...))
	l.logger.Output(3, msg)
	l.currentSize += int64(len(msg)) + 1

	if l.mirror != nil {
		fmt.Fprintln(l.mirror, msg)
	}
}

func levelString(level int) string {
	switch level {
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

// ParseLevel maps a level name to its constant. Unknown names map to INFO.
func ParseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) { l.write(DEBUG, format, v...) }

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) { l.write(INFO, format, v...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) { l.write(WARN, format, v...) }

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) { l.write(ERROR, format, v...) }

// SetLevel sets the logging level
func (l *Logger) SetLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetMirror copies every emitted line to w (nil disables mirroring).
func (l *Logger) SetMirror(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = w
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.logger = nil
		return err
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Debug logs a debug message using the global logger
func Debug(format string, v ...interface{}) { GetLogger().Debug(format, v...) }

// Info logs an info message using the global logger
func Info(format string, v ...interface{}) { GetLogger().Info(format, v...) }

// Warn logs a warning message using the global logger
func Warn(format string, v ...interface{}) { GetLogger().Warn(format, v...) }

// Error logs an error message using the global logger
func Error(format string, v ...interface{}) { GetLogger().Error(format, v...) }

type logWriter struct {
	logger *Logger
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// RedirectStandardLog sends the standard log package through the global logger.
func RedirectStandardLog() {
	log.SetOutput(&logWriter{logger: GetLogger()})
	log.SetFlags(0)
}
