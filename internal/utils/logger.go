package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger writes leveled lines. Debug lines appear only in verbose mode and
// carry an HH:MM:SS timestamp.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	out     io.Writer
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = &Logger{out: os.Stderr}
	})
	return loggerInstance
}

// SetVerboseMode toggles debug output on the process-wide logger.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects log output. A nil writer restores stderr.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	l.out = w
}

func (l *Logger) writer() io.Writer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.out == nil {
		return os.Stderr
	}
	return l.out
}

func (l *Logger) logf(level Level, msgOrFormat string, args []interface{}) {
	if level == LevelDebug && !l.IsVerbose() {
		return
	}
	msg := msgOrFormat
	if len(args) > 0 {
		msg = fmt.Sprintf(msgOrFormat, args...)
	}
	if level == LevelDebug {
		_, _ = fmt.Fprintf(l.writer(), "%s [%s] %s\n", time.Now().Format("15:04:05"), level, msg)
		return
	}
	_, _ = fmt.Fprintf(l.writer(), "[%s] %s\n", level, msg)
}

func (l *Logger) Debug(msgOrFormat string, args ...interface{}) {
	l.logf(LevelDebug, msgOrFormat, args)
}

func (l *Logger) Info(msgOrFormat string, args ...interface{}) {
	l.logf(LevelInfo, msgOrFormat, args)
}

func (l *Logger) Warn(msgOrFormat string, args ...interface{}) {
	l.logf(LevelWarn, msgOrFormat, args)
}

func (l *Logger) Error(msgOrFormat string, args ...interface{}) {
	l.logf(LevelError, msgOrFormat, args)
}

func Debugf(format string, args ...interface{}) { GetLogger().Debug(format, args...) }
func Infof(format string, args ...interface{})  { GetLogger().Info(format, args...) }
func Warnf(format string, args ...interface{})  { GetLogger().Warn(format, args...) }
func Errorf(format string, args ...interface{}) { GetLogger().Error(format, args...) }

// BackgroundLogger keeps a per-process log file for `todosync watch`, so a
// long session can be inspected after the terminal is gone.
type BackgroundLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
	path   string
}

// NewBackgroundLoggerWithEnabled opens $TMPDIR/todosync-watch-<pid>.log, or
// returns a discarding logger when enabled is false
// (logging.background_enabled).
func NewBackgroundLoggerWithEnabled(enabled bool) (*BackgroundLogger, error) {
	if !enabled {
		return &BackgroundLogger{logger: log.New(io.Discard, "", 0)}, nil
	}
	return NewBackgroundLoggerWithPath(filepath.Join(os.TempDir(), fmt.Sprintf("todosync-watch-%d.log", os.Getpid())))
}

// NewBackgroundLoggerWithPath appends to path. When the file cannot be opened
// the returned logger discards everything and the error is reported.
func NewBackgroundLoggerWithPath(path string) (*BackgroundLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &BackgroundLogger{logger: log.New(io.Discard, "", 0), path: path}, err
	}
	return &BackgroundLogger{logger: log.New(f, "", log.LstdFlags), file: f, path: path}, nil
}

func (bl *BackgroundLogger) Printf(format string, args ...interface{}) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	bl.logger.Printf(format, args...)
}

// Writer returns the file destination, for tee-ing the leveled logger into it.
func (bl *BackgroundLogger) Writer() io.Writer {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.logger.Writer()
}

// Close closes the file. Later writes are discarded.
func (bl *BackgroundLogger) Close() {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.file != nil {
		_ = bl.file.Close()
		bl.file = nil
	}
	bl.logger.SetOutput(io.Discard)
}

// GetLogPath returns the file path, empty when disabled.
func (bl *BackgroundLogger) GetLogPath() string {
	return bl.path
}

// IsEnabled reports whether lines reach a file.
func (bl *BackgroundLogger) IsEnabled() bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.file != nil
}
