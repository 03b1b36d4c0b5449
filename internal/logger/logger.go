package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"educheck/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// LogFileName is the file inside the log directory that mirrors console output.
const LogFileName = "terminal.log"

// Logger provides leveled logging (info/warning/error) to a file and stdout.
type Logger struct {
	log    zerolog.Logger
	logDir string
	file   *os.File
	mu     *sync.Mutex
}

// NewLogger creates a Logger writing to stdout and LogDirectory/terminal.log.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := openLogFile(filepath.Join(cfg.LogDirectory, LogFileName))
	if err != nil {
		return nil, err
	}

	var console io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	l := newLogger(zerolog.MultiLevelWriter(console, file), cfg.LogLevel)
	l.logDir = cfg.LogDirectory
	l.file = file
	return l, nil
}

// NewWithWriter creates a Logger writing JSON lines to w only.
func NewWithWriter(w io.Writer, level string) *Logger {
	return newLogger(w, level)
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return newLogger(io.Discard, "error")
}

func newLogger(w io.Writer, level string) *Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		log: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger(),
		mu:  &sync.Mutex{},
	}
}

// openLogFile opens or creates a log file for appending.
func openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Named returns a child logger tagged with a component field.
func (l *Logger) Named(component string) *Logger {
	child := *l
	child.log = l.log.With().Str("component", component).Logger()
	return &child
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	child := *l
	child.log = l.log.With().Str(key, value).Logger()
	return &child
}

// Zerolog exposes the underlying logger for structured events.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.log
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debug().Msgf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Info().Msgf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}

// LogPath returns the mirrored log file path, or "" for writer-only loggers.
func (l *Logger) LogPath() string {
	if l.logDir == "" {
		return ""
	}
	return filepath.Join(l.logDir, LogFileName)
}

// CleanLogs truncates the log file.
func (l *Logger) CleanLogs() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Truncate(0); err != nil {
		l.Error("Error truncating log file: %v", err)
		return err
	}
	l.Info("Log file has been cleared.")
	return nil
}

// Close releases the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
