package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a small leveled logger with optional rotating file output.
// It writes human-readable lines to the terminal and, when a file is
// configured, the same lines through lumberjack rotation.
type Logger struct {
	mu     sync.Mutex
	writer io.Writer

	Name       string
	Level      LogLevel
	TimeFormat string
	NoColor    bool
}

// Rotation holds the lumberjack settings used for file output.
type Rotation struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func defaultRotation() Rotation {
	return Rotation{
		MaxSize:    64,
		MaxBackups: 4,
		MaxAge:     14,
	}
}

// NewLogger creates a logger writing to stdout. When file is non-empty,
// output is additionally written to the rotating log file.
func NewLogger(name string, level LogLevel, file string) *Logger {
	l := &Logger{
		Name:       name,
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
	}

	writers := []io.Writer{os.Stdout}
	if file != "" {
		rot := defaultRotation()
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    rot.MaxSize,
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAge,
			Compress:   rot.Compress,
		})
	}
	l.writer = io.MultiWriter(writers...)

	return l
}

// Discard returns a logger that drops everything. Useful as a default
// when the caller did not configure logging.
func Discard() *Logger {
	return &Logger{
		writer:     io.Discard,
		Level:      Error + 1,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

// Named returns a child logger sharing the same writer under a
// slash-joined name.
func (l *Logger) Named(name string) *Logger {
	child := &Logger{
		writer:     l.writer,
		Name:       name,
		Level:      l.Level,
		TimeFormat: l.TimeFormat,
		NoColor:    l.NoColor,
	}
	if l.Name != "" {
		child.Name = fmt.Sprintf("%s/%s", l.Name, name)
	}

	return child
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.Level {
		return
	}

	timestamp := time.Now().Format(l.TimeFormat)
	formatted := fmt.Sprintf(msg, args...)

	prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
	if l.Name != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, l.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.NoColor {
		fmt.Fprintf(l.writer, "%s %s\n", prefix, formatted)
	} else {
		fmt.Fprintf(l.writer, "%s%s %s\033[0m\n", color(level), prefix, formatted)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}
