package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel           = LevelInfo
	format                 = "text"
	output       io.Writer = os.Stdout
	logger                 = newLogger(output, format)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}).With().Timestamp().Logger()
}

// SetLevel sets the minimum level. Unknown values are ignored.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetFormat switches between "text" (console) and "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()

	f = strings.ToLower(f)
	if f != "json" {
		f = "text"
	}
	format = f
	logger = newLogger(output, format)
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	logger = newLogger(output, format)
}

// Configure applies level, format and output in one go. Output is "stdout",
// "stderr" or a file path opened for appending; the returned closer releases
// the file and is a no-op for the standard streams.
func Configure(level, f, out string) (io.Closer, error) {
	var w io.Writer
	closer := io.Closer(nopCloser{})

	switch strings.ToLower(out) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log output %s: %w", out, err)
		}
		w = file
		closer = file
	}

	SetLevel(level)
	mu.Lock()
	output = w
	format = "text"
	if strings.EqualFold(f, "json") {
		format = "json"
	}
	logger = newLogger(output, format)
	mu.Unlock()

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func log(level Level, fmtStr string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	logger.WithLevel(level.zerolog()).Msgf(fmtStr, v...)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
