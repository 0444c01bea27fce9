// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides structured key/value logging for the daemon.
// Output is either human-readable text or one JSON object per line.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"grimm.is/tundra/internal/clock"
)

// Level controls which messages a logger emits.
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
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level. Unknown names return
// LevelInfo and an error so callers can fall back to a sane default.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Config holds logger construction options.
type Config struct {
	Output io.Writer
	Level  Level
	JSON   bool
}

// DefaultConfig returns the standard daemon logging configuration:
// text format to stderr at info level.
func DefaultConfig() Config {
	return Config{
		Output: os.Stderr,
		Level:  LevelInfo,
	}
}

// Logger writes structured log records. Derived loggers created with
// WithComponent/WithError share the parent's output and lock.
type Logger struct {
	mu        *sync.Mutex
	out       io.Writer
	level     Level
	json      bool
	component string
	fields    []any
}

// New creates a Logger from cfg. A nil Output falls back to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		mu:    &sync.Mutex{},
		out:   out,
		level: cfg.Level,
		json:  cfg.JSON,
	}
}

// WithComponent returns a logger that tags every record with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	c := l.clone()
	c.component = name
	return c
}

// WithError returns a logger that appends the error to every record.
func (l *Logger) WithError(err error) *Logger {
	c := l.clone()
	if err != nil {
		c.fields = append(c.fields, "error", err.Error())
	}
	return c
}

// WithFields returns a logger that appends the given key/value pairs to
// every record.
func (l *Logger) WithFields(kv ...any) *Logger {
	c := l.clone()
	c.fields = append(c.fields, kv...)
	return c
}

func (l *Logger) clone() *Logger {
	fields := make([]any, len(l.fields))
	copy(fields, l.fields)
	return &Logger{
		mu:        l.mu,
		out:       l.out,
		level:     l.level,
		json:      l.json,
		component: l.component,
		fields:    fields,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...any) { l.log(LevelInfo, msg, kv) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...any) { l.log(LevelWarn, msg, kv) }

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }

func (l *Logger) log(level Level, msg string, kv []any) {
	if level < l.level {
		return
	}

	pairs := make([]any, 0, len(l.fields)+len(kv))
	pairs = append(pairs, l.fields...)
	pairs = append(pairs, kv...)

	ts := clock.Now().UTC()

	var line []byte
	if l.json {
		rec := make(map[string]any, 4+len(pairs)/2)
		rec["ts"] = ts.Format("2006-01-02T15:04:05.000Z07:00")
		rec["level"] = level.String()
		if l.component != "" {
			rec["component"] = l.component
		}
		rec["msg"] = msg
		for i := 0; i+1 < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				key = fmt.Sprint(pairs[i])
			}
			rec[key] = normalizeValue(pairs[i+1])
		}
		b, err := json.Marshal(rec)
		if err != nil {
			b = []byte(fmt.Sprintf(`{"level":"error","msg":"log marshal failed: %v"}`, err))
		}
		line = append(b, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString(ts.Format("2006-01-02T15:04:05.000Z"))
		sb.WriteByte(' ')
		sb.WriteString(strings.ToUpper(level.String()))
		if l.component != "" {
			sb.WriteString(" [")
			sb.WriteString(l.component)
			sb.WriteByte(']')
		}
		sb.WriteByte(' ')
		sb.WriteString(msg)
		for i := 0; i+1 < len(pairs); i += 2 {
			sb.WriteByte(' ')
			sb.WriteString(fmt.Sprint(pairs[i]))
			sb.WriteByte('=')
			sb.WriteString(formatValue(pairs[i+1]))
		}
		sb.WriteByte('\n')
		line = []byte(sb.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(line)
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

func formatValue(v any) string {
	s := fmt.Sprint(normalizeValue(v))
	if strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(DefaultConfig()))
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// WithComponent returns a component-tagged logger derived from the default.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

// Debug logs at debug level on the default logger.
func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }

// Info logs at info level on the default logger.
func Info(msg string, kv ...any) { Default().Info(msg, kv...) }

// Warn logs at warn level on the default logger.
func Warn(msg string, kv ...any) { Default().Warn(msg, kv...) }

// Error logs at error level on the default logger.
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
