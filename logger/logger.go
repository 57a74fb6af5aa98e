// Package logger provides a leveled logfmt logger that travels in a
// context.Context.
package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Level is the minimum severity a logger writes.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	CRIT
)

var levelNames = map[Level]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
	CRIT:  "crit",
}

func (lvl Level) String() string {
	if s, ok := levelNames[lvl]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(lvl))
}

// ParseLevel parses a level name such as "info" or "ERROR". Unknown names
// yield an error and the INFO level.
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for lvl, name := range levelNames {
		if name == want {
			return lvl, nil
		}
	}
	return INFO, errors.Errorf("logger: unknown level %q", s)
}

// DefaultLogger is used by the package level functions when the context does
// not carry a Logger.
var DefaultLogger Logger = New(log.New(os.Stdout, "", log.LstdFlags), INFO)

// Logger represents a structured leveled logger.
type Logger interface {
	Debug(msg string, pairs ...interface{})
	Info(msg string, pairs ...interface{})
	Warn(msg string, pairs ...interface{})
	Error(msg string, pairs ...interface{})
	Crit(msg string, pairs ...interface{})

	// With returns a Logger that prefixes every line with pairs.
	With(pairs ...interface{}) Logger
}

type logger struct {
	*log.Logger
	level  Level
	prefix []interface{}
}

// New wraps the log.Logger to implement the Logger interface. Messages below
// level are discarded.
func New(l *log.Logger, level Level) Logger {
	return &logger{Logger: l, level: level}
}

func (l *logger) With(pairs ...interface{}) Logger {
	prefix := make([]interface{}, 0, len(l.prefix)+len(pairs))
	prefix = append(prefix, l.prefix...)
	prefix = append(prefix, pairs...)
	return &logger{Logger: l.Logger, level: l.level, prefix: prefix}
}

func (l *logger) Debug(msg string, pairs ...interface{}) { l.log(DEBUG, msg, pairs...) }
func (l *logger) Info(msg string, pairs ...interface{})  { l.log(INFO, msg, pairs...) }
func (l *logger) Warn(msg string, pairs ...interface{})  { l.log(WARN, msg, pairs...) }
func (l *logger) Error(msg string, pairs ...interface{}) { l.log(ERROR, msg, pairs...) }
func (l *logger) Crit(msg string, pairs ...interface{})  { l.log(CRIT, msg, pairs...) }

func (l *logger) log(lvl Level, msg string, pairs ...interface{}) {
	if lvl < l.level {
		return
	}
	all := pairs
	if len(l.prefix) > 0 {
		all = append(append([]interface{}{}, l.prefix...), pairs...)
	}
	l.Println(fmt.Sprintf("status=%s", lvl), msg, message(all...))
}

// message renders pairs in logfmt. A trailing unpaired value is written as is:
//
//	["key", "value", "message"] => key=value message
func message(pairs ...interface{}) string {
	if len(pairs) == 1 {
		return fmt.Sprintf("%v", pairs[0])
	}

	parts := make([]string, 0, len(pairs)/2+1)
	for i := 0; i < len(pairs); i += 2 {
		if len(pairs) == i+1 {
			parts = append(parts, fmt.Sprintf("%v", pairs[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%v", pairs[i], pairs[i+1]))
		}
	}
	return strings.Join(parts, " ")
}

// WithLogger inserts a Logger into the provided context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the Logger stored in ctx, or DefaultLogger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return DefaultLogger
}

func Debug(ctx context.Context, msg string, pairs ...interface{}) {
	FromContext(ctx).Debug(msg, pairs...)
}

func Info(ctx context.Context, msg string, pairs ...interface{}) {
	FromContext(ctx).Info(msg, pairs...)
}

func Warn(ctx context.Context, msg string, pairs ...interface{}) {
	FromContext(ctx).Warn(msg, pairs...)
}

func Error(ctx context.Context, msg string, pairs ...interface{}) {
	FromContext(ctx).Error(msg, pairs...)
}

func Crit(ctx context.Context, msg string, pairs ...interface{}) {
	FromContext(ctx).Crit(msg, pairs...)
}

type key int

const (
	loggerKey key = iota
)
