package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a textual level ("debug", "info", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

func (l *BaseLogger) logAt(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	attrs := attrsFromFieldSlice(fields)
	base := attrsFromMap(l.fields)
	all := append(base, attrs...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, all...)
	if level == FatalLevel {
		os.Exit(1)
	}
}

// Debug logs a message at debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) { l.logAt(DebugLevel, msg, fields) }

// Info logs a message at info level.
func (l *BaseLogger) Info(msg string, fields ...Field) { l.logAt(InfoLevel, msg, fields) }

// Warn logs a message at warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) { l.logAt(WarnLevel, msg, fields) }

// Error logs a message at error level.
func (l *BaseLogger) Error(msg string, fields ...Field) { l.logAt(ErrorLevel, msg, fields) }

// Fatal logs a message at fatal level and exits.
func (l *BaseLogger) Fatal(msg string, fields ...Field) { l.logAt(FatalLevel, msg, fields) }

func (l *BaseLogger) logfAt(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	attrs := append(attrsFromMap(l.fields), argsToAttrs(args)...)
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrs...)
	if level == FatalLevel {
		os.Exit(1)
	}
}

// Debugf logs a message at debug level with key-value args.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.logfAt(DebugLevel, msg, args) }

// Infof logs a message at info level with key-value args.
func (l *BaseLogger) Infof(msg string, args ...interface{}) { l.logfAt(InfoLevel, msg, args) }

// Warnf logs a message at warn level with key-value args.
func (l *BaseLogger) Warnf(msg string, args ...interface{}) { l.logfAt(WarnLevel, msg, args) }

// Errorf logs a message at error level with key-value args.
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.logfAt(ErrorLevel, msg, args) }

// Fatalf logs a message at fatal level with key-value args and exits.
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) { l.logfAt(FatalLevel, msg, args) }

func (l *BaseLogger) clone() *BaseLogger {
	nf := make(Fields, len(l.fields))
	for k, v := range l.fields {
		nf[k] = v
	}
	nl := &BaseLogger{
		level:     l.level,
		fields:    nf,
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	nl.slogLogger = slog.New(newBridgeHandler(nl))
	return nl
}

// WithField returns a logger with one extra field.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	nl := l.clone()
	nl.fields[key] = value
	return nl
}

// WithFields returns a logger with extra fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	nl := l.clone()
	for k, v := range fields {
		nl.fields[k] = v
	}
	return nl
}

// WithError returns a logger carrying the error under the "error" key.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// With returns a logger with the provided structured fields attached.
func (l *BaseLogger) With(fields ...Field) Logger {
	nl := l.clone()
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
	}
	return nl
}

// WithContext attaches request-scoped fields extracted from ctx.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(ContextExtractor(ctx))
}

// WithComponent tags the logger with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level { return l.level }
