package logger

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Attribute keys holding connection strings, their password is never logged
var secretKeys = map[string]bool{
	"dsn":      true,
	"database": true,
}

// slogLogger implements Logger on top of slog.Handler
type slogLogger struct {
	handler slog.Handler
}

func newSlogLogger(h slog.Handler) *slogLogger {
	return &slogLogger{handler: h}
}

// Callers skipped so source points to the code calling Info, Warn, etc.
const callerSkip = 3

func (l *slogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(callerSkip, pcs[:])

	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(args...)
	_ = l.handler.Handle(ctx, record)
}

func (l *slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return newSlogLogger(slog.New(l.handler).With(args...).Handler())
}

func (l *slogLogger) WithGroup(name string) Logger {
	return newSlogLogger(l.handler.WithGroup(name))
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.SourceKey:
		if source, ok := a.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
	case secretKeys[a.Key] && a.Value.Kind() == slog.KindString:
		a.Value = slog.StringValue(redactDSN(a.Value.String()))
	}

	return a
}

// redactDSN masks the password of a postgres URL
// Key/value connection strings can not be parsed safely, so they are hidden entirely
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}
