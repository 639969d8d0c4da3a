// Package logging builds the process logger and carries request-scoped fields
// (request id, user id, client ip) through context.Context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
	clientIPKey  ctxKey = "client_ip"
	loggerKey    ctxKey = "logger"
)

// New returns a logrus logger writing to stdout. format is "json" or "text";
// unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stdout)
}

func NewWithOutput(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// WithLogger stores the base logger so FromContext can find it.
func WithLogger(ctx context.Context, logger *logrus.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func RequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

func UserID(ctx context.Context) string { return stringValue(ctx, userIDKey) }

func ClientIP(ctx context.Context) string { return stringValue(ctx, clientIPKey) }

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

// FromContext returns an entry tagged with whatever request fields the context carries.
// Without a stored logger it uses logrus' standard logger.
func FromContext(ctx context.Context) *logrus.Entry {
	logger := logrus.StandardLogger()
	if ctx != nil {
		if stored, ok := ctx.Value(loggerKey).(*logrus.Logger); ok && stored != nil {
			logger = stored
		}
	}

	fields := logrus.Fields{}
	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := UserID(ctx); id != "" {
		fields["user_id"] = id
	}
	return logger.WithFields(fields)
}
