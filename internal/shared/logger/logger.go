package logger

import (
	"context"
	"os"
	"strings"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/contextkeys"
)

// Logger is the structured logging surface every storage component takes.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// Settings selects the backend and output of NewLoggerFrom.
type Settings struct {
	Backend string // "logrus" (default) or "zap"
	Level   string
	JSON    bool
}

// SettingsFromEnv reads LOG_BACKEND and LOG_LEVEL. Output is JSON when
// LOG_FORMAT=json or ENVIRONMENT names production.
func SettingsFromEnv() Settings {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return Settings{
		Backend: strings.ToLower(os.Getenv("LOG_BACKEND")),
		Level:   os.Getenv("LOG_LEVEL"),
		JSON:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") || env == "production" || env == "prod",
	}
}

// NewLogger builds the process logger from the environment.
func NewLogger() Logger {
	return NewLoggerFrom(SettingsFromEnv())
}

// NewLoggerFrom builds a logger writing to stdout.
func NewLoggerFrom(s Settings) Logger {
	if s.Backend == "zap" {
		return NewZapLogger(s.Level, s.JSON)
	}
	return NewLogrusLogger(s.Level, s.JSON, os.Stdout)
}

var contextFieldNames = []struct {
	key   interface{}
	field string
}{
	{contextkeys.GuildIDKey, "guild_id"},
	{contextkeys.UserIDKey, "user_id"},
	{contextkeys.CommandKey, "command"},
	{contextkeys.RequestIDKey, "request_id"},
	{contextkeys.ComponentKey, "component"},
	{contextkeys.OperationKey, "operation"},
}

// contextFields collects the non-empty request identifiers carried by ctx.
func contextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{}, len(contextFieldNames))
	if ctx == nil {
		return fields
	}
	for _, k := range contextFieldNames {
		if s, ok := ctx.Value(k.key).(string); ok && s != "" {
			fields[k.field] = s
		}
	}
	return fields
}
