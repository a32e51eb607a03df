package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerInterface_Contract(t *testing.T) {
	var _ Logger = NewLogger()
	var _ Logger = NewLogrusLogger("info", true, io.Discard)
	var _ Logger = NewZapLogger("debug", true)
	var _ Logger = NewNopLogger()
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LOG_BACKEND", "ZAP")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("ENVIRONMENT", "production")

	s := SettingsFromEnv()
	assert.Equal(t, Settings{Backend: "zap", Level: "warn", JSON: true}, s)

	t.Setenv("ENVIRONMENT", "development")
	assert.False(t, SettingsFromEnv().JSON)
	t.Setenv("LOG_FORMAT", "json")
	assert.True(t, SettingsFromEnv().JSON)
}

func TestLogrusLogger_JSONCarriesContextAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrusLogger("DEBUG", true, &buf)

	ctx := context.WithValue(context.Background(), contextkeys.GuildIDKey, "guild-1")
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, "")
	log.WithContext(ctx).WithComponent("connection-manager").
		WithFields(map[string]interface{}{"collection": "polls"}).
		Debugf("loaded %d docs", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "loaded 2 docs", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "guild-1", entry["guild_id"])
	assert.Equal(t, "connection-manager", entry["component"])
	assert.Equal(t, "polls", entry["collection"])
	assert.NotContains(t, entry, "user_id")
	assert.Contains(t, entry, "timestamp")
}

func TestLogrusLogger_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrusLogger("chatty", false, &buf)

	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLoggerFrom_SelectsBackend(t *testing.T) {
	_, ok := NewLoggerFrom(Settings{Backend: "zap"}).(*ZapLogger)
	assert.True(t, ok)
	_, ok = NewLoggerFrom(Settings{}).(*LogrusLogger)
	assert.True(t, ok)
}

func TestNewLogger_ZapBackend(t *testing.T) {
	t.Setenv("LOG_BACKEND", "zap")
	_, ok := NewLogger().(*ZapLogger)
	assert.True(t, ok)
}

func TestZapLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core))

	ctx := context.WithValue(context.Background(), contextkeys.GuildIDKey, "G1")
	ctx = context.WithValue(ctx, contextkeys.CommandKey, "level")
	log.WithContext(ctx).WithComponent("repo").Infof("loaded %d docs", 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "loaded 3 docs", entries[0].Message)
		assert.Equal(t, "G1", fields["guild_id"])
		assert.Equal(t, "level", fields["command"])
		assert.Equal(t, "repo", fields["component"])
	}
}

func TestZapLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZapLoggerFrom(zap.New(core))

	log.WithFields(map[string]interface{}{"collection": "polls"}).Warn("slow query")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "polls", entries[0].ContextMap()["collection"])
	}
}
