package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})

	log.Info("download requested", "book_id", "book-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "download requested", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "book-1", entry["book_id"])
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		environment string
		wantJSON    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			var buf bytes.Buffer
			New(Config{Environment: tt.environment, Level: slog.LevelInfo, Writer: &buf}).Info("hello")

			assert.Equal(t, tt.wantJSON, json.Valid(buf.Bytes()))
		})
	}
}

func TestRedaction(t *testing.T) {
	for _, format := range []string{"json", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: slog.LevelInfo, Format: format, Writer: &buf})

			log.Info("connecting", "redis_password", "hunter2", "access_token", "v4.local.abc", "addr", "localhost:6379")

			out := buf.String()
			assert.NotContains(t, out, "hunter2")
			assert.NotContains(t, out, "v4.local.abc")
			assert.Contains(t, out, Redacted)
			assert.Contains(t, out, "localhost:6379")
		})
	}
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive("Authorization"))
	assert.True(t, IsSensitive("MINIO_SECRET_KEY"))
	assert.True(t, IsSensitive("minio_access_key"))
	assert.False(t, IsSensitive("book_id"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	assert.True(t, NewPrettyHandler(&bytes.Buffer{}, nil).Enabled(context.Background(), slog.LevelInfo))
}

func TestPrettyHandler_LevelFormatting(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
		require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), tt.level, "msg", 0)))
		assert.Contains(t, buf.String(), tt.want)
	}
}

func TestPrettyHandler_Attributes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.With("user_id", "user-1").
		WithGroup("download").
		Info("progress reported", "progress", 40, "status", "DOWNLOADING", "message", "disk full")

	out := buf.String()
	assert.Contains(t, out, "user_id=user-1")
	assert.Contains(t, out, "download.progress=40")
	assert.Contains(t, out, "download.status=DOWNLOADING")
	assert.Contains(t, out, `download.message="disk full"`)
}

func TestPrettyHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.Info("resolved", slog.Group("source", slog.String("file_type", "EPUB"), slog.Bool("remote", false)))

	assert.Contains(t, buf.String(), "source.file_type=EPUB")
	assert.Contains(t, buf.String(), "source.remote=false")
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-01T09:00:00Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1m30s", formatValue(slog.DurationValue(90*time.Second)))
	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `"two words"`, formatValue(slog.StringValue("two words")))
	assert.Equal(t, "42", formatValue(slog.IntValue(42)))
}

func TestLogger_ScopeHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})

	log.ForBook("user-1", "book-1").WithError(errors.New("boom")).Info("sync failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "book-1", entry["book_id"])
	assert.Equal(t, "boom", entry["error"])

	buf.Reset()
	log.ForUser("user-2").Info("connected")
	assert.Contains(t, buf.String(), `"user_id":"user-2"`)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelWarn, Format: "json", Writer: &buf})

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
