package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Format: "json", Service: "luma-test", Output: &buf})

	log.Info("session created", SessionIDField("session-abc"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session created", entry["msg"])
	assert.Equal(t, "luma-test", entry["service"])
	assert.Equal(t, "session-abc", entry["session_id"])
}

func TestWithFieldsIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: InfoLevel, Format: "json", Output: &buf})

	derived := base.WithFields(StringField("component", "poller"))

	buf.Reset()
	base.Info("base message")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry["component"]
	assert.False(t, ok, "base logger must not inherit derived fields")

	buf.Reset()
	derived.Info("derived message")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "poller", entry["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: WarnLevel, Format: "json", Output: &buf})

	log.Debug("ignored")
	log.Info("ignored")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in))
	}
}

func TestCorrelationIDContextRoundtrip(t *testing.T) {
	ctx := WithCorrelationIDContext(context.Background(), "cid-123")
	assert.Equal(t, "cid-123", GetCorrelationIDFromContext(ctx))
	assert.Empty(t, GetCorrelationIDFromContext(context.Background()))
}

func TestHTTPMiddlewareLogsRequestAndResponse(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Format: "json", Output: &buf})

	handler := log.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/counselees/session/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, "HTTP request received")
	assert.Contains(t, out, "HTTP response sent")
	assert.Contains(t, out, "418")
	assert.Contains(t, out, "/api/counselees/session/start")
}
