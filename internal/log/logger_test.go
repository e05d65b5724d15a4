package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAddsRequestIDAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, ComponentServer)

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "Action applied", "action_id", "a-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec[FieldRequestID])
	assert.Equal(t, ComponentServer, rec[FieldComponent])
	assert.Equal(t, "a-1", rec["action_id"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, "")

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.WithGroup("queue").Warn("shown", "attempt", 2)
	assert.Contains(t, buf.String(), `"queue":{"attempt":2}`)
	assert.NotContains(t, buf.String(), FieldComponent)
}

func TestRequestIDAbsent(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))

	ctx := WithRequestID(context.Background(), "")
	assert.Empty(t, RequestID(ctx))
}
