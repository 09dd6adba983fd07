package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf, Service: "notifier"})

	log.Info("sent", ChatID("c1"), SuccessCount(2), Err(nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "notifier", rec["service"])
	assert.Equal(t, "c1", rec["chat_id"])
	assert.EqualValues(t, 2, rec["success_count"])
	assert.NotContains(t, rec, "error")
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: slog.LevelWarn, Format: FormatText, Output: &buf})

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestParse(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))

	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
}

func TestContextPropagation(t *testing.T) {
	l := Discard()
	ctx := WithContext(context.Background(), l)

	assert.Same(t, l, FromContext(ctx, nil))

	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContext(context.Background(), nil))
}
