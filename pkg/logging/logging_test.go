package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))
	assert.Same(t, Default(), FromContext(nil))
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger(t)
	ctx := WithLogger(context.Background(), tl.Logger)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithQueueItem(ctx, "q-42")
	ctx = WithFields(ctx, map[string]any{"rows": 3, "dry_run": true})

	FromContext(ctx).Info().Msg("hello")

	assert.Equal(t, "req-1", RequestID(ctx))
	tl.AssertContains(t, `"request_id":"req-1"`)
	tl.AssertContains(t, `"queue_id":"q-42"`)
	tl.AssertContains(t, `"rows":3`)
	tl.AssertContains(t, `"dry_run":true`)
	tl.AssertContains(t, `"message":"hello"`)
}

func TestRequestIDMissing(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}

func TestNewLoggerFromConfig(t *testing.T) {
	old := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })

	cfg := &Config{Level: "warn", Format: "json", Output: "discard"}
	logger := NewLoggerFromConfig(cfg)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("ERROR"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNewWritesJSON(t *testing.T) {
	old := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })

	var buf bytes.Buffer
	logger := New(&buf)
	logger.Info().Str("k", "v").Msg("m")
	assert.Contains(t, buf.String(), `"k":"v"`)
}
