package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warning "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestIsProdEnv(t *testing.T) {
	assert.True(t, isProdEnv("production"))
	assert.True(t, isProdEnv("Staging"))
	assert.False(t, isProdEnv("dev"))
	assert.False(t, isProdEnv(""))
}

func TestFromFallsBackToSingleton(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("hello", KeyID("k1"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "k1", logs.All()[0].ContextMap()["kid"])
}

func TestFromUsesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core).With(RequestID("r-1")))

	FromWithFields(ctx, ProcessID("p-1")).Info("scoped")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "p-1", fields["process_id"])
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	l := build(Config{Env: "dev", Level: "debug", FilePath: path})
	require.NotNil(t, l)
	l.Info("written to file")
	_ = l.Sync()
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "node.*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}
