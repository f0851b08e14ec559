package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	}, "test")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("queue processed", zap.Int("sent", 3))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `"msg":"queue processed"`)
	assert.Contains(t, out, `"sent":3`)
	assert.Contains(t, out, `"severity":"INFO"`)
	assert.Contains(t, out, `"service_name":"tamamo-no-mae"`)
	assert.NotContains(t, out, "hidden")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Output: "stdout"}, "test")
	assert.Error(t, err)
}

func newObservedGorm(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), 100*time.Millisecond, level), logs
}

func TestGormLogger_Trace(t *testing.T) {
	fc := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	t.Run("error", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), fc, errors.New("relation missing"))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "gorm.query", entry.Message)
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	})

	t.Run("record not found is quiet", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now(), fc, gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())
	})

	t.Run("slow query", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "gorm.slow_query", logs.All()[0].Message)
	})

	t.Run("silent", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Warn)
		l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), fc, errors.New("x"))
		assert.Zero(t, logs.Len())
	})

	t.Run("info logs every query at debug", func(t *testing.T) {
		l, logs := newObservedGorm(gormlogger.Info)
		l.Trace(ctx, time.Now(), fc, nil)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	})
}
