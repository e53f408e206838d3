package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestZapGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapGormLogger(zap.New(core), logger.Warn, false, 0)
	require.Equal(t, defaultSlowThreshold, l.SlowThreshold)

	ctx := context.Background()
	sql := func() (string, int64) { return "INSERT INTO badge_grants", 0 }

	l.Trace(ctx, time.Now(), sql, gorm.ErrDuplicatedKey)
	l.Trace(ctx, time.Now(), sql, logger.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), sql, errors.New("connection reset"))
	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	l.Trace(ctx, time.Now(), sql, nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	require.Equal(t, "gorm.duplicate_key", entries[0].Message)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "gorm.query", entries[1].Message)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "gorm.slow_query", entries[2].Message)

	silent := l.LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("ignored"))
	require.Len(t, logs.AllUntimed(), 3)
}
