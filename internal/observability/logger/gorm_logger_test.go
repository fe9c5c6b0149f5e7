package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/freightdesk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestNewGormLoggerConfig(t *testing.T) {
	cfg := NewGormLoggerConfig(0, false)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowThreshold)
	assert.Equal(t, gormlogger.Warn, cfg.Level)
	assert.True(t, cfg.IgnoreRecordNotFound)

	cfg = NewGormLoggerConfig(50*time.Millisecond, true)
	assert.Equal(t, 50*time.Millisecond, cfg.SlowThreshold)
	assert.Equal(t, gormlogger.Info, cfg.Level)
}

func TestStatementTarget(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{`SELECT * FROM "ap_records" WHERE org_id = $1`, "SELECT", "ap_records"},
		{`INSERT INTO ap_charge_lines (record_id) VALUES ($1)`, "INSERT", "ap_charge_lines"},
		{"UPDATE `ap_records` SET total_payables = ?", "UPDATE", "ap_records"},
		{`DELETE FROM public.audit_logs`, "DELETE", "audit_logs"},
		{`WITH seq AS (SELECT 1) SELECT * FROM seq`, "SELECT", "seq"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := statementTarget(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestTraceLogsSlowQueries(t *testing.T) {
	logs := observe(t)
	l := NewGormLogger(NewGormLoggerConfig(10*time.Millisecond, false))

	fc := func() (string, int64) { return `UPDATE "ap_records" SET bir_percentage = $1`, 1 }
	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	l.Trace(context.Background(), time.Now(), fc, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gorm.slow_query", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ap_records", fields["table"])
	assert.Equal(t, "UPDATE", fields["operation"])
	assert.Equal(t, int64(10), fields["slow_threshold_ms"])
}

func TestTraceSkipsRecordNotFound(t *testing.T) {
	logs := observe(t)
	l := NewGormLogger(NewGormLoggerConfig(time.Second, false))
	fc := func() (string, int64) { return `SELECT * FROM ap_records`, 0 }

	l.Trace(context.Background(), time.Now(), fc, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestWithContextOmitsUnsetFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	ctx := obscontext.WithOrgID(obscontext.WithRequestID(context.Background(), "req-1"), "42")
	WithContext(ctx, base).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].ContextMap())
	assert.Equal(t, map[string]any{"request_id": "req-1", "org_id": "42"}, entries[1].ContextMap())
}
