package engine

import (
	"context"
	"testing"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogRecorder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := NewLogRecorder(zap.New(core))

	err := rec.LogScan(context.Background(), &models.ScanLog{
		RequestID:   "req-1",
		AccountID:   "42",
		Outcome:     string(KindRemoteFailed),
		FailureKind: string(FailureTimeout),
		Timestamp:   time.Unix(0, 0),
	})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "42", fields["account_id"])
	assert.Equal(t, "remote_failed", fields["outcome"])
	assert.Equal(t, "timeout", fields["failure_kind"])
	assert.NotContains(t, fields, "decision")
}
