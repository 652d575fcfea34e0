package engine

import (
	"context"

	"github.com/HanTheDev/scan-gateway/internal/models"
	"go.uber.org/zap"
)

// LogRecorder writes audit entries to a zap logger. It stands in for the
// Postgres scan log when no database is configured.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.Named("audit")}
}

func (r *LogRecorder) LogScan(ctx context.Context, log *models.ScanLog) error {
	fields := []zap.Field{
		zap.String("request_id", log.RequestID),
		zap.String("account_id", log.AccountID),
		zap.String("outcome", log.Outcome),
		zap.Int("response_time_ms", log.ResponseTimeMs),
		zap.Int64("request_size", log.RequestSize),
		zap.Time("timestamp", log.Timestamp),
	}
	if log.Decision != "" {
		fields = append(fields, zap.String("decision", log.Decision), zap.String("risk", log.Risk))
	}
	if log.FailureKind != "" {
		fields = append(fields, zap.String("failure_kind", log.FailureKind), zap.Int("status_code", log.StatusCode))
	}
	r.logger.Info("Scan audited", fields...)
	return nil
}
