package engine

import (
	"context"
	"log/slog"

	"github.com/seantiz/petroflow/internal/fault"
	"github.com/seantiz/petroflow/internal/store"
)

// RecordSink returns a fault.Options.OnRecord callback that persists
// records to s.
func RecordSink(s store.Store, logger *slog.Logger) func(fault.Record) {
	return func(rec fault.Record) {
		row := &store.ErrorRecord{
			ID:              rec.ID,
			WorkflowID:      rec.Context.WorkflowID,
			Code:            rec.Code,
			Category:        string(rec.Category),
			Severity:        string(rec.Severity),
			Message:         rec.Message,
			UserMessage:     rec.UserMessage,
			WellName:        rec.Context.WellName,
			Operation:       rec.Context.Operation,
			RecoveryAttempt: rec.Context.RecoveryAttempt,
			CreatedAt:       rec.Timestamp,
		}
		if err := s.InsertErrorRecord(context.Background(), row); err != nil {
			logger.Error("failed to persist error record", "error_id", rec.ID, "error", err)
		}
	}
}
