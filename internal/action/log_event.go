package action

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contractWatch/internal/model"
	"contractWatch/internal/recent"
)

// LogEventHandler appends a timestamped summary to the recent-event log.
type LogEventHandler struct {
	Log    *recent.Log
	Now    func() time.Time
	Logger *zap.Logger
}

func NewLogEvent(log *recent.Log, logger *zap.Logger) *LogEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventHandler{Log: log, Now: time.Now, Logger: logger}
}

func (h *LogEventHandler) Handle(_ context.Context, _ model.Target, ev *model.DecodedEvent) error {
	summary := ev.Summary(h.Now())
	h.Log.Append(summary)
	h.Logger.Info("event detected",
		zap.String("event", ev.EventName),
		zap.String("address", ev.Address),
		zap.String("tx_hash", ev.TransactionHash),
		zap.Uint64("block_number", ev.BlockNumber),
		zap.String("client_id", ev.ClientID),
	)
	return nil
}
