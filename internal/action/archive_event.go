package action

import (
	"context"
	"fmt"
	"time"

	"contractWatch/internal/model"
	"contractWatch/internal/storage"
)

// ArchiveEventHandler writes the decoded event to an event sink.
type ArchiveEventHandler struct {
	Sink storage.EventSink
	Now  func() time.Time
}

func NewArchiveEvent(sink storage.EventSink) *ArchiveEventHandler {
	return &ArchiveEventHandler{Sink: sink, Now: time.Now}
}

func (h *ArchiveEventHandler) Handle(_ context.Context, _ model.Target, ev *model.DecodedEvent) error {
	if h.Sink == nil {
		return fmt.Errorf("archive sink is not configured")
	}
	if err := h.Sink.PutEventBatch([]model.EventRecord{ev.Record(h.Now())}); err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	return nil
}
