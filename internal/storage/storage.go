package storage

import (
	"context"

	"contractWatch/internal/model"
)

// TargetStore persists the tracking-target collection as a whole.
type TargetStore interface {
	// LoadTargets returns the full persisted collection.
	LoadTargets(ctx context.Context) (model.TargetSet, error)
	// UpdateTargets loads the collection, applies fn and saves the result
	// atomically. Nothing is written when fn returns an error.
	UpdateTargets(ctx context.Context, fn func(model.TargetSet) error) error
}

// SnapshotStore persists the recent-event summaries.
type SnapshotStore interface {
	LoadRecentEvents(ctx context.Context) ([]string, error)
	SaveRecentEvents(ctx context.Context, entries []string) error
}

// EventSink receives archived event records.
type EventSink interface {
	PutEventBatch(records []model.EventRecord) error
}
