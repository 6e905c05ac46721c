package action

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"contractWatch/internal/metrics"
	"contractWatch/internal/model"
)

// ID identifies a built-in action.
type ID string

const (
	LogEvent     ID = "log_event"
	CheckValue   ID = "check_value"
	ArchiveEvent ID = "archive_event"
)

// Builtin lists every action a deployment must provide a handler for.
var Builtin = []ID{LogEvent, CheckValue, ArchiveEvent}

// Handler reacts to a decoded event of a target.
type Handler interface {
	Handle(ctx context.Context, target model.Target, ev *model.DecodedEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, target model.Target, ev *model.DecodedEvent) error

func (f HandlerFunc) Handle(ctx context.Context, target model.Target, ev *model.DecodedEvent) error {
	return f(ctx, target, ev)
}

// Dispatcher runs the configured actions of a target in order.
type Dispatcher struct {
	handlers map[ID]Handler
	logger   *zap.Logger
}

// NewDispatcher requires exactly one handler per Builtin action.
func NewDispatcher(handlers map[ID]Handler, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[ID]bool, len(Builtin))
	for _, id := range Builtin {
		known[id] = true
		if handlers[id] == nil {
			return nil, fmt.Errorf("no handler registered for action %s", id)
		}
	}
	for id := range handlers {
		if !known[id] {
			return nil, fmt.Errorf("handler registered for unknown action %s", id)
		}
	}

	table := make(map[ID]Handler, len(handlers))
	for id, h := range handlers {
		table[id] = h
	}
	return &Dispatcher{handlers: table, logger: logger}, nil
}

// Names returns the known action identifiers, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for id := range d.handlers {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// Dispatch invokes every action on the target. A failing or panicking action
// is logged and does not stop the remaining ones. It returns the number of
// actions that did not complete.
func (d *Dispatcher) Dispatch(ctx context.Context, target model.Target, ev *model.DecodedEvent) int {
	failed := 0
	for _, name := range target.Actions {
		handler, ok := d.handlers[ID(name)]
		if !ok {
			metrics.ActionRuns.WithLabelValues(name, "unknown").Inc()
			d.logger.Warn("unknown action skipped", zap.String("action", name), zap.String("address", target.Address))
			failed++
			continue
		}

		start := time.Now()
		err := d.run(ctx, handler, target, ev)
		metrics.ActionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ActionRuns.WithLabelValues(name, "error").Inc()
			d.logger.Warn("action failed",
				zap.String("action", name),
				zap.String("address", target.Address),
				zap.String("event", ev.EventName),
				zap.String("tx_hash", ev.TransactionHash),
				zap.Error(err),
			)
			failed++
			continue
		}
		metrics.ActionRuns.WithLabelValues(name, "ok").Inc()
	}
	return failed
}

func (d *Dispatcher) run(ctx context.Context, handler Handler, target model.Target, ev *model.DecodedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler.Handle(ctx, target, ev)
}
