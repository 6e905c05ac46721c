package listener

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"contractWatch/internal/chain"
	"contractWatch/internal/metrics"
	"contractWatch/internal/model"
)

// ErrNoEndpoint halts the engine when no streaming endpoint is configured.
var ErrNoEndpoint = errors.New("no streaming endpoint configured")

var errReload = errors.New("target set reloaded")

// LogSource is an open connection able to stream logs.
type LogSource interface {
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

// Dialer opens a LogSource.
type Dialer func(ctx context.Context) (LogSource, error)

// Dispatcher runs the actions of a target for a decoded event.
type Dispatcher interface {
	Dispatch(ctx context.Context, target model.Target, ev *model.DecodedEvent) int
}

// Config holds runtime settings for the engine.
type Config struct {
	Endpoint     string
	AbiDir       string
	BackOff      backoff.BackOff
	ProcessYield time.Duration
	DialTimeout  time.Duration
	DedupeWindow int
}

// Engine keeps a log subscription for the active targets and drives every
// received log through decode and dispatch, one at a time.
type Engine struct {
	cfg        Config
	dial       Dialer
	targets    TargetSource
	dispatcher Dispatcher
	logger     *zap.Logger

	state    atomic.Int32
	active   atomic.Pointer[activeSet]
	reloadCh chan struct{}
	reloadMu sync.Mutex

	seen       *seenLogs
	reconnects atomic.Int64
	lastEvent  atomic.Int64
	lastErr    atomic.Value
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State     `json:"state"`
	Targets     []string  `json:"targets"`
	Skipped     []string  `json:"skipped"`
	TopicFilter int       `json:"topic_filter"`
	LoadedAt    time.Time `json:"loaded_at"`
	Reconnects  int64     `json:"reconnects"`
	LastEventAt time.Time `json:"last_event_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// ReloadResult summarises a rebuilt target set.
type ReloadResult struct {
	Targets int      `json:"targets"`
	Skipped []string `json:"skipped"`
}

// NewEngine builds an Engine. A nil dial connects to cfg.Endpoint with the chain client.
func NewEngine(cfg Config, dial Dialer, targets TargetSource, dispatcher Dispatcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BackOff == nil {
		cfg.BackOff, _ = NewBackOff(PolicyExponential, DefaultReconnectDelay, DefaultReconnectMaxDelay)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	e := &Engine{
		cfg:        cfg,
		dial:       dial,
		targets:    targets,
		dispatcher: dispatcher,
		logger:     logger,
		reloadCh:   make(chan struct{}, 1),
		seen:       newSeenLogs(cfg.DedupeWindow),
	}
	if e.dial == nil {
		e.dial = e.dialChain
	}
	return e
}

func (e *Engine) dialChain(ctx context.Context) (LogSource, error) {
	client, err := chain.NewClient(ctx, e.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	if State(e.state.Swap(int32(s))) != s {
		metrics.EngineState.Set(float64(s))
		e.logger.Debug("engine state", zap.Stringer("state", s))
	}
}

// Reload rebuilds the active target set from the source, swaps it in and
// makes a running engine resubscribe with the new filter.
func (e *Engine) Reload(ctx context.Context) (ReloadResult, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	set, err := buildActiveSet(ctx, e.targets, e.cfg.AbiDir, e.logger)
	if err != nil {
		return ReloadResult{}, err
	}
	e.active.Store(set)
	metrics.TrackedTargets.Set(float64(len(set.addresses)))

	select {
	case e.reloadCh <- struct{}{}:
	default:
	}

	e.logger.Info("targets loaded",
		zap.Int("targets", len(set.addresses)),
		zap.Int("skipped", len(set.skipped)),
		zap.Int("topics", len(set.topics)),
	)
	return ReloadResult{Targets: len(set.addresses), Skipped: set.skipped}, nil
}

// Status reports the engine state and active targets.
func (e *Engine) Status() Status {
	st := Status{
		State:      e.State(),
		Targets:    []string{},
		Skipped:    []string{},
		Reconnects: e.reconnects.Load(),
	}
	if set := e.active.Load(); set != nil {
		for _, addr := range set.addresses {
			st.Targets = append(st.Targets, strings.ToLower(addr.Hex()))
		}
		st.Skipped = append(st.Skipped, set.skipped...)
		st.TopicFilter = len(set.topics)
		st.LoadedAt = set.loadedAt
	}
	if ts := e.lastEvent.Load(); ts > 0 {
		st.LastEventAt = time.Unix(0, ts).UTC()
	}
	if msg, ok := e.lastErr.Load().(string); ok {
		st.LastError = msg
	}
	return st
}

// Run keeps the subscription alive until ctx ends. It returns ErrNoEndpoint
// when no endpoint is configured; every other failure leads to a reconnect.
func (e *Engine) Run(ctx context.Context) error {
	if strings.TrimSpace(e.cfg.Endpoint) == "" {
		e.setState(Halted)
		return ErrNoEndpoint
	}
	defer e.setState(Disconnected)

	loaded := e.active.Load() != nil
	// the initial load needs no resubscribe
	select {
	case <-e.reloadCh:
	default:
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !loaded {
			if _, err := e.Reload(ctx); err != nil {
				e.backoff(ctx, fmt.Errorf("initial load: %w", err))
				continue
			}
			loaded = true
			select {
			case <-e.reloadCh:
			default:
			}
		}

		set := e.active.Load()
		if len(set.addresses) == 0 {
			e.setState(IdleWaiting)
			e.logger.Info("no targets loaded, waiting for reload")
			select {
			case <-ctx.Done():
				return nil
			case <-e.reloadCh:
			}
			continue
		}

		err := e.session(ctx, set)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errReload) {
			e.logger.Info("resubscribing with reloaded targets")
			continue
		}

		e.backoff(ctx, err)
	}
}

// backoff records a failure and waits for the next attempt. A reload cuts the wait short.
func (e *Engine) backoff(ctx context.Context, err error) {
	e.lastErr.Store(err.Error())
	e.reconnects.Add(1)
	metrics.Reconnects.Inc()
	delay := e.cfg.BackOff.NextBackOff()
	if delay == backoff.Stop {
		delay = DefaultReconnectDelay
	}
	e.setState(Disconnected)
	e.logger.Warn("subscription unavailable, retrying", zap.Error(err), zap.Duration("delay", delay))
	sleep(ctx, delay, e.reloadCh)
}

func (e *Engine) session(ctx context.Context, set *activeSet) error {
	e.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	source, err := e.dial(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer source.Close()

	logs := make(chan types.Log, 128)
	sub, err := source.SubscribeLogs(ctx, set.addresses, set.topics, logs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	e.cfg.BackOff.Reset()
	e.setState(Subscribed)
	e.logger.Info("subscribed", zap.Int("addresses", len(set.addresses)), zap.Int("topics", len(set.topics)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.reloadCh:
			return errReload
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return fmt.Errorf("stream: %w", err)
		case log := <-logs:
			e.setState(Processing)
			e.process(ctx, set, log)
			e.setState(Subscribed)
			e.yield(ctx)
		}
	}
}

func (e *Engine) process(ctx context.Context, set *activeSet, log types.Log) {
	metrics.LogsReceived.Inc()

	if log.Removed {
		metrics.LogsDropped.WithLabelValues("removed").Inc()
		return
	}
	if e.seen.isDuplicate(log) {
		metrics.LogsDropped.WithLabelValues("duplicate").Inc()
		return
	}

	target, ok := set.lookup(log.Address)
	if !ok {
		metrics.LogsDropped.WithLabelValues("unknown_address").Inc()
		e.logger.Warn("log from unloaded address dropped",
			zap.String("address", log.Address.Hex()),
			zap.String("tx_hash", log.TxHash.Hex()),
		)
		return
	}

	ev, ok := target.decoder.Decode(log)
	if !ok {
		metrics.LogsDropped.WithLabelValues("no_match").Inc()
		return
	}
	ev.ClientID = target.target.ClientID
	metrics.EventsDecoded.WithLabelValues(ev.EventName).Inc()
	e.lastEvent.Store(time.Now().UnixNano())

	e.dispatcher.Dispatch(ctx, target.target, ev)
}

// yield gives other goroutines a chance to run between logs.
func (e *Engine) yield(ctx context.Context) {
	if e.cfg.ProcessYield <= 0 {
		runtime.Gosched()
		return
	}
	sleep(ctx, e.cfg.ProcessYield, nil)
}
