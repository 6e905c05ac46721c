package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"contractWatch/internal/action"
	"contractWatch/internal/contractabi"
	"contractWatch/internal/listener"
	"contractWatch/internal/model"
	"contractWatch/internal/recent"
	"contractWatch/internal/registry"
)

// ErrEngineUnavailable is returned by engine operations when no engine runs in this process.
var ErrEngineUnavailable = errors.New("subscription engine is not running in this process")

// DefaultActions apply when a request names none.
var DefaultActions = []string{string(action.LogEvent)}

// Engine is the part of the subscription engine the control plane drives.
type Engine interface {
	Reload(ctx context.Context) (listener.ReloadResult, error)
	Status() listener.Status
}

// ABIFetcher downloads a missing interface definition and returns its path.
type ABIFetcher interface {
	Fetch(ctx context.Context, address string) (string, error)
}

// TargetRequest is the input of AddOrUpdateTarget.
type TargetRequest struct {
	Address   string         `json:"contract_address"`
	AbiPath   string         `json:"abi_path"`
	Events    []string       `json:"events"`
	Actions   []string       `json:"actions"`
	ClientID  string         `json:"client_id"`
	ExtraInfo map[string]any `json:"extra_info"`
}

// Status combines engine and recent-log state.
type Status struct {
	Engine       *listener.Status `json:"engine,omitempty"`
	RecentEvents int              `json:"recent_events"`
	KnownActions []string         `json:"known_actions"`
}

// Service implements the control-plane operations over the registry, the
// recent-event log and, when present, the running engine.
type Service struct {
	registry *registry.Registry
	recent   *recent.Log
	engine   Engine
	fetcher  ABIFetcher
	abiDir   string
	logger   *zap.Logger
}

// NewService wires a Service. engine and fetcher may be nil.
func NewService(reg *registry.Registry, log *recent.Log, engine Engine, fetcher ABIFetcher, abiDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: reg,
		recent:   log,
		engine:   engine,
		fetcher:  fetcher,
		abiDir:   abiDir,
		logger:   logger,
	}
}

// AddOrUpdateTarget validates the request, makes sure its interface definition
// is available locally and upserts the target. Changes reach a running engine
// on the next Reload.
func (s *Service) AddOrUpdateTarget(ctx context.Context, req TargetRequest) (string, error) {
	if len(req.Actions) == 0 {
		req.Actions = append([]string(nil), DefaultActions...)
	}
	upsert := registry.UpsertRequest{
		Address:   req.Address,
		Events:    req.Events,
		Actions:   req.Actions,
		ClientID:  req.ClientID,
		ExtraInfo: req.ExtraInfo,
	}
	address, err := s.registry.Validate(upsert)
	if err != nil {
		return "", err
	}

	path, err := s.ensureABI(ctx, address, strings.TrimSpace(req.AbiPath))
	if err != nil {
		return "", err
	}
	upsert.AbiPath = path

	return s.registry.Upsert(ctx, upsert)
}

func (s *Service) ensureABI(ctx context.Context, address, ref string) (string, error) {
	if ref == "" {
		ref = contractabi.FileName(address)
	}
	if !strings.HasSuffix(strings.ToLower(ref), ".json") {
		return "", &registry.ValidationError{Field: "abi_path", Message: fmt.Sprintf("%q must be a .json file", ref)}
	}

	path := contractabi.ResolvePath(s.abiDir, ref)
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat abi: %w", err)
		}
		if s.fetcher == nil {
			return "", &registry.ValidationError{Field: "abi_path", Message: fmt.Sprintf("%s not found", path)}
		}
		s.logger.Info("abi missing, fetching from explorer", zap.String("address", address), zap.String("path", path))
		fetched, err := s.fetcher.Fetch(ctx, address)
		if err != nil {
			return "", &registry.ValidationError{Field: "abi_path", Message: fmt.Sprintf("%s not found and fetch failed: %v", path, err)}
		}
		path = fetched
	}

	if _, err := contractabi.Load(path); err != nil {
		return "", &registry.ValidationError{Field: "abi_path", Message: err.Error()}
	}
	return path, nil
}

// ListTargets returns the targets, optionally only those of clientID.
func (s *Service) ListTargets(ctx context.Context, clientID string) ([]model.Target, error) {
	return s.registry.List(ctx, clientID)
}

// GetTarget returns one target or a NotFoundError.
func (s *Service) GetTarget(ctx context.Context, address string) (model.Target, error) {
	target, ok, err := s.registry.Get(ctx, address)
	if err != nil {
		return model.Target{}, err
	}
	if !ok {
		return model.Target{}, &registry.NotFoundError{Address: model.NormalizeAddress(address)}
	}
	return target, nil
}

// RemoveTarget deletes a target.
func (s *Service) RemoveTarget(ctx context.Context, address string) (string, error) {
	return s.registry.Remove(ctx, address)
}

// GetRecentEvents returns at most count summaries, oldest first.
func (s *Service) GetRecentEvents(count int) []string {
	if s.recent == nil {
		return []string{}
	}
	return s.recent.Last(count)
}

// Reload makes the engine pick up registry changes.
func (s *Service) Reload(ctx context.Context) (listener.ReloadResult, error) {
	if s.engine == nil {
		return listener.ReloadResult{}, ErrEngineUnavailable
	}
	return s.engine.Reload(ctx)
}

func (s *Service) Status() Status {
	st := Status{KnownActions: s.registry.KnownActions()}
	if s.recent != nil {
		st.RecentEvents = s.recent.Len()
	}
	if s.engine != nil {
		engine := s.engine.Status()
		st.Engine = &engine
	}
	return st
}
