package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"contractWatch/internal/model"
	"contractWatch/internal/storage"
)

// UpsertRequest describes one add-or-update call.
type UpsertRequest struct {
	Address   string
	AbiPath   string
	Events    []string
	Actions   []string
	ClientID  string
	ExtraInfo map[string]any
}

// Registry owns the persisted set of tracking targets.
type Registry struct {
	store  storage.TargetStore
	known  mapset.Set[string]
	logger *zap.Logger

	// mu serialises load-modify-save cycles issued through this process.
	mu sync.Mutex
}

// New builds a Registry accepting only the given action identifiers.
func New(store storage.TargetStore, knownActions []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		known:  mapset.NewSet(knownActions...),
		logger: logger,
	}
}

// Validate checks a request without touching storage and returns the
// normalised address.
func (r *Registry) Validate(req UpsertRequest) (string, error) {
	address := strings.TrimSpace(req.Address)
	if err := ValidateAddress(address); err != nil {
		return "", err
	}
	if len(cleanNames(req.Events)) == 0 {
		return "", &ValidationError{Field: "events", Message: "at least one event name is required"}
	}
	unknown := lo.Filter(req.Actions, func(id string, _ int) bool {
		return !r.known.Contains(id)
	})
	if len(unknown) > 0 {
		valid := r.known.ToSlice()
		sort.Strings(valid)
		return "", &ValidationError{
			Field:   "actions",
			Message: fmt.Sprintf("unknown action(s) %v, valid actions are %v", unknown, valid),
		}
	}
	return model.NormalizeAddress(address), nil
}

// Upsert validates and stores a target, replacing any existing entry for the address.
func (r *Registry) Upsert(ctx context.Context, req UpsertRequest) (string, error) {
	address, err := r.Validate(req)
	if err != nil {
		return "", err
	}

	record := model.TargetRecord{
		AbiPath:       req.AbiPath,
		TrackedEvents: cleanNames(req.Events),
		Actions:       append([]string{}, req.Actions...),
		ClientID:      req.ClientID,
	}
	if len(req.ExtraInfo) > 0 {
		record.ExtraInfo = make(map[string]any, len(req.ExtraInfo))
		for k, v := range req.ExtraInfo {
			record.ExtraInfo[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.store.UpdateTargets(ctx, func(targets model.TargetSet) error {
		targets[address] = record
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("save targets: %w", err)
	}

	r.logger.Info("target upserted",
		zap.String("address", address),
		zap.Strings("events", record.TrackedEvents),
		zap.Strings("actions", record.Actions),
		zap.String("client_id", req.ClientID),
	)
	return fmt.Sprintf("Contract %s added/updated for client %s.", address, clientLabel(req.ClientID)), nil
}

// Remove deletes the target for address.
func (r *Registry) Remove(ctx context.Context, address string) (string, error) {
	address = model.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.UpdateTargets(ctx, func(targets model.TargetSet) error {
		if _, ok := targets[address]; !ok {
			return &NotFoundError{Address: address}
		}
		delete(targets, address)
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("target removed", zap.String("address", address))
	return fmt.Sprintf("Contract %s removed.", address), nil
}

// List returns targets sorted by address, restricted to clientID when it is not empty.
func (r *Registry) List(ctx context.Context, clientID string) ([]model.Target, error) {
	targets, err := r.store.LoadTargets(ctx)
	if err != nil {
		return nil, err
	}
	out := lo.Filter(targets.Targets(), func(t model.Target, _ int) bool {
		return clientID == "" || t.ClientID == clientID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Get returns the target for address, if configured.
func (r *Registry) Get(ctx context.Context, address string) (model.Target, bool, error) {
	address = model.NormalizeAddress(address)
	targets, err := r.store.LoadTargets(ctx)
	if err != nil {
		return model.Target{}, false, err
	}
	rec, ok := targets[address]
	if !ok {
		return model.Target{}, false, nil
	}
	return model.Target{Address: address, TargetRecord: rec.Clone()}, true, nil
}

// Snapshot returns an independent copy of the full collection.
func (r *Registry) Snapshot(ctx context.Context) (model.TargetSet, error) {
	targets, err := r.store.LoadTargets(ctx)
	if err != nil {
		return nil, err
	}
	return targets.Clone(), nil
}

// KnownActions lists the accepted action identifiers.
func (r *Registry) KnownActions() []string {
	names := r.known.ToSlice()
	sort.Strings(names)
	return names
}

func clientLabel(clientID string) string {
	if clientID == "" {
		return "(none)"
	}
	return clientID
}
