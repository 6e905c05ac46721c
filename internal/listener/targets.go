package listener

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"contractWatch/internal/contractabi"
	"contractWatch/internal/decoder"
	"contractWatch/internal/model"
)

// TargetSource supplies the persisted target collection.
type TargetSource interface {
	Snapshot(ctx context.Context) (model.TargetSet, error)
}

type activeTarget struct {
	target  model.Target
	decoder *decoder.Decoder
}

// activeSet is the engine-local, immutable view of the targets being watched.
type activeSet struct {
	targets   map[common.Address]activeTarget
	addresses []common.Address
	topics    []common.Hash
	skipped   []string
	loadedAt  time.Time
}

func (s *activeSet) lookup(address common.Address) (activeTarget, bool) {
	t, ok := s.targets[address]
	return t, ok
}

// buildActiveSet loads every target's interface definition. Targets whose
// definition cannot be loaded or that declare none of their tracked events
// are skipped.
func buildActiveSet(ctx context.Context, source TargetSource, abiDir string, logger *zap.Logger) (*activeSet, error) {
	set, err := source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	active := &activeSet{
		targets:  make(map[common.Address]activeTarget, len(set)),
		loadedAt: time.Now().UTC(),
	}
	filterTopics := true
	var topics []common.Hash

	for _, target := range set.Targets() {
		if !common.IsHexAddress(target.Address) {
			logger.Warn("target skipped: invalid address", zap.String("address", target.Address))
			active.skipped = append(active.skipped, target.Address)
			continue
		}

		path := contractabi.ResolvePath(abiDir, target.AbiPath)
		def, err := contractabi.Load(path)
		if err != nil {
			logger.Warn("target skipped: interface definition unavailable",
				zap.String("address", target.Address),
				zap.String("abi_path", path),
				zap.Error(err),
			)
			active.skipped = append(active.skipped, target.Address)
			continue
		}

		dec, missing := decoder.New(def, target.TrackedEvents)
		if len(missing) > 0 {
			logger.Warn("tracked events not declared in interface definition",
				zap.String("address", target.Address),
				zap.Strings("events", missing),
			)
		}
		if len(dec.Events()) == 0 {
			logger.Warn("target skipped: no tracked event can be decoded", zap.String("address", target.Address))
			active.skipped = append(active.skipped, target.Address)
			continue
		}

		if eventTopics, ok := dec.Topics(); ok {
			topics = append(topics, eventTopics...)
		} else {
			filterTopics = false
		}

		address := common.HexToAddress(target.Address)
		active.targets[address] = activeTarget{target: target, decoder: dec}
		active.addresses = append(active.addresses, address)
	}

	sort.Slice(active.addresses, func(i, j int) bool {
		return active.addresses[i].Hex() < active.addresses[j].Hex()
	})
	sort.Strings(active.skipped)
	if filterTopics {
		active.topics = lo.Uniq(topics)
	}
	return active, nil
}
