package decoder

import (
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"contractWatch/internal/contractabi"
	"contractWatch/internal/model"
)

var errSignatureMismatch = errors.New("topic0 does not match event signature")

// Decoder matches raw logs of one contract against its tracked events.
type Decoder struct {
	candidates []abi.Event
}

// New selects the tracked events of def in declaration order. It also returns
// the tracked names that def does not declare.
func New(def *contractabi.Definition, tracked []string) (*Decoder, []string) {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, name := range tracked {
		if name = strings.TrimSpace(name); name != "" {
			names.Add(name)
		}
	}

	found := mapset.NewThreadUnsafeSet[string]()
	candidates := make([]abi.Event, 0, names.Cardinality())
	if def != nil {
		for _, event := range def.Events {
			if names.Contains(event.RawName) {
				candidates = append(candidates, event)
				found.Add(event.RawName)
			}
		}
	}

	var missing []string
	for _, name := range tracked {
		name = strings.TrimSpace(name)
		if name != "" && !found.Contains(name) {
			missing = append(missing, name)
		}
	}
	return &Decoder{candidates: candidates}, missing
}

// Events returns the candidate events in match order.
func (d *Decoder) Events() []abi.Event {
	return append([]abi.Event(nil), d.candidates...)
}

// Topics returns the signature hashes of the candidates. ok is false when an
// anonymous candidate makes topic0 filtering unsafe.
func (d *Decoder) Topics() (topics []common.Hash, ok bool) {
	for _, event := range d.candidates {
		if event.Anonymous {
			return nil, false
		}
		topics = append(topics, event.ID)
	}
	return topics, true
}

// Decode returns the first candidate that decodes log, or false when none does.
func (d *Decoder) Decode(log types.Log) (*model.DecodedEvent, bool) {
	for _, event := range d.candidates {
		args, err := decodeEvent(event, log)
		if err != nil {
			continue
		}
		return &model.DecodedEvent{
			Address:          strings.ToLower(log.Address.Hex()),
			EventName:        event.RawName,
			Args:             args,
			LogIndex:         uint64(log.Index),
			TransactionIndex: uint64(log.TxIndex),
			TransactionHash:  log.TxHash.Hex(),
			BlockHash:        log.BlockHash.Hex(),
			BlockNumber:      log.BlockNumber,
		}, true
	}
	return nil, false
}

func decodeEvent(event abi.Event, log types.Log) (*model.Args, error) {
	if !event.Anonymous && (len(log.Topics) == 0 || log.Topics[0] != event.ID) {
		return nil, errSignatureMismatch
	}

	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	args := model.NewArgs()
	for _, input := range event.Inputs {
		value, ok := values[input.Name]
		if !ok {
			return nil, fmt.Errorf("missing argument %s", input.Name)
		}
		args.Set(input.Name, value)
	}
	return args, nil
}

func parseIndexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	expected := len(indexedArguments(event.Inputs))
	if !event.Anonymous {
		expected++
	}
	if len(topics) != expected {
		return nil, fmt.Errorf("expected %d topics, got %d", expected, len(topics))
	}
	if event.Anonymous {
		return topics, nil
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
