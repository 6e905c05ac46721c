package model

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SummaryTimeLayout is the timestamp prefix of recent-event summaries.
const SummaryTimeLayout = "2006-01-02 15:04:05"

// Args holds decoded event arguments in declaration order.
type Args = orderedmap.OrderedMap[string, any]

// NewArgs returns an empty argument map.
func NewArgs() *Args {
	return orderedmap.New[string, any]()
}

// DecodedEvent is a raw log interpreted against a tracked event definition.
type DecodedEvent struct {
	Address          string
	EventName        string
	Args             *Args
	LogIndex         uint64
	TransactionIndex uint64
	TransactionHash  string
	BlockHash        string
	BlockNumber      uint64
	ClientID         string
}

// Arg returns the decoded argument with the given name.
func (e *DecodedEvent) Arg(name string) (any, bool) {
	if e.Args == nil {
		return nil, false
	}
	return e.Args.Get(name)
}

// ArgsString renders arguments as {name: value, ...} in declaration order.
func (e *DecodedEvent) ArgsString() string {
	var b strings.Builder
	b.WriteString("{")
	if e.Args != nil {
		first := true
		for pair := e.Args.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", pair.Key, FormatValue(pair.Value))
			first = false
		}
	}
	b.WriteString("}")
	return b.String()
}

// Summary is the human-readable line stored in the recent-event log.
func (e *DecodedEvent) Summary(at time.Time) string {
	client := ""
	if e.ClientID != "" {
		client = fmt.Sprintf(" (Client: %s)", e.ClientID)
	}
	return fmt.Sprintf("%s DETECTED: %s on %s - Args: %s (Tx: %s)%s",
		at.Format(SummaryTimeLayout),
		e.EventName,
		e.Address,
		e.ArgsString(),
		e.TransactionHash,
		client,
	)
}

// EventRecord is the JSON form of a DecodedEvent with normalised argument values.
type EventRecord struct {
	Address          string `json:"address"`
	EventName        string `json:"event"`
	Args             *Args  `json:"args"`
	LogIndex         uint64 `json:"log_index"`
	TransactionIndex uint64 `json:"transaction_index"`
	TransactionHash  string `json:"transaction_hash"`
	BlockHash        string `json:"block_hash"`
	BlockNumber      uint64 `json:"block_number"`
	ClientID         string `json:"client_id,omitempty"`
	ObservedAt       string `json:"observed_at"`
}

// Record converts the event into its JSON form.
func (e *DecodedEvent) Record(observedAt time.Time) EventRecord {
	args := NewArgs()
	if e.Args != nil {
		for pair := e.Args.Oldest(); pair != nil; pair = pair.Next() {
			args.Set(pair.Key, JSONValue(pair.Value))
		}
	}
	return EventRecord{
		Address:          e.Address,
		EventName:        e.EventName,
		Args:             args,
		LogIndex:         e.LogIndex,
		TransactionIndex: e.TransactionIndex,
		TransactionHash:  e.TransactionHash,
		BlockHash:        e.BlockHash,
		BlockNumber:      e.BlockNumber,
		ClientID:         e.ClientID,
		ObservedAt:       observedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FormatValue renders a decoded ABI value for display.
func FormatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return typed
	default:
		return fmt.Sprintf("%v", JSONValue(v))
	}
}

// JSONValue converts go-ethereum ABI values into JSON-friendly ones:
// addresses and hashes become hex, big integers decimal strings, bytes 0x-hex.
func JSONValue(v any) any {
	switch typed := v.(type) {
	case common.Address:
		return typed.Hex()
	case common.Hash:
		return typed.Hex()
	case *big.Int:
		if typed == nil {
			return nil
		}
		return typed.String()
	case []byte:
		return hexutil.Encode(typed)
	case nil:
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return hexutil.Encode(buf)
		}
		return listValue(rv)
	case reflect.Slice:
		return listValue(rv)
	default:
		return v
	}
}

func listValue(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = JSONValue(rv.Index(i).Interface())
	}
	return out
}
