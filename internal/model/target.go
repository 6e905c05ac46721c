package model

import (
	"fmt"
	"strings"
)

// TargetRecord is the persisted configuration of one monitored contract.
type TargetRecord struct {
	AbiPath       string         `json:"abi_path"`
	TrackedEvents []string       `json:"tracked_events"`
	Actions       []string       `json:"actions"`
	ClientID      string         `json:"client_id,omitempty"`
	ExtraInfo     map[string]any `json:"extra_info,omitempty"`
}

// Target is a TargetRecord keyed by its lower-cased contract address.
type Target struct {
	Address string `json:"address"`
	TargetRecord
}

// TargetSet maps lower-cased addresses to their records, the layout stored on disk.
type TargetSet map[string]TargetRecord

// NormalizeAddress lower-cases and trims an address string.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s TargetSet) Clone() TargetSet {
	out := make(TargetSet, len(s))
	for addr, rec := range s {
		out[addr] = rec.Clone()
	}
	return out
}

// Normalize re-keys the set by normalised address. Two keys naming the same
// address are an error.
func (s TargetSet) Normalize() (TargetSet, error) {
	out := make(TargetSet, len(s))
	for key, rec := range s {
		addr := NormalizeAddress(key)
		if _, dup := out[addr]; dup {
			return nil, fmt.Errorf("duplicate target address %s", addr)
		}
		out[addr] = rec
	}
	return out, nil
}

// Targets flattens the set into Target values.
func (s TargetSet) Targets() []Target {
	out := make([]Target, 0, len(s))
	for addr, rec := range s {
		out = append(out, Target{Address: addr, TargetRecord: rec.Clone()})
	}
	return out
}

// Clone returns a deep copy of the record.
func (r TargetRecord) Clone() TargetRecord {
	out := TargetRecord{
		AbiPath:       r.AbiPath,
		TrackedEvents: append([]string(nil), r.TrackedEvents...),
		Actions:       append([]string(nil), r.Actions...),
		ClientID:      r.ClientID,
	}
	if r.ExtraInfo != nil {
		out.ExtraInfo = make(map[string]any, len(r.ExtraInfo))
		for k, v := range r.ExtraInfo {
			out.ExtraInfo[k] = v
		}
	}
	return out
}
