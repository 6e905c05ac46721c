package contractabi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FileName returns the deterministic interface-definition file name for an address.
func FileName(address string) string {
	return "abi_" + strings.ToLower(strings.TrimSpace(address)) + ".json"
}

// ResolvePath joins a relative reference onto dir. Absolute references and
// references that already carry a directory component are returned unchanged.
func ResolvePath(dir, ref string) string {
	if filepath.IsAbs(ref) || filepath.Dir(ref) != "." || dir == "" {
		return ref
	}
	return filepath.Join(dir, ref)
}

// LoadError reports a missing or malformed interface-definition file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load abi %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Definition is a parsed interface definition with its events in declaration order.
type Definition struct {
	ABI    abi.ABI
	Events []abi.Event
}

// Event returns the first declared event with the given source name.
func (d *Definition) Event(name string) (abi.Event, bool) {
	for _, event := range d.Events {
		if event.RawName == name {
			return event, true
		}
	}
	return abi.Event{}, false
}

type rawEntry struct {
	Type string  `json:"type"`
	Name *string `json:"name"`
}

// Load reads and parses an interface-definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	def, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return def, nil
}

// Parse accepts either a bare ABI array or an artifact object carrying an "abi" key.
func Parse(data []byte) (*Definition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	if data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("parse artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return nil, errors.New("artifact has no abi field")
		}
		data = bytes.TrimSpace(artifact.ABI)
	}

	var entries []rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse entries: %w", err)
	}
	for i, entry := range entries {
		if entry.Type == "" {
			return nil, fmt.Errorf("entry %d has no type", i)
		}
		if entry.Type == "event" && (entry.Name == nil || *entry.Name == "") {
			return nil, fmt.Errorf("event entry %d has no name", i)
		}
	}

	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	// abi.ABI keys overloaded events as name, name0, name1, ... in declaration
	// order; replay that naming to recover the order.
	used := make(map[string]bool, len(parsed.Events))
	events := make([]abi.Event, 0, len(parsed.Events))
	for _, entry := range entries {
		if entry.Type != "event" {
			continue
		}
		key := abi.ResolveNameConflict(*entry.Name, func(s string) bool { return used[s] })
		used[key] = true
		if event, ok := parsed.Events[key]; ok {
			events = append(events, event)
		}
	}

	return &Definition{ABI: parsed, Events: events}, nil
}
