package listener

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

const defaultDedupeWindow = 4096

// seenLogs remembers the most recent log keys. Only the engine loop touches it.
type seenLogs struct {
	keys  map[string]struct{}
	order []string
	next  int
}

func newSeenLogs(window int) *seenLogs {
	if window <= 0 {
		window = defaultDedupeWindow
	}
	return &seenLogs{
		keys:  make(map[string]struct{}, window),
		order: make([]string, 0, window),
	}
}

// isDuplicate records log and reports whether it was already seen.
func (s *seenLogs) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%s:%s:%d", log.BlockHash.Hex(), log.TxHash.Hex(), log.Index)
	if _, ok := s.keys[id]; ok {
		return true
	}
	if len(s.order) < cap(s.order) {
		s.order = append(s.order, id)
	} else {
		delete(s.keys, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % len(s.order)
	}
	s.keys[id] = struct{}{}
	return false
}
