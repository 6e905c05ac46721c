package recent

import (
	"sync"

	"contractWatch/internal/metrics"
)

// DefaultCapacity is the number of summaries kept when none is configured.
const DefaultCapacity = 100

// Log is a bounded FIFO of event summaries safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	entries  []string
	start    int
	size     int
	version  uint64
	capacity int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]string, capacity), capacity: capacity}
}

// Append adds an entry, evicting the oldest one when full.
func (l *Log) Append(entry string) {
	l.mu.Lock()
	l.push(entry)
	l.version++
	size := l.size
	l.mu.Unlock()
	metrics.RecentLogSize.Set(float64(size))
}

func (l *Log) push(entry string) {
	if l.size < l.capacity {
		l.entries[(l.start+l.size)%l.capacity] = entry
		l.size++
		return
	}
	l.entries[l.start] = entry
	l.start = (l.start + 1) % l.capacity
}

// Last returns up to n most recent entries, oldest first.
func (l *Log) Last(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last(n)
}

func (l *Log) last(n int) []string {
	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return []string{}
	}
	out := make([]string, n)
	offset := l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.start+offset+i)%l.capacity]
	}
	return out
}

// Snapshot copies the whole log together with its version.
func (l *Log) Snapshot() ([]string, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last(l.size), l.version
}

// Restore replaces the contents with entries, keeping only the newest capacity ones.
func (l *Log) Restore(entries []string) {
	l.mu.Lock()
	l.start, l.size = 0, 0
	for i := range l.entries {
		l.entries[i] = ""
	}
	if len(entries) > l.capacity {
		entries = entries[len(entries)-l.capacity:]
	}
	for _, entry := range entries {
		l.push(entry)
	}
	size := l.size
	l.mu.Unlock()
	metrics.RecentLogSize.Set(float64(size))
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *Log) Capacity() int {
	return l.capacity
}

// Version increments on every Append.
func (l *Log) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}
