package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"contractWatch/internal/model"
)

// JsonlStorage appends event records to a JSONL file. The file is opened on
// first write and kept open until Close.
type JsonlStorage struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutEventBatch appends records as JSON lines and flushes them.
func (s *JsonlStorage) PutEventBatch(records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.path == "" {
		return fmt.Errorf("archive path is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		return err
	}

	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal event record: %w", err)
		}
		if _, err := s.writer.Write(line); err != nil {
			return fmt.Errorf("write event record: %w", err)
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JsonlStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file, s.writer = nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (s *JsonlStorage) open() error {
	if s.file != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}
