package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractWatch/internal/model"
)

func TestFileTargetStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileTargetStore(filepath.Join(t.TempDir(), "contracts.json"))
	targets, err := store.LoadTargets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestFileTargetStoreUpdateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "contracts.json")
	store := NewFileTargetStore(path)
	ctx := context.Background()

	err := store.UpdateTargets(ctx, func(set model.TargetSet) error {
		set["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"] = model.TargetRecord{
			AbiPath:       "abi.json",
			TrackedEvents: []string{"Transfer"},
			Actions:       []string{"log_event"},
			ClientID:      "c1",
			ExtraInfo:     map[string]any{"decimals": "6"},
		}
		return nil
	})
	require.NoError(t, err)

	reloaded, err := NewFileTargetStore(path).LoadTargets(ctx)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	rec := reloaded["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]
	assert.Equal(t, []string{"Transfer"}, rec.TrackedEvents)
	assert.Equal(t, "c1", rec.ClientID)
	assert.Equal(t, "6", rec.ExtraInfo["decimals"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileTargetStoreUpdateErrorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	store := NewFileTargetStore(path)

	boom := errors.New("boom")
	err := store.UpdateTargets(context.Background(), func(set model.TargetSet) error {
		set["0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"] = model.TargetRecord{}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileTargetStoresShareFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	stores := []*FileTargetStore{NewFileTargetStore(path), NewFileTargetStore(path)}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := stores[i%2].UpdateTargets(ctx, func(set model.TargetSet) error {
				set[fmt.Sprintf("0x%040x", i+1)] = model.TargetRecord{TrackedEvents: []string{"Transfer"}}
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	targets, err := NewFileTargetStore(path).LoadTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, targets, 50)

	leftovers, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileTargetStoreUpdateHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	holder := NewFileTargetStore(path)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.UpdateTargets(context.Background(), func(model.TargetSet) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewFileTargetStore(path).UpdateTargets(ctx, func(model.TargetSet) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestFileTargetStoreNormalisesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": {"abi_path": "a.json"}}`), 0o644))

	targets, err := NewFileTargetStore(path).LoadTargets(context.Background())
	require.NoError(t, err)
	assert.Contains(t, targets, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Len(t, targets, 1)
}

func TestFileTargetStoreRejectsDuplicateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": {"abi_path": "a.json"},
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": {"abi_path": "b.json"}
	}`), 0o644))

	_, err := NewFileTargetStore(path).LoadTargets(context.Background())
	assert.ErrorContains(t, err, "duplicate target address")
}

func TestFileTargetStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileTargetStore(path).LoadTargets(context.Background())
	assert.Error(t, err)
}

func TestFileSnapshotStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent_events.json")
	store := NewFileSnapshotStore(path)
	ctx := context.Background()

	entries, err := store.LoadRecentEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.SaveRecentEvents(ctx, []string{"a", "b"}))
	entries, err = store.LoadRecentEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, entries)
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := NewJsonlStorage(path)
	defer sink.Close()

	ev := &model.DecodedEvent{Address: "0xaa", EventName: "Transfer", Args: model.NewArgs()}
	require.NoError(t, sink.PutEventBatch([]model.EventRecord{ev.Record(time.Unix(0, 0))}))
	require.NoError(t, sink.PutEventBatch([]model.EventRecord{ev.Record(time.Unix(1, 0))}))
	require.NoError(t, sink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestJsonlStorageRequiresPath(t *testing.T) {
	ev := &model.DecodedEvent{Args: model.NewArgs()}
	err := NewJsonlStorage("").PutEventBatch([]model.EventRecord{ev.Record(time.Now())})
	assert.Error(t, err)
}
