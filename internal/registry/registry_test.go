package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractWatch/internal/storage"
)

var testActions = []string{"log_event", "check_value"}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contracts.json")
	return New(storage.NewFileTargetStore(path), testActions, nil), path
}

func TestUpsertThenList(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	msg, err := reg.Upsert(ctx, UpsertRequest{
		Address:   "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		AbiPath:   "./data/abis/abi_0xaaaa.json",
		Events:    []string{"Transfer", "Approval"},
		Actions:   []string{"log_event", "check_value"},
		ClientID:  "client-1",
		ExtraInfo: map[string]any{"decimals": "18"},
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Contains(t, msg, "client-1")

	targets, err := reg.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, targets, 1)

	got := targets[0]
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", got.Address)
	assert.Equal(t, "./data/abis/abi_0xaaaa.json", got.AbiPath)
	assert.Equal(t, []string{"Transfer", "Approval"}, got.TrackedEvents)
	assert.Equal(t, []string{"log_event", "check_value"}, got.Actions)
	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, "18", got.ExtraInfo["decimals"])
}

func TestUpsertIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	req := UpsertRequest{
		Address: "0x1234567890abcdef1234567890abcdef12345678",
		AbiPath: "abi.json",
		Events:  []string{"Transfer"},
		Actions: []string{"log_event"},
	}

	for i := 0; i < 2; i++ {
		_, err := reg.Upsert(ctx, req)
		require.NoError(t, err)
	}

	targets, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestUpsertRejectsInvalidAddress(t *testing.T) {
	cases := []struct {
		name    string
		address string
	}{
		{name: "too short", address: "0x1234"},
		{name: "too long", address: "0x1234567890abcdef1234567890abcdef1234567890"},
		{name: "missing prefix", address: "001234567890abcdef1234567890abcdef12345678"},
		{name: "upper case prefix", address: "0X1234567890abcdef1234567890abcdef12345678"},
		{name: "non hex", address: "0xzz34567890abcdef1234567890abcdef12345678"},
		{name: "empty", address: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg, path := newTestRegistry(t)
			_, err := reg.Upsert(context.Background(), UpsertRequest{
				Address: tc.address,
				Events:  []string{"Transfer"},
				Actions: []string{"log_event"},
			})

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			assert.Equal(t, "address", verr.Field)

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "collection must not be written")
		})
	}
}

func TestUpsertRejectsEmptyEventsAndUnknownActions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	address := "0x1234567890abcdef1234567890abcdef12345678"

	_, err := reg.Upsert(ctx, UpsertRequest{Address: address, Events: []string{" "}, Actions: []string{"log_event"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "events", verr.Field)

	_, err = reg.Upsert(ctx, UpsertRequest{Address: address, Events: []string{"Transfer"}, Actions: []string{"send_tweet"}})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "actions", verr.Field)
	assert.Contains(t, verr.Message, "send_tweet")

	targets, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestListFiltersByClient(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for i, client := range []string{"alice", "bob", "alice"} {
		_, err := reg.Upsert(ctx, UpsertRequest{
			Address:  fmt.Sprintf("0x%040x", i+1),
			Events:   []string{"Transfer"},
			Actions:  []string{"log_event"},
			ClientID: client,
		})
		require.NoError(t, err)
	}

	alice, err := reg.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	all, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, all[0].Address < all[1].Address)
}

func TestRemoveAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	address := "0x1234567890ABCDEF1234567890abcdef12345678"

	_, err := reg.Upsert(ctx, UpsertRequest{Address: address, Events: []string{"Transfer"}, Actions: []string{"log_event"}})
	require.NoError(t, err)

	target, ok, err := reg.Get(ctx, address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", target.Address)

	msg, err := reg.Remove(ctx, address)
	require.NoError(t, err)
	assert.Contains(t, msg, "removed")

	_, ok, err = reg.Get(ctx, address)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.Remove(ctx, address)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestConcurrentUpsertsDoNotLoseUpdates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Upsert(ctx, UpsertRequest{
				Address: fmt.Sprintf("0x%040x", i+1),
				Events:  []string{"Transfer"},
				Actions: []string{"log_event"},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	targets, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, targets, 20)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.Error(t, ValidateAddress("0xAAAA"))
	assert.Error(t, ValidateAddress("0XAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
}

func TestConcurrentUpsertsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	first := New(storage.NewFileTargetStore(path), testActions, nil)
	second := New(storage.NewFileTargetStore(path), testActions, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		reg := first
		if i%2 == 1 {
			reg = second
		}
		wg.Add(1)
		go func(reg *Registry, i int) {
			defer wg.Done()
			_, err := reg.Upsert(ctx, UpsertRequest{
				Address: fmt.Sprintf("0x%040x", i+1),
				Events:  []string{"Transfer"},
				Actions: []string{"log_event"},
			})
			assert.NoError(t, err)
		}(reg, i)
	}
	wg.Wait()

	targets, err := New(storage.NewFileTargetStore(path), testActions, nil).List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, targets, 60)
}

func TestStoredMixedCaseKeyIsNormalised(t *testing.T) {
	reg, path := newTestRegistry(t)
	ctx := context.Background()
	stored := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	lower := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, os.WriteFile(path, []byte(`{"`+stored+`": {"abi_path": "a.json", "tracked_events": ["Transfer"], "actions": ["log_event"]}}`), 0o644))

	target, ok, err := reg.Get(ctx, stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lower, target.Address)

	_, err = reg.Upsert(ctx, UpsertRequest{Address: stored, Events: []string{"Approval"}, Actions: []string{"log_event"}})
	require.NoError(t, err)
	targets, err := reg.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, []string{"Approval"}, targets[0].TrackedEvents)

	_, err = reg.Remove(ctx, lower)
	require.NoError(t, err)
	targets, err = reg.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, targets)
}
