package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractWatch/internal/contractabi"
	"contractWatch/internal/listener"
	"contractWatch/internal/recent"
	"contractWatch/internal/registry"
	"contractWatch/internal/storage"
)

const tokenABIJSON = `[{"type": "event", "name": "Transfer", "anonymous": false, "inputs": [
  {"indexed": true, "name": "from", "type": "address"},
  {"indexed": true, "name": "to", "type": "address"},
  {"indexed": false, "name": "value", "type": "uint256"}
]}]`

const testAddress = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type stubFetcher struct {
	dir   string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, address string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, contractabi.FileName(address))
	return path, os.WriteFile(path, []byte(tokenABIJSON), 0o644)
}

type stubEngine struct {
	reloads int
}

func (e *stubEngine) Reload(context.Context) (listener.ReloadResult, error) {
	e.reloads++
	return listener.ReloadResult{Targets: 1}, nil
}

func (e *stubEngine) Status() listener.Status {
	return listener.Status{State: listener.Subscribed}
}

type fixture struct {
	service *Service
	abiDir  string
	fetcher *stubFetcher
	engine  *stubEngine
	log     *recent.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	abiDir := filepath.Join(dir, "abis")
	require.NoError(t, os.MkdirAll(abiDir, 0o755))

	reg := registry.New(storage.NewFileTargetStore(filepath.Join(dir, "contracts.json")),
		[]string{"log_event", "check_value", "archive_event"}, nil)
	f := &fixture{
		abiDir:  abiDir,
		fetcher: &stubFetcher{dir: abiDir},
		engine:  &stubEngine{},
		log:     recent.NewLog(10),
	}
	f.service = NewService(reg, f.log, f.engine, f.fetcher, abiDir, nil)
	return f
}

func TestAddOrUpdateTargetFetchesMissingABI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.service.AddOrUpdateTarget(ctx, TargetRequest{
		Address:  testAddress,
		Events:   []string{"Transfer"},
		ClientID: "bot",
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(t, 1, f.fetcher.calls)

	target, err := f.service.GetTarget(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, []string{"log_event"}, target.Actions)
	assert.Equal(t, filepath.Join(f.abiDir, "abi_0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.json"), target.AbiPath)

	_, err = f.service.AddOrUpdateTarget(ctx, TargetRequest{Address: testAddress, Events: []string{"Transfer"}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.calls)

	targets, err := f.service.ListTargets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestAddOrUpdateTargetUsesExistingFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.abiDir, "token.json"), []byte(tokenABIJSON), 0o644))

	_, err := f.service.AddOrUpdateTarget(context.Background(), TargetRequest{
		Address: testAddress,
		AbiPath: "token.json",
		Events:  []string{"Transfer"},
		Actions: []string{"log_event", "check_value"},
	})
	require.NoError(t, err)
	assert.Zero(t, f.fetcher.calls)
}

func TestAddOrUpdateTargetValidation(t *testing.T) {
	cases := []struct {
		name  string
		req   TargetRequest
		field string
	}{
		{name: "bad address", req: TargetRequest{Address: "0x123", Events: []string{"Transfer"}}, field: "address"},
		{name: "no events", req: TargetRequest{Address: testAddress}, field: "events"},
		{name: "unknown action", req: TargetRequest{Address: testAddress, Events: []string{"Transfer"}, Actions: []string{"tweet"}}, field: "actions"},
		{name: "not json", req: TargetRequest{Address: testAddress, AbiPath: "token.abi", Events: []string{"Transfer"}}, field: "abi_path"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.AddOrUpdateTarget(context.Background(), tc.req)

			var verr *registry.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.Zero(t, f.fetcher.calls)

			targets, err := f.service.ListTargets(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, targets)
		})
	}
}

func TestAddOrUpdateTargetFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("not verified")

	_, err := f.service.AddOrUpdateTarget(context.Background(), TargetRequest{Address: testAddress, Events: []string{"Transfer"}})
	var verr *registry.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "not verified")
}

func TestRemoveAndGetRecentEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RemoveTarget(ctx, testAddress)
	var nf *registry.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = f.service.GetTarget(ctx, testAddress)
	assert.True(t, errors.As(err, &nf))

	for _, entry := range []string{"a", "b", "c"} {
		f.log.Append(entry)
	}
	assert.Equal(t, []string{"b", "c"}, f.service.GetRecentEvents(2))
	assert.Equal(t, []string{"a", "b", "c"}, f.service.GetRecentEvents(100))
}

func TestReloadAndStatus(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Targets)
	assert.Equal(t, 1, f.engine.reloads)

	status := f.service.Status()
	require.NotNil(t, status.Engine)
	assert.Equal(t, listener.Subscribed, status.Engine.State)
	assert.Equal(t, []string{"archive_event", "check_value", "log_event"}, status.KnownActions)

	offline := NewService(f.service.registry, nil, nil, nil, "", nil)
	_, err = offline.Reload(context.Background())
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Empty(t, offline.GetRecentEvents(5))
}
