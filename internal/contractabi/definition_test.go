package contractabi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "abi_0xabcdef0000000000000000000000000000000001.json", FileName("0xABCDEF0000000000000000000000000000000001"))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "abis", "abi.json"), ResolvePath(filepath.Join("data", "abis"), "abi.json"))
	assert.Equal(t, filepath.Join("other", "abi.json"), ResolvePath("data", filepath.Join("other", "abi.json")))
	assert.Equal(t, "/tmp/abi.json", ResolvePath("data", "/tmp/abi.json"))
	assert.Equal(t, "abi.json", ResolvePath("", "abi.json"))
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	def, err := Parse([]byte(erc20EventsJSON))
	require.NoError(t, err)
	require.Len(t, def.Events, 3)

	assert.Equal(t, "Transfer", def.Events[0].Name)
	assert.Equal(t, "Approval", def.Events[1].Name)
	assert.Equal(t, "Transfer0", def.Events[2].Name)
	assert.Equal(t, "Transfer", def.Events[2].RawName)
	assert.Len(t, def.Events[2].Inputs, 4)

	event, ok := def.Event("Transfer")
	require.True(t, ok)
	assert.Len(t, event.Inputs, 3)
	_, ok = def.Event("Swap")
	assert.False(t, ok)
}

func TestParseArtifactObject(t *testing.T) {
	def, err := Parse([]byte(`{"contractName": "Token", "abi": ` + erc20EventsJSON + `}`))
	require.NoError(t, err)
	assert.Len(t, def.Events, 3)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "not json", doc: "not json"},
		{name: "object without abi", doc: `{"bytecode": "0x"}`},
		{name: "entry without type", doc: `[{"name": "Transfer", "inputs": []}]`},
		{name: "event without name", doc: `[{"type": "event", "inputs": []}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadReportsLoadError(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := filepath.Join(dir, "abi.json")
	require.NoError(t, os.WriteFile(path, []byte(erc20EventsJSON), 0o644))
	def, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, def.Events, 3)
}
