package model

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferEvent() *DecodedEvent {
	args := NewArgs()
	args.Set("from", common.HexToAddress("0x1111111111111111111111111111111111111111"))
	args.Set("to", common.HexToAddress("0x2222222222222222222222222222222222222222"))
	args.Set("value", big.NewInt(1000))

	return &DecodedEvent{
		Address:         "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		EventName:       "Transfer",
		Args:            args,
		LogIndex:        3,
		TransactionHash: "0xdef0",
		BlockHash:       "0xabc0",
		BlockNumber:     12345,
		ClientID:        "client-1",
	}
}

func TestDecodedEventSummary(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	got := transferEvent().Summary(at)

	want := "2024-05-01 12:30:00 DETECTED: Transfer on 0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa - Args: " +
		"{from: 0x1111111111111111111111111111111111111111, to: 0x2222222222222222222222222222222222222222, value: 1000}" +
		" (Tx: 0xdef0) (Client: client-1)"
	assert.Equal(t, want, got)
}

func TestDecodedEventSummaryWithoutClient(t *testing.T) {
	ev := transferEvent()
	ev.ClientID = ""
	got := ev.Summary(time.Unix(0, 0).UTC())
	assert.NotContains(t, got, "Client:")
	assert.Contains(t, got, "(Tx: 0xdef0)")
}

func TestEventRecordKeepsArgumentOrder(t *testing.T) {
	rec := transferEvent().Record(time.Unix(1700000000, 0))
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded struct {
		Args json.RawMessage `json:"args"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t,
		`{"from":"0x1111111111111111111111111111111111111111","to":"0x2222222222222222222222222222222222222222","value":"1000"}`,
		string(decoded.Args),
	)
}

func TestJSONValue(t *testing.T) {
	var fixed [4]byte
	copy(fixed[:], []byte{0xde, 0xad, 0xbe, 0xef})

	assert.Equal(t, "0xdeadbeef", JSONValue(fixed))
	assert.Equal(t, "0x0102", JSONValue([]byte{1, 2}))
	assert.Equal(t, "-5", JSONValue(big.NewInt(-5)))
	assert.Equal(t, []any{"1", "2"}, JSONValue([]*big.Int{big.NewInt(1), big.NewInt(2)}))
	assert.Equal(t, true, JSONValue(true))
}
