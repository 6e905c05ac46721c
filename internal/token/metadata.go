package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"contractWatch/internal/model"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const (
	// DefaultFailureTTL is how long a failed lookup is remembered.
	DefaultFailureTTL = 5 * time.Minute
	// DefaultCallTimeout bounds one metadata lookup.
	DefaultCallTimeout = 5 * time.Second
)

type lookupFailure struct {
	err   error
	until time.Time
}

// Cache resolves and caches ERC-20 metadata by address. Failed lookups are
// remembered for failureTTL.
type Cache struct {
	caller      Caller
	logger      *zap.Logger
	failureTTL  time.Duration
	callTimeout time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	data     map[common.Address]model.TokenMeta
	failures map[common.Address]lookupFailure
}

func NewCache(caller Caller, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		caller:      caller,
		logger:      logger,
		failureTTL:  DefaultFailureTTL,
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
		data:        make(map[common.Address]model.TokenMeta),
		failures:    make(map[common.Address]lookupFailure),
	}
}

func (c *Cache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *Cache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Meta returns cached metadata or fetches it from chain. A failed lookup is
// returned again without a call until it expires.
func (c *Cache) Meta(ctx context.Context, address common.Address) (model.TokenMeta, error) {
	if meta, ok := c.Get(address); ok {
		return meta, nil
	}
	if err := c.recentFailure(address); err != nil {
		return model.TokenMeta{Address: address.Hex()}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	meta, err := Fetch(callCtx, c.caller, address, c.logger)
	if err != nil {
		if ctx.Err() == nil {
			c.mu.Lock()
			c.failures[address] = lookupFailure{err: err, until: c.now().Add(c.failureTTL)}
			c.mu.Unlock()
		}
		return meta, err
	}
	c.mu.Lock()
	delete(c.failures, address)
	c.mu.Unlock()
	c.Set(address, meta)
	return meta, nil
}

func (c *Cache) recentFailure(address common.Address) error {
	c.mu.RLock()
	failure, ok := c.failures[address]
	c.mu.RUnlock()
	if !ok || !c.now().Before(failure.until) {
		return nil
	}
	return failure.err
}

// Fetch loads token metadata via ERC-20 calls. decimals is required, symbol is best effort.
func Fetch(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain caller is nil")
	}

	parsed, err := stringABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := call(ctx, caller, token, parsed, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call(ctx, caller, token, parsed, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if legacy, legacyErr := bytes32ABI(); legacyErr == nil {
		if values, err := call(ctx, caller, token, legacy, "symbol"); err == nil {
			if symbol, ok := bytes32ToString(values[0]); ok {
				meta.Symbol = symbol
			}
		} else if logger != nil {
			logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
		}
	}

	return meta, nil
}

func call(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
