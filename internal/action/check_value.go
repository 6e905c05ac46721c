package action

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"contractWatch/internal/metrics"
	"contractWatch/internal/model"
)

const (
	extraDecimals       = "decimals"
	extraValueThreshold = "value_threshold"
)

// TokenMetaSource resolves ERC-20 metadata for a contract.
type TokenMetaSource interface {
	Meta(ctx context.Context, address common.Address) (model.TokenMeta, error)
}

// CheckValueHandler inspects the value of Transfer events and alerts when it
// reaches the threshold.
type CheckValueHandler struct {
	Tokens    TokenMetaSource
	Threshold decimal.Decimal
	Logger    *zap.Logger
}

func NewCheckValue(tokens TokenMetaSource, threshold decimal.Decimal, logger *zap.Logger) *CheckValueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckValueHandler{Tokens: tokens, Threshold: threshold, Logger: logger}
}

func (h *CheckValueHandler) Handle(ctx context.Context, target model.Target, ev *model.DecodedEvent) error {
	if ev.EventName != "Transfer" {
		return nil
	}
	raw, ok := ev.Arg("value")
	if !ok {
		return nil
	}
	value, ok := bigValue(raw)
	if !ok {
		return fmt.Errorf("transfer value has type %T", raw)
	}

	threshold := h.Threshold
	if v, ok := target.ExtraInfo[extraValueThreshold]; ok {
		parsed, err := decimalFromAny(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", extraValueThreshold, err)
		}
		threshold = parsed
	}

	decimals, symbol, err := h.decimals(ctx, target, ev.Address)
	if err != nil {
		return err
	}
	amount := decimal.NewFromBigInt(value, -int32(decimals))

	fields := []zap.Field{
		zap.String("address", ev.Address),
		zap.String("tx_hash", ev.TransactionHash),
		zap.String("value", amount.String()),
		zap.String("raw_value", value.String()),
	}
	if symbol != "" {
		fields = append(fields, zap.String("symbol", symbol))
	}

	if threshold.IsPositive() && amount.GreaterThanOrEqual(threshold) {
		metrics.ValueAlerts.Inc()
		h.Logger.Warn("transfer value above threshold", append(fields, zap.String("threshold", threshold.String()))...)
		return nil
	}
	h.Logger.Info("transfer value checked", fields...)
	return nil
}

// decimals prefers extra_info, then the token contract, then raw units.
func (h *CheckValueHandler) decimals(ctx context.Context, target model.Target, address string) (uint8, string, error) {
	if v, ok := target.ExtraInfo[extraDecimals]; ok {
		d, err := decimalFromAny(v)
		if err != nil || !d.IsInteger() || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(255)) {
			return 0, "", fmt.Errorf("invalid %s: %v", extraDecimals, v)
		}
		return uint8(d.IntPart()), "", nil
	}
	if h.Tokens == nil || !common.IsHexAddress(address) {
		return 0, "", nil
	}
	meta, err := h.Tokens.Meta(ctx, common.HexToAddress(address))
	if err != nil {
		h.Logger.Debug("token decimals unavailable, using raw value", zap.String("address", address), zap.Error(err))
		return 0, "", nil
	}
	return meta.Decimals, meta.Symbol, nil
}

// bigValue accepts the integer types go-ethereum decodes uint<N> and int<N> into.
func bigValue(v any) (*big.Int, bool) {
	if typed, ok := v.(*big.Int); ok {
		return typed, typed != nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), true
	default:
		return nil, false
	}
}

func decimalFromAny(v any) (decimal.Decimal, error) {
	switch typed := v.(type) {
	case string:
		return decimal.NewFromString(typed)
	case float64:
		return decimal.NewFromFloat(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	case uint8:
		return decimal.NewFromInt(int64(typed)), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value type %T", v)
	}
}
