package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress accepts only 0x-prefixed, 40 hex digit addresses.
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") {
		return &ValidationError{Field: "address", Message: fmt.Sprintf("%q is missing the 0x prefix", address)}
	}
	if len(address) != 42 {
		return &ValidationError{Field: "address", Message: fmt.Sprintf("%q must be 42 characters, got %d", address, len(address))}
	}
	if !common.IsHexAddress(address) {
		return &ValidationError{Field: "address", Message: fmt.Sprintf("%q is not hex", address)}
	}
	return nil
}

func cleanNames(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
