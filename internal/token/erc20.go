package token

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20StringABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20Bytes32ABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20StringABI      abi.ABI
	erc20StringABIOnce  sync.Once
	erc20StringABIErr   error
	erc20Bytes32ABI     abi.ABI
	erc20Bytes32ABIOnce sync.Once
	erc20Bytes32ABIErr  error
)

func stringABI() (abi.ABI, error) {
	erc20StringABIOnce.Do(func() {
		erc20StringABI, erc20StringABIErr = abi.JSON(strings.NewReader(erc20StringABIJSON))
	})
	return erc20StringABI, erc20StringABIErr
}

// bytes32ABI covers legacy tokens such as MKR that return symbol as bytes32.
func bytes32ABI() (abi.ABI, error) {
	erc20Bytes32ABIOnce.Do(func() {
		erc20Bytes32ABI, erc20Bytes32ABIErr = abi.JSON(strings.NewReader(erc20Bytes32ABIJSON))
	})
	return erc20Bytes32ABI, erc20Bytes32ABIErr
}
