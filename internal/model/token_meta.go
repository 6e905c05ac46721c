package model

// TokenMeta captures ERC20 metadata used to scale transfer values.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
}
