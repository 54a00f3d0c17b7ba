package types

import "math/big"

// Account holds the native-currency balance for a single address. The ledger
// tracks one currency only.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
