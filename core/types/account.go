package types

import "math/big"

// Account is the ledger record shared by every stablenet module. BalanceStable
// holds WAD-scaled stablecoin units and BalanceNative holds the value units
// used for auction bonds and fees.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceStable *big.Int `json:"balanceStable"`
	BalanceNative *big.Int `json:"balanceNative"`
}
