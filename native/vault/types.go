package vault

import (
	"math/big"

	"stablenet/crypto"
)

// Vault is a collateralized debt position: shares of one collateral type held
// through an adapter against WAD-scaled stablecoin debt.
type Vault struct {
	// ID is the registry-assigned identifier, strictly increasing.
	ID uint64
	// Owner is the only address allowed to mutate the position outside of
	// liquidation settlement.
	Owner crypto.Address
	// CollateralType names the collateral configuration and adapter backing
	// the position.
	CollateralType string
	// Shares is the collateral amount in adapter share units.
	Shares *big.Int
	// Debt is the outstanding stablecoin debt in WAD units.
	Debt *big.Int
	// Active is cleared once shares and debt both reach zero; inactive vaults
	// reject further deposits and borrows.
	Active bool
}

// Clone returns a deep copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{
		ID:             v.ID,
		Owner:          v.Owner,
		CollateralType: v.CollateralType,
		Active:         v.Active,
	}
	if v.Shares != nil {
		clone.Shares = new(big.Int).Set(v.Shares)
	}
	if v.Debt != nil {
		clone.Debt = new(big.Int).Set(v.Debt)
	}
	return clone
}

// CollateralConfig carries the per-collateral-type risk parameters. Mutable
// only through the risk-admin capability.
type CollateralConfig struct {
	// LTVBps bounds borrow-time loan-to-value in basis points.
	LTVBps uint64
	// Enabled gates deposits and vault creation for the collateral type.
	Enabled bool
}

// Clone returns a copy of the collateral configuration.
func (c *CollateralConfig) Clone() *CollateralConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Health is the read-model returned by VaultHealth.
type Health struct {
	// CollateralValueWad is the oracle-priced value of the vault collateral.
	CollateralValueWad *big.Int
	// Debt is the outstanding stablecoin debt.
	Debt *big.Int
	// LTVBps echoes the configured borrow bound for the collateral type.
	LTVBps uint64
	// Healthy is false exactly when the vault is liquidation-eligible.
	Healthy bool
}
