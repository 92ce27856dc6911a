package vault

import (
	"math/big"
	"strconv"

	"stablenet/core/types"
)

const (
	EventTypeVaultOpened     = "vault.opened"
	EventTypeVaultDeposited  = "vault.deposited"
	EventTypeVaultWithdrawn  = "vault.withdrawn"
	EventTypeVaultBorrowed   = "vault.borrowed"
	EventTypeVaultRepaid     = "vault.repaid"
	EventTypeVaultFlagged    = "vault.flagged"
	EventTypeVaultLiquidated = "vault.liquidated"
)

type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

func baseAttrs(v *Vault) map[string]string {
	attrs := make(map[string]string)
	if v == nil {
		return attrs
	}
	attrs["vaultId"] = strconv.FormatUint(v.ID, 10)
	attrs["owner"] = v.Owner.String()
	attrs["collateral"] = v.CollateralType
	if v.Shares != nil {
		attrs["shares"] = v.Shares.String()
	}
	if v.Debt != nil {
		attrs["debt"] = v.Debt.String()
	}
	return attrs
}

func amountAttr(attrs map[string]string, key string, amount *big.Int) map[string]string {
	if amount != nil {
		attrs[key] = amount.String()
	}
	return attrs
}

// NewVaultOpenedEvent returns the canonical payload for vault creation.
func NewVaultOpenedEvent(v *Vault) vaultEvent {
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultOpened, Attributes: baseAttrs(v)}}
}

// NewVaultDepositedEvent reports shares credited by a deposit.
func NewVaultDepositedEvent(v *Vault, shares *big.Int) vaultEvent {
	attrs := amountAttr(baseAttrs(v), "sharesIn", shares)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultDeposited, Attributes: attrs}}
}

// NewVaultWithdrawnEvent reports shares released by a withdrawal.
func NewVaultWithdrawnEvent(v *Vault, shares *big.Int) vaultEvent {
	attrs := amountAttr(baseAttrs(v), "sharesOut", shares)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultWithdrawn, Attributes: attrs}}
}

// NewVaultBorrowedEvent reports freshly minted debt.
func NewVaultBorrowedEvent(v *Vault, amount *big.Int) vaultEvent {
	attrs := amountAttr(baseAttrs(v), "amount", amount)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultBorrowed, Attributes: attrs}}
}

// NewVaultRepaidEvent reports burned debt.
func NewVaultRepaidEvent(v *Vault, amount *big.Int) vaultEvent {
	attrs := amountAttr(baseAttrs(v), "amount", amount)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultRepaid, Attributes: attrs}}
}

// NewVaultFlaggedEvent reports a vault handed to the liquidation queue along
// with the collateral valuation that failed the MCR test.
func NewVaultFlaggedEvent(v *Vault, collateralValue *big.Int) vaultEvent {
	attrs := amountAttr(baseAttrs(v), "collateralValue", collateralValue)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultFlagged, Attributes: attrs}}
}

// NewVaultLiquidatedEvent reports the settlement deltas applied to a vault:
// the share fill, the burned debt, and the liquidation penalty computed for
// observability.
func NewVaultLiquidatedEvent(v *Vault, fill, debtBurned, penalty *big.Int) vaultEvent {
	attrs := baseAttrs(v)
	amountAttr(attrs, "fill", fill)
	amountAttr(attrs, "debtBurned", debtBurned)
	amountAttr(attrs, "penalty", penalty)
	return vaultEvent{evt: &types.Event{Type: EventTypeVaultLiquidated, Attributes: attrs}}
}
