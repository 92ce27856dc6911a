package state

import (
	"errors"
	"math/big"

	"stablenet/core/types"
	"stablenet/crypto"
)

var (
	// ErrInvalidAmount rejects zero or negative mint and burn amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrInsufficientBalance rejects burns exceeding the held balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient stable balance")
)

// Ledger exposes stablecoin supply mutations over the account store. It is
// handed to the vault engine as its mint/burn capability; nothing else should
// hold a reference.
type Ledger struct {
	store *Store
}

// NewLedger wraps the store's account records.
func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store}
}

// Mint credits newly issued stable to an account.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	acc.BalanceStable = new(big.Int).Add(acc.BalanceStable, amount)
	return l.store.PutAccount(to, acc)
}

// Burn destroys stable held by an account.
func (l *Ledger) Burn(from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if acc.BalanceStable.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	acc.BalanceStable = new(big.Int).Sub(acc.BalanceStable, amount)
	return l.store.PutAccount(from, acc)
}

func (l *Ledger) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := l.store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if acc.BalanceStable == nil {
		acc.BalanceStable = big.NewInt(0)
	}
	if acc.BalanceNative == nil {
		acc.BalanceNative = big.NewInt(0)
	}
	return acc, nil
}
