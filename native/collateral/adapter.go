package collateral

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"stablenet/crypto"
	"stablenet/native/common"
)

var (
	errInvalidAmount   = errors.New("collateral adapter: amount must be positive")
	errNotEnoughShares = errors.New("collateral adapter: insufficient shares held")
)

// Adapter converts between underlying asset amounts and the share units held
// inside vaults. Yield accrues by bumping an exchange index, so existing
// shares appreciate transparently without touching vault records. One adapter
// instance is shared between the vault and liquidation engines, so the index
// and share supply sit behind a lock.
type Adapter struct {
	asset string

	mu          sync.RWMutex
	indexWad    *big.Int
	totalShares *big.Int
}

// NewAdapter constructs an adapter for the named underlying asset with an
// exchange index of 1.0.
func NewAdapter(asset string) *Adapter {
	return &Adapter{
		asset:       strings.ToUpper(strings.TrimSpace(asset)),
		indexWad:    common.Wad(),
		totalShares: big.NewInt(0),
	}
}

// Asset returns the underlying asset symbol handled by this adapter.
func (a *Adapter) Asset() string { return a.asset }

// IndexWad returns the current share/asset exchange index.
func (a *Adapter) IndexWad() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return new(big.Int).Set(a.indexWad)
}

// TotalShares returns the outstanding share supply.
func (a *Adapter) TotalShares() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return new(big.Int).Set(a.totalShares)
}

// ValueOf converts a share amount to the underlying asset amount at the
// current index, flooring toward zero.
func (a *Adapter) ValueOf(shares *big.Int) *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.valueAt(shares)
}

// SharesFor converts an asset amount to shares at the current index. A
// positive asset amount always yields at least one share so deposits cannot
// round to nothing.
func (a *Adapter) SharesFor(assets *big.Int) *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sharesAt(assets)
}

// DepositFrom converts incoming assets to newly minted shares credited to the
// receiver. Custody of the underlying token sits outside the core; the adapter
// tracks the share supply only.
func (a *Adapter) DepositFrom(from crypto.Address, assets *big.Int, receiver crypto.Address) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	shares := a.sharesAt(assets)
	a.totalShares = new(big.Int).Add(a.totalShares, shares)
	return shares, nil
}

// Withdraw burns shares and reports the underlying asset amount released to
// the receiver.
func (a *Adapter) Withdraw(shares *big.Int, receiver, owner crypto.Address) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.totalShares.Cmp(shares) < 0 {
		return nil, errNotEnoughShares
	}
	a.totalShares = new(big.Int).Sub(a.totalShares, shares)
	return a.valueAt(shares), nil
}

// AccrueYield raises the exchange index by the supplied basis points,
// reflecting yield earned by the underlying position.
func (a *Adapter) AccrueYield(bps uint64) {
	if bps == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	gain := common.BpsMul(a.indexWad, bps)
	a.indexWad = new(big.Int).Add(a.indexWad, gain)
}

func (a *Adapter) valueAt(shares *big.Int) *big.Int {
	return common.MulWad(shares, a.indexWad)
}

func (a *Adapter) sharesAt(assets *big.Int) *big.Int {
	if assets == nil || assets.Sign() <= 0 {
		return big.NewInt(0)
	}
	shares := common.DivWad(assets, a.indexWad)
	if shares.Sign() == 0 {
		return big.NewInt(1)
	}
	return shares
}
