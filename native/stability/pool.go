package stability

import (
	"errors"
	"math/big"
	"sync"

	"stablenet/core/types"
	"stablenet/crypto"
	nativecommon "stablenet/native/common"
)

var (
	// ErrNilState indicates the pool has not been wired to a state backend.
	ErrNilState = errors.New("stability pool: state not configured")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("stability pool: amount must be positive")
	// ErrInsufficientBalance rejects moves exceeding the held stable balance.
	ErrInsufficientBalance = errors.New("stability pool: insufficient balance")
	// ErrInsufficientDeposit rejects withdrawals exceeding the recorded claim.
	ErrInsufficientDeposit = errors.New("stability pool: withdrawal exceeds deposit")
)

const moduleName = "stability"

type poolState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	GetPoolDeposit(addr crypto.Address) (*big.Int, error)
	PutPoolDeposit(addr crypto.Address, amount *big.Int) error
}

// Pool is the stability ledger backing liquidations: depositors park stable in
// the pool, and the liquidation engine burns stable from auction winners or
// from the pool itself when canceling vault debt.
type Pool struct {
	// Ledger moves serialize on an internal mutex so concurrent deposits or
	// burns never lose updates against the shared account state.
	mu         sync.Mutex
	state      poolState
	moduleAddr crypto.Address
	pauses     nativecommon.PauseView
}

// NewPool constructs a stability pool holding custody at the module address.
func NewPool(moduleAddr crypto.Address) *Pool {
	return &Pool{moduleAddr: moduleAddr}
}

// SetState wires the pool to the external persistence layer.
func (p *Pool) SetState(state poolState) { p.state = state }

// SetPauses installs the governance pause switches.
func (p *Pool) SetPauses(view nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.pauses = view
}

// Deposit moves stable from the depositor into pool custody and records the
// depositor's claim.
func (p *Pool) Deposit(from crypto.Address, amount *big.Int) error {
	if p == nil || p.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fromAcc, err := p.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceStable.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	poolAcc, err := p.loadAccount(p.moduleAddr)
	if err != nil {
		return err
	}
	deposit, err := p.loadDeposit(from)
	if err != nil {
		return err
	}

	fromAcc.BalanceStable = new(big.Int).Sub(fromAcc.BalanceStable, amount)
	poolAcc.BalanceStable = new(big.Int).Add(poolAcc.BalanceStable, amount)
	deposit = new(big.Int).Add(deposit, amount)

	if err := p.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	if err := p.state.PutAccount(p.moduleAddr, poolAcc); err != nil {
		return err
	}
	return p.state.PutPoolDeposit(from, deposit)
}

// Withdraw returns stable from pool custody to the depositor, bounded by their
// recorded claim and the pool's liquid balance.
func (p *Pool) Withdraw(to crypto.Address, amount *big.Int) error {
	if p == nil || p.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	deposit, err := p.loadDeposit(to)
	if err != nil {
		return err
	}
	if deposit.Cmp(amount) < 0 {
		return ErrInsufficientDeposit
	}
	poolAcc, err := p.loadAccount(p.moduleAddr)
	if err != nil {
		return err
	}
	if poolAcc.BalanceStable.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := p.loadAccount(to)
	if err != nil {
		return err
	}

	poolAcc.BalanceStable = new(big.Int).Sub(poolAcc.BalanceStable, amount)
	toAcc.BalanceStable = new(big.Int).Add(toAcc.BalanceStable, amount)
	deposit = new(big.Int).Sub(deposit, amount)

	if err := p.state.PutAccount(p.moduleAddr, poolAcc); err != nil {
		return err
	}
	if err := p.state.PutAccount(to, toAcc); err != nil {
		return err
	}
	return p.state.PutPoolDeposit(to, deposit)
}

// Available reports the stable balance liquid in pool custody.
func (p *Pool) Available() (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, ErrNilState
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	poolAcc, err := p.loadAccount(p.moduleAddr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(poolAcc.BalanceStable), nil
}

// BurnStableFrom destroys stable held by the given address, shrinking supply.
// The liquidation engine uses this to collect auction payment.
func (p *Pool) BurnStableFrom(from crypto.Address, amount *big.Int) error {
	if p == nil || p.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, err := p.loadAccount(from)
	if err != nil {
		return err
	}
	if acc.BalanceStable.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	acc.BalanceStable = new(big.Int).Sub(acc.BalanceStable, amount)
	return p.state.PutAccount(from, acc)
}

// Credit mints stable to the given address. Restricted by wiring to the
// liquidation engine and governance flows.
func (p *Pool) Credit(to crypto.Address, amount *big.Int) error {
	if p == nil || p.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, err := p.loadAccount(to)
	if err != nil {
		return err
	}
	acc.BalanceStable = new(big.Int).Add(acc.BalanceStable, amount)
	return p.state.PutAccount(to, acc)
}

func (p *Pool) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := p.state.GetAccount(addr)
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

func (p *Pool) loadDeposit(addr crypto.Address) (*big.Int, error) {
	deposit, err := p.state.GetPoolDeposit(addr)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(deposit), nil
}
