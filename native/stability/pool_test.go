package stability

import (
	"math/big"
	"sync"
	"testing"

	"stablenet/core/types"
	"stablenet/crypto"
)

type mockPoolState struct {
	accounts map[string]*types.Account
	deposits map[string]*big.Int
}

func newMockPoolState() *mockPoolState {
	return &mockPoolState{
		accounts: make(map[string]*types.Account),
		deposits: make(map[string]*big.Int),
	}
}

func (m *mockPoolState) key(addr crypto.Address) string { return string(addr.Bytes()) }

func (m *mockPoolState) GetAccount(addr crypto.Address) (*types.Account, error) {
	return m.accounts[m.key(addr)], nil
}

func (m *mockPoolState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[m.key(addr)] = account
	return nil
}

func (m *mockPoolState) GetPoolDeposit(addr crypto.Address) (*big.Int, error) {
	return m.deposits[m.key(addr)], nil
}

func (m *mockPoolState) PutPoolDeposit(addr crypto.Address, amount *big.Int) error {
	m.deposits[m.key(addr)] = amount
	return nil
}

func makeAddress(fill byte) crypto.Address {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, b)
}

func TestPoolDepositWithdrawLifecycle(t *testing.T) {
	moduleAddr := makeAddress(0x01)
	depositor := makeAddress(0x02)

	state := newMockPoolState()
	state.accounts[state.key(depositor)] = &types.Account{BalanceStable: big.NewInt(1_000)}

	pool := NewPool(moduleAddr)
	pool.SetState(state)

	if err := pool.Deposit(depositor, big.NewInt(600)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	available, err := pool.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected 600 available, got %s", available)
	}

	if err := pool.Withdraw(depositor, big.NewInt(700)); err != ErrInsufficientDeposit {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
	if err := pool.Withdraw(depositor, big.NewInt(400)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	acc := state.accounts[state.key(depositor)]
	if acc.BalanceStable.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("expected depositor balance 800, got %s", acc.BalanceStable)
	}
}

func TestPoolBurnAndCredit(t *testing.T) {
	moduleAddr := makeAddress(0x03)
	bidder := makeAddress(0x04)

	state := newMockPoolState()
	state.accounts[state.key(bidder)] = &types.Account{BalanceStable: big.NewInt(500)}

	pool := NewPool(moduleAddr)
	pool.SetState(state)

	if err := pool.BurnStableFrom(bidder, big.NewInt(600)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := pool.BurnStableFrom(bidder, big.NewInt(500)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := state.accounts[state.key(bidder)].BalanceStable; got.Sign() != 0 {
		t.Fatalf("expected zero balance after burn, got %s", got)
	}
	if err := pool.Credit(bidder, big.NewInt(75)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := state.accounts[state.key(bidder)].BalanceStable; got.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected 75 after credit, got %s", got)
	}
}

func TestPoolConcurrentDepositsPreserveCustody(t *testing.T) {
	moduleAddr := makeAddress(0x10)
	state := newMockPoolState()
	pool := NewPool(moduleAddr)
	pool.SetState(state)

	const depositors = 16
	addrs := make([]crypto.Address, depositors)
	for i := range addrs {
		addrs[i] = makeAddress(byte(0x20 + i))
		state.accounts[state.key(addrs[i])] = &types.Account{BalanceStable: big.NewInt(1_000)}
	}

	var wg sync.WaitGroup
	errs := make([]error, depositors)
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pool.Deposit(addrs[i], big.NewInt(1_000))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	available, err := pool.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if want := big.NewInt(depositors * 1_000); available.Cmp(want) != 0 {
		t.Fatalf("pool custody = %s, want %s", available, want)
	}
}

func TestPoolRejectsZeroAmounts(t *testing.T) {
	pool := NewPool(makeAddress(0x05))
	pool.SetState(newMockPoolState())
	if err := pool.Deposit(makeAddress(0x06), big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := pool.Credit(makeAddress(0x06), nil); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}
