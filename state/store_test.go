package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stablenet/core/types"
	"stablenet/crypto"
	"stablenet/native/liquidation"
	"stablenet/native/vault"
	"stablenet/storage"
)

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = tag
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func TestVaultRoundTrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetVault(1)
	require.NoError(t, err)
	require.Nil(t, missing)

	owner := testAddr(0x01)
	v := &vault.Vault{
		ID:             1,
		Owner:          owner,
		CollateralType: "ETH",
		Shares:         big.NewInt(12345),
		Debt:           big.NewInt(678),
		Active:         true,
	}
	require.NoError(t, store.PutVault(v))

	loaded, err := store.GetVault(1)
	require.NoError(t, err)
	require.Equal(t, v.ID, loaded.ID)
	require.True(t, loaded.Owner.Equal(owner))
	require.Equal(t, "ETH", loaded.CollateralType)
	require.Zero(t, loaded.Shares.Cmp(v.Shares))
	require.Zero(t, loaded.Debt.Cmp(v.Debt))
	require.True(t, loaded.Active)
}

func TestNextVaultIDMonotonic(t *testing.T) {
	store := newTestStore(t)
	first, err := store.NextVaultID()
	require.NoError(t, err)
	second, err := store.NextVaultID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(2), second)
}

func TestCollateralConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	missing, err := store.GetCollateralConfig("ETH")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.PutCollateralConfig("ETH", &vault.CollateralConfig{LTVBps: 5_000, Enabled: true}))
	cfg, err := store.GetCollateralConfig("ETH")
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), cfg.LTVBps)
	require.True(t, cfg.Enabled)
}

func TestQueueRoundTrip(t *testing.T) {
	store := newTestStore(t)
	queue, err := store.LoadQueue()
	require.NoError(t, err)
	require.Empty(t, queue)

	require.NoError(t, store.StoreQueue([]uint64{3, 1, 2}))
	queue, err = store.LoadQueue()
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 1, 2}, queue)
}

func TestBatchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	latest, err := store.LatestBatchID()
	require.NoError(t, err)
	require.Zero(t, latest)

	batch := &liquidation.Batch{
		ID:              1,
		CollateralType:  "ETH",
		VaultIDs:        []uint64{4, 5},
		Lots:            []*big.Int{big.NewInt(10), big.NewInt(20)},
		TotalQtyOffered: big.NewInt(30),
		StartCommit:     1_000,
		StartReveal:     1_100,
		EndReveal:       1_200,
		ClearingPrice:   big.NewInt(0),
	}
	require.NoError(t, store.PutBatch(batch))
	require.NoError(t, store.SetLatestBatchID(batch.ID))

	loaded, err := store.GetBatch(1)
	require.NoError(t, err)
	require.Equal(t, batch.VaultIDs, loaded.VaultIDs)
	require.Zero(t, loaded.TotalQtyOffered.Cmp(big.NewInt(30)))
	require.Equal(t, int64(1_100), loaded.StartReveal)

	latest, err = store.LatestBatchID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), latest)
}

func TestCommitmentOrderAndOverwrite(t *testing.T) {
	store := newTestStore(t)
	first := testAddr(0x01)
	second := testAddr(0x02)

	missing, err := store.GetCommitment(1, first)
	require.NoError(t, err)
	require.Nil(t, missing)

	c1 := &liquidation.Commitment{Bidder: first, Bond: big.NewInt(100)}
	c1.Hash[0] = 0xAB
	c2 := &liquidation.Commitment{Bidder: second, Bond: big.NewInt(200)}
	require.NoError(t, store.PutCommitment(1, c1))
	require.NoError(t, store.PutCommitment(1, c2))

	// Overwriting does not duplicate the index entry or reorder it.
	c1.Revealed = true
	c1.Refunded = true
	require.NoError(t, store.PutCommitment(1, c1))

	list, err := store.ListCommitments(1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].Bidder.Equal(first))
	require.True(t, list[1].Bidder.Equal(second))
	require.True(t, list[0].Revealed)
	require.True(t, list[0].Refunded)
	require.Equal(t, byte(0xAB), list[0].Hash[0])
}

func TestBidsAppendOrder(t *testing.T) {
	store := newTestStore(t)
	bids, err := store.ListBids(1)
	require.NoError(t, err)
	require.Empty(t, bids)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.AppendBid(1, &liquidation.Bid{
			Bidder:  testAddr(byte(i)),
			VaultID: uint64(i),
			Qty:     big.NewInt(int64(i * 10)),
			Price:   big.NewInt(int64(i * 100)),
			Valid:   i%2 == 1,
		}))
	}
	bids, err = store.ListBids(1)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	for i, bid := range bids {
		require.Equal(t, uint64(i+1), bid.VaultID)
		require.Zero(t, bid.Qty.Cmp(big.NewInt(int64((i+1)*10))))
	}
}

func TestAccountAndPoolDeposit(t *testing.T) {
	store := newTestStore(t)
	addr := testAddr(0x01)

	missing, err := store.GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.PutAccount(addr, &types.Account{
		Nonce:         7,
		BalanceStable: big.NewInt(500),
		BalanceNative: big.NewInt(900),
	}))
	acc, err := store.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(7), acc.Nonce)
	require.Zero(t, acc.BalanceStable.Cmp(big.NewInt(500)))
	require.Zero(t, acc.BalanceNative.Cmp(big.NewInt(900)))

	deposit, err := store.GetPoolDeposit(addr)
	require.NoError(t, err)
	require.Nil(t, deposit)
	require.NoError(t, store.PutPoolDeposit(addr, big.NewInt(321)))
	deposit, err = store.GetPoolDeposit(addr)
	require.NoError(t, err)
	require.Zero(t, deposit.Cmp(big.NewInt(321)))
}

func TestLedgerMintBurn(t *testing.T) {
	store := newTestStore(t)
	ledger := NewLedger(store)
	addr := testAddr(0x01)

	require.ErrorIs(t, ledger.Mint(addr, big.NewInt(0)), ErrInvalidAmount)
	require.NoError(t, ledger.Mint(addr, big.NewInt(1_000)))
	require.ErrorIs(t, ledger.Burn(addr, big.NewInt(2_000)), ErrInsufficientBalance)
	require.NoError(t, ledger.Burn(addr, big.NewInt(400)))

	acc, err := store.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, acc.BalanceStable.Cmp(big.NewInt(600)))
}
