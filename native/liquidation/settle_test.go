package liquidation

import (
	"bytes"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	nativecommon "stablenet/native/common"
)

func startSingleVaultBatch(t *testing.T, env *testEnv, shares *big.Int) *Batch {
	t.Helper()
	env.addVault(1, "ETH", shares, big.NewInt(1_000))
	if err := env.engine.Enqueue(1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	batch, err := env.engine.StartBatch()
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	return batch
}

func TestSettleSingleBidderPartialFill(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))

	bidder := testAddr(0x01)
	env.fund(bidder, big.NewInt(10_000))
	halfShare := new(big.Int).Rsh(wad(1), 1)
	env.commitAndReveal(t, batch.ID, 1, bidder, halfShare, wad(100), big.NewInt(2_000))

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	settled, err := env.engine.GetBatch(batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !settled.Settled {
		t.Fatal("batch must be settled")
	}
	// Demand under supply clears at the only bid's price.
	if settled.ClearingPrice.Cmp(wad(100)) != 0 {
		t.Fatalf("clearing price = %s, want %s", settled.ClearingPrice, wad(100))
	}
	if len(env.pool.burns) != 1 {
		t.Fatalf("expected one payment, got %d", len(env.pool.burns))
	}
	if got, want := env.pool.burns[0].amount, wad(50); got.Cmp(want) != 0 {
		t.Fatalf("payment = %s, want %s", got, want)
	}
	if len(env.vaults.calls) != 1 {
		t.Fatalf("expected one settlement callback, got %d", len(env.vaults.calls))
	}
	call := env.vaults.calls[0]
	if len(call.fills) != 1 || call.fills[0].Cmp(halfShare) != 0 {
		t.Fatalf("fill = %v, want [%s]", call.fills, halfShare)
	}
	if call.clearing.Cmp(wad(100)) != 0 {
		t.Fatalf("callback clearing = %s, want %s", call.clearing, wad(100))
	}
}

func TestSettleOversubscribedProRata(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(10))

	bidderA, bidderB, bidderC := testAddr(0x01), testAddr(0x02), testAddr(0x03)
	env.fund(bidderA, big.NewInt(10_000))
	env.fund(bidderB, big.NewInt(10_000))
	env.fund(bidderC, big.NewInt(10_000))
	env.commitAndReveal(t, batch.ID, 1, bidderA, wad(6), wad(1_500), big.NewInt(2_000))
	env.commitAndReveal(t, batch.ID, 1, bidderB, wad(4), wad(1_450), big.NewInt(2_000))
	env.commitAndReveal(t, batch.ID, 1, bidderC, wad(8), wad(1_400), big.NewInt(2_000))

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	settled, _ := env.engine.GetBatch(batch.ID)
	// Cumulative demand crosses supply at the 1400 bid.
	if settled.ClearingPrice.Cmp(wad(1_400)) != 0 {
		t.Fatalf("clearing price = %s, want %s", settled.ClearingPrice, wad(1_400))
	}

	// Each winner is scaled by 10/18 with floor rounding and pays the
	// uniform clearing price for the allocation received.
	wantAllocs := map[string]*big.Int{
		bidderA.String(): nativecommon.MulDiv(wad(6), wad(10), wad(18)),
		bidderB.String(): nativecommon.MulDiv(wad(4), wad(10), wad(18)),
		bidderC.String(): nativecommon.MulDiv(wad(8), wad(10), wad(18)),
	}
	if len(env.pool.burns) != 3 {
		t.Fatalf("expected three payments, got %d", len(env.pool.burns))
	}
	for _, burn := range env.pool.burns {
		alloc, ok := wantAllocs[burn.from.String()]
		if !ok {
			t.Fatalf("unexpected payer %s", burn.from.String())
		}
		want := nativecommon.MulWad(alloc, wad(1_400))
		if burn.amount.Cmp(want) != 0 {
			t.Fatalf("payment from %s = %s, want %s", burn.from.String(), burn.amount, want)
		}
	}

	totalFilled := big.NewInt(0)
	for _, alloc := range wantAllocs {
		totalFilled.Add(totalFilled, alloc)
	}
	// Floor rounding leaves dust unfilled with the vault.
	if totalFilled.Cmp(wad(10)) >= 0 {
		t.Fatalf("total filled %s should be under supply %s", totalFilled, wad(10))
	}
	call := env.vaults.calls[0]
	if call.fills[0].Cmp(totalFilled) != 0 {
		t.Fatalf("vault fill = %s, want %s", call.fills[0], totalFilled)
	}
}

func TestSettleSlashesUnrevealedBonds(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))

	silent := testAddr(0x01)
	env.fund(silent, big.NewInt(10_000))
	hash := CommitmentHash(batch.ID, 1, wad(1), wad(100), randomSalt(t), silent)
	if err := env.engine.CommitBid(silent, batch.ID, hash, big.NewInt(2_000)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := env.balance(env.treasury); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("treasury balance = %s, want 2000", got)
	}
	if got := env.balance(env.module); got.Sign() != 0 {
		t.Fatalf("module custody not emptied: %s", got)
	}
	commitments, _ := env.state.ListCommitments(batch.ID)
	if len(commitments) != 1 || !commitments[0].Slashed || commitments[0].Refunded {
		t.Fatalf("unexpected commitment state: %+v", commitments[0])
	}
	// No valid bids: clearing zero, vault returns to the queue untouched.
	settled, _ := env.engine.GetBatch(batch.ID)
	if settled.ClearingPrice.Sign() != 0 {
		t.Fatalf("clearing price = %s, want 0", settled.ClearingPrice)
	}
	if len(env.vaults.calls) != 0 {
		t.Fatal("no vault mutation expected for an empty settlement")
	}
	queue, _ := env.engine.PendingQueue()
	if len(queue) != 1 || queue[0] != 1 {
		t.Fatalf("vault should be requeued, got %v", queue)
	}
}

func TestSettleExcludesInvalidReveals(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))

	cheater := testAddr(0x01)
	honest := testAddr(0x02)
	env.fund(cheater, big.NewInt(10_000))
	env.fund(honest, big.NewInt(10_000))

	salt := randomSalt(t)
	hash := CommitmentHash(batch.ID, 1, wad(1), wad(200), salt, cheater)
	if err := env.engine.CommitBid(cheater, batch.ID, hash, big.NewInt(2_000)); err != nil {
		t.Fatalf("commit cheater: %v", err)
	}
	env.commitAndReveal(t, batch.ID, 1, honest, wad(1), wad(100), big.NewInt(2_000))

	env.now = batch.StartReveal
	valid, err := env.engine.RevealBid(cheater, batch.ID, 1, wad(2), wad(200), salt)
	if err != nil {
		t.Fatalf("reveal cheater: %v", err)
	}
	if valid {
		t.Fatal("mismatched reveal must be invalid")
	}

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// Invalid bid is excluded: the honest bid alone sets the clearing price.
	settled, _ := env.engine.GetBatch(batch.ID)
	if settled.ClearingPrice.Cmp(wad(100)) != 0 {
		t.Fatalf("clearing price = %s, want %s", settled.ClearingPrice, wad(100))
	}
	if got := env.balance(env.treasury); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("treasury should hold the forfeited bond, got %s", got)
	}
	if got := env.balance(honest); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("honest bond must be refunded, balance %s", got)
	}
}

func TestSettleEmptyBatch(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	settled, _ := env.engine.GetBatch(batch.ID)
	if !settled.Settled || settled.ClearingPrice.Sign() != 0 {
		t.Fatalf("want settled with zero clearing, got settled=%t price=%s", settled.Settled, settled.ClearingPrice)
	}
	if len(env.vaults.calls) != 0 || len(env.pool.burns) != 0 {
		t.Fatal("empty settlement must not touch vaults or collect payment")
	}
	queue, _ := env.engine.PendingQueue()
	if len(queue) != 1 || queue[0] != 1 {
		t.Fatalf("vault should be requeued, got %v", queue)
	}
}

func TestSettleIdempotence(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))

	bidder := testAddr(0x01)
	env.fund(bidder, big.NewInt(10_000))
	env.commitAndReveal(t, batch.ID, 1, bidder, wad(1), wad(100), big.NewInt(2_000))

	env.now = batch.EndReveal - 1
	if err := env.engine.Settle(batch.ID); err != ErrCannotSettleYet {
		t.Fatalf("expected ErrCannotSettleYet, got %v", err)
	}

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	first, _ := env.engine.GetBatch(batch.ID)
	treasury := env.balance(env.treasury)
	burns := len(env.pool.burns)
	calls := len(env.vaults.calls)

	if err := env.engine.Settle(batch.ID); err != ErrBatchAlreadySettled {
		t.Fatalf("expected ErrBatchAlreadySettled, got %v", err)
	}
	second, _ := env.engine.GetBatch(batch.ID)
	if second.ClearingPrice.Cmp(first.ClearingPrice) != 0 {
		t.Fatal("repeat settle mutated clearing price")
	}
	if env.balance(env.treasury).Cmp(treasury) != 0 {
		t.Fatal("repeat settle moved bond value")
	}
	if len(env.pool.burns) != burns || len(env.vaults.calls) != calls {
		t.Fatal("repeat settle produced side effects")
	}
}

func TestSettleSkipsWinnerOnPaymentFailure(t *testing.T) {
	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(2))

	broke := testAddr(0x01)
	solvent := testAddr(0x02)
	env.fund(broke, big.NewInt(10_000))
	env.fund(solvent, big.NewInt(10_000))
	env.pool.failFor[broke.String()] = true

	env.commitAndReveal(t, batch.ID, 1, broke, wad(1), wad(100), big.NewInt(2_000))
	env.commitAndReveal(t, batch.ID, 1, solvent, wad(1), wad(100), big.NewInt(2_000))

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// The failed winner's fill is forgone; the batch settles on the rest.
	if len(env.pool.burns) != 1 || !env.pool.burns[0].from.Equal(solvent) {
		t.Fatalf("expected a single payment from the solvent winner, got %+v", env.pool.burns)
	}
	call := env.vaults.calls[0]
	if call.fills[0].Cmp(wad(1)) != 0 {
		t.Fatalf("vault fill = %s, want %s", call.fills[0], wad(1))
	}
	settled, _ := env.engine.GetBatch(batch.ID)
	if !settled.Settled {
		t.Fatal("batch must settle despite the payment failure")
	}
}

func TestSettleWarnsWhenNoAdapterRegistered(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	env := newTestEnv(t, defaultParams())
	batch := startSingleVaultBatch(t, env, wad(1))
	bidder := testAddr(0x01)
	env.fund(bidder, big.NewInt(10_000))
	env.commitAndReveal(t, batch.ID, 1, bidder, wad(1), wad(100), big.NewInt(2_000))

	env.now = batch.EndReveal
	if err := env.engine.Settle(batch.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// The winner paid, so an undeliverable allocation must leave a trace.
	if len(env.pool.burns) != 1 {
		t.Fatalf("expected one payment, got %d", len(env.pool.burns))
	}
	if !strings.Contains(buf.String(), "no collateral adapter") {
		t.Fatalf("expected a delivery-skip warning, got %q", buf.String())
	}
}

func TestClearingPriceMonotonicity(t *testing.T) {
	supply := wad(10)
	base := []*Bid{
		{Qty: wad(6), Price: wad(1_500), Valid: true},
		{Qty: wad(8), Price: wad(1_400), Valid: true},
	}
	baseline := computeClearingPrice(base, supply)

	// Adding a strictly higher bid never decreases the clearing price.
	higher := append(append([]*Bid(nil), base...), &Bid{Qty: wad(5), Price: wad(1_600), Valid: true})
	if raised := computeClearingPrice(higher, supply); raised.Cmp(baseline) < 0 {
		t.Fatalf("adding a higher bid lowered clearing: %s -> %s", baseline, raised)
	}
	// Removing the highest bid never increases it.
	trimmed := base[1:]
	if lowered := computeClearingPrice(trimmed, supply); lowered.Cmp(baseline) > 0 {
		t.Fatalf("removing the top bid raised clearing: %s -> %s", baseline, lowered)
	}
}

func TestClearingPriceEdgeCases(t *testing.T) {
	if got := computeClearingPrice(nil, wad(10)); got.Sign() != 0 {
		t.Fatalf("no bids should clear at 0, got %s", got)
	}
	// Demand below supply clears at the lowest offered price.
	under := []*Bid{
		{Qty: wad(2), Price: wad(1_500), Valid: true},
		{Qty: wad(3), Price: wad(1_200), Valid: true},
	}
	if got := computeClearingPrice(under, wad(10)); got.Cmp(wad(1_200)) != 0 {
		t.Fatalf("undersubscribed clearing = %s, want %s", got, wad(1_200))
	}
	// Exact cover clears at the marginal bid.
	exact := []*Bid{
		{Qty: wad(4), Price: wad(1_500), Valid: true},
		{Qty: wad(6), Price: wad(1_300), Valid: true},
	}
	if got := computeClearingPrice(exact, wad(10)); got.Cmp(wad(1_300)) != 0 {
		t.Fatalf("exact-cover clearing = %s, want %s", got, wad(1_300))
	}
}

func TestProRataFairnessAtEqualPrices(t *testing.T) {
	// Two same-price bids in an oversubscribed batch: allocations must keep
	// the quantity ratio within one unit of flooring tolerance.
	bids := []*Bid{
		{Qty: wad(6), Price: wad(1_000), Valid: true},
		{Qty: wad(3), Price: wad(1_000), Valid: true},
	}
	winners, allocations := allocateProRata(bids, wad(1_000), wad(5))
	if len(winners) != 2 {
		t.Fatalf("expected both bids to win, got %d", len(winners))
	}
	// alloc0/alloc1 should equal qty0/qty1 = 2 within a unit.
	double := new(big.Int).Lsh(allocations[1], 1)
	diff := new(big.Int).Sub(allocations[0], double)
	if diff.CmpAbs(big.NewInt(2)) > 0 {
		t.Fatalf("allocation ratio drifted: %s vs 2*%s", allocations[0], allocations[1])
	}
	total := new(big.Int).Add(allocations[0], allocations[1])
	if total.Cmp(wad(5)) > 0 {
		t.Fatalf("allocations exceed supply: %s", total)
	}
}

func TestAllocateKeepsRevealOrder(t *testing.T) {
	first := testAddr(0x01)
	second := testAddr(0x02)
	bids := []*Bid{
		{Bidder: first, Qty: wad(4), Price: wad(1_000), Valid: true},
		{Bidder: second, Qty: wad(4), Price: wad(1_000), Valid: true},
	}
	winners, _ := allocateProRata(bids, wad(1_000), wad(5))
	if !winners[0].Bidder.Equal(first) || !winners[1].Bidder.Equal(second) {
		t.Fatal("winners must preserve reveal order for deterministic settlement")
	}
}
