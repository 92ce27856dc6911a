package liquidation

import (
	"log/slog"
	"math/big"
	"sort"
	"time"

	nativecommon "stablenet/native/common"
)

// Settle closes a batch after its reveal window: forfeited bonds are slashed
// to the treasury exactly once, the uniform clearing price is computed and
// recorded even when zero, winners are filled pro rata at the clearing price,
// and the health engine callback applies the fills to vault state. The
// settled flag is persisted before any value transfer so re-entrant or
// repeated settlement hits a state-conflict error instead of double effects.
func (e *Engine) Settle(batchID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	batch, err := e.loadBatch(batchID)
	if err != nil {
		return err
	}
	if batch.Settled {
		return ErrBatchAlreadySettled
	}
	if e.now() < batch.EndReveal {
		return ErrCannotSettleYet
	}
	began := time.Now()

	// Authoritative transition first; every later step observes a settled
	// batch.
	batch.Settled = true
	if err := e.state.PutBatch(batch); err != nil {
		return err
	}

	slashed, err := e.slashForfeitedBonds(batchID)
	if err != nil {
		return err
	}
	e.metrics.AddBondsSlashed(slashed)

	bids, err := e.state.ListBids(batchID)
	if err != nil {
		return err
	}
	valid := make([]*Bid, 0, len(bids))
	for _, bid := range bids {
		if bid != nil && bid.Valid {
			valid = append(valid, bid)
		}
	}

	clearing := computeClearingPrice(valid, batch.TotalQtyOffered)
	batch.ClearingPrice = clearing
	if err := e.state.PutBatch(batch); err != nil {
		return err
	}

	if clearing.Sign() == 0 {
		// No valid demand: the batch closes empty and its vaults return to
		// the pending queue for a future auction.
		if err := e.requeueVaults(batch.VaultIDs); err != nil {
			return err
		}
		e.metrics.ObserveBatchSettled("empty", clearing, time.Since(began).Seconds())
		e.emit(NewBatchSettledEvent(batch, big.NewInt(0)))
		return nil
	}

	winners, allocations := allocateProRata(valid, clearing, batch.TotalQtyOffered)

	// Collect payment winner by winner. A winner that cannot fund the cost
	// forfeits the fill; the batch settles regardless.
	totalFilled := big.NewInt(0)
	for i, winner := range winners {
		alloc := allocations[i]
		if alloc == nil || alloc.Sign() == 0 {
			continue
		}
		cost := nativecommon.MulWad(alloc, clearing)
		if cost.Sign() > 0 {
			if err := e.pool.BurnStableFrom(winner.Bidder, cost); err != nil {
				slog.Warn("liquidation winner payment failed, forfeiting fill",
					"batch", batch.ID, "bidder", winner.Bidder.String(), "cost", cost.String(), "err", err)
				e.metrics.ObserveWinnerSkipped()
				e.emit(NewWinnerSkippedEvent(batch.ID, winner, cost))
				allocations[i] = big.NewInt(0)
				continue
			}
		}
		totalFilled = new(big.Int).Add(totalFilled, alloc)
	}

	// Map the batch-level fill onto vaults in batch order.
	fills := make([]*big.Int, len(batch.VaultIDs))
	remaining := new(big.Int).Set(totalFilled)
	filledVaults := 0
	for i, lot := range batch.Lots {
		fill := new(big.Int).Set(lot)
		if fill.Cmp(remaining) > 0 {
			fill = new(big.Int).Set(remaining)
		}
		fills[i] = fill
		remaining = new(big.Int).Sub(remaining, fill)
		if fill.Sign() > 0 {
			filledVaults++
		}
	}
	if err := e.vaults.OnLiquidationSettle(batch.VaultIDs, fills, clearing); err != nil {
		return err
	}
	e.metrics.AddVaultsLiquidated(filledVaults)

	// Deliver collateral to the paying winners through the adapter.
	adapter, ok := e.adapters[batch.CollateralType]
	if !ok {
		slog.Warn("no collateral adapter registered, delivery skipped",
			"batch", batch.ID, "collateral", batch.CollateralType)
	} else {
		for i, winner := range winners {
			alloc := allocations[i]
			if alloc == nil || alloc.Sign() == 0 {
				continue
			}
			if _, err := adapter.Withdraw(alloc, winner.Bidder, e.moduleAddr); err != nil {
				slog.Warn("collateral delivery failed after settlement",
					"batch", batch.ID, "bidder", winner.Bidder.String(), "alloc", alloc.String(), "err", err)
			}
		}
	}

	e.metrics.ObserveBatchSettled("filled", clearing, time.Since(began).Seconds())
	e.emit(NewBatchSettledEvent(batch, totalFilled))
	return nil
}

// slashForfeitedBonds moves every unrefunded bond to the treasury exactly
// once and returns the total amount slashed.
func (e *Engine) slashForfeitedBonds(batchID uint64) (*big.Int, error) {
	commitments, err := e.state.ListCommitments(batchID)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, c := range commitments {
		if c == nil || c.Refunded || c.Slashed || c.Bond == nil || c.Bond.Sign() == 0 {
			continue
		}
		moduleAcc, err := e.loadAccount(e.moduleAddr)
		if err != nil {
			return nil, err
		}
		treasuryAcc, err := e.loadAccount(e.treasury)
		if err != nil {
			return nil, err
		}
		moduleAcc.BalanceNative = new(big.Int).Sub(moduleAcc.BalanceNative, c.Bond)
		treasuryAcc.BalanceNative = new(big.Int).Add(treasuryAcc.BalanceNative, c.Bond)
		if err := e.state.PutAccount(e.moduleAddr, moduleAcc); err != nil {
			return nil, err
		}
		if err := e.state.PutAccount(e.treasury, treasuryAcc); err != nil {
			return nil, err
		}
		c.Slashed = true
		if err := e.state.PutCommitment(batchID, c); err != nil {
			return nil, err
		}
		total = new(big.Int).Add(total, c.Bond)
		e.emit(NewBondSlashedEvent(batchID, c))
	}
	return total, nil
}

func (e *Engine) requeueVaults(vaultIDs []uint64) error {
	queue, err := e.state.LoadQueue()
	if err != nil {
		return err
	}
	for _, id := range vaultIDs {
		if !containsVault(queue, id) {
			queue = append(queue, id)
		}
	}
	return e.state.StoreQueue(queue)
}

// computeClearingPrice implements the uniform-price rule: valid bids sorted
// descending by price (ties keep reveal order), walked until cumulative
// quantity covers the offered supply; the marginal bid's price clears. When
// demand falls short of supply every bid wins at the lowest offered price,
// and with no valid bids the price is zero.
func computeClearingPrice(valid []*Bid, totalQty *big.Int) *big.Int {
	if len(valid) == 0 || totalQty == nil || totalQty.Sign() == 0 {
		return big.NewInt(0)
	}
	sorted := make([]*Bid, len(valid))
	copy(sorted, valid)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.Cmp(sorted[j].Price) > 0
	})
	cumulative := big.NewInt(0)
	for _, bid := range sorted {
		cumulative = new(big.Int).Add(cumulative, bid.Qty)
		if cumulative.Cmp(totalQty) >= 0 {
			return new(big.Int).Set(bid.Price)
		}
	}
	// Demand < supply: full fill at the worst price offered.
	return new(big.Int).Set(sorted[len(sorted)-1].Price)
}

// allocateProRata fills every valid bid priced at or above the clearing
// price. Oversubscription scales each allocation by totalQty/D with floor
// rounding; the flooring remainder is deliberately left unfilled and stays
// with the vaults. Winners are returned in reveal order.
func allocateProRata(valid []*Bid, clearing, totalQty *big.Int) ([]*Bid, []*big.Int) {
	winners := make([]*Bid, 0, len(valid))
	demand := big.NewInt(0)
	for _, bid := range valid {
		if bid.Price.Cmp(clearing) >= 0 {
			winners = append(winners, bid)
			demand = new(big.Int).Add(demand, bid.Qty)
		}
	}
	allocations := make([]*big.Int, len(winners))
	if demand.Sign() == 0 {
		return winners, allocations
	}
	oversubscribed := demand.Cmp(totalQty) > 0
	for i, winner := range winners {
		if oversubscribed {
			allocations[i] = nativecommon.MulDiv(winner.Qty, totalQty, demand)
		} else {
			allocations[i] = new(big.Int).Set(winner.Qty)
		}
	}
	return winners, allocations
}
