package liquidation

import (
	"fmt"
	"math/big"
	"strings"

	"stablenet/core/types"
	"stablenet/crypto"
)

const (
	// EventTypeVaultEnqueued is emitted when a vault joins the pending queue.
	EventTypeVaultEnqueued = "liquidation.vault.enqueued"
	// EventTypeBatchStarted is emitted when a new batch opens for commitments.
	EventTypeBatchStarted = "liquidation.batch.started"
	// EventTypeBidCommitted is emitted when a sealed bid is accepted.
	EventTypeBidCommitted = "liquidation.bid.committed"
	// EventTypeBidRevealed is emitted when a commitment is opened.
	EventTypeBidRevealed = "liquidation.bid.revealed"
	// EventTypeBondSlashed is emitted when an unrevealed bond forfeits.
	EventTypeBondSlashed = "liquidation.bond.slashed"
	// EventTypeWinnerSkipped is emitted when a winner fails to fund its fill.
	EventTypeWinnerSkipped = "liquidation.winner.skipped"
	// EventTypeBatchSettled is emitted once per batch at settlement.
	EventTypeBatchSettled = "liquidation.batch.settled"
)

type liquidationEvent struct {
	evt *types.Event
}

func (e liquidationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event exposes the underlying attribute payload.
func (e liquidationEvent) Event() *types.Event { return e.evt }

// NewVaultEnqueuedEvent records a vault entering the pending queue.
func NewVaultEnqueuedEvent(vaultID uint64) liquidationEvent {
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeVaultEnqueued,
		Attributes: map[string]string{
			"vaultId": fmt.Sprintf("%d", vaultID),
		},
	}}
}

// NewBatchStartedEvent records the frozen shape of a freshly opened batch.
func NewBatchStartedEvent(batch *Batch) liquidationEvent {
	if batch == nil {
		return liquidationEvent{}
	}
	ids := make([]string, len(batch.VaultIDs))
	for i, id := range batch.VaultIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeBatchStarted,
		Attributes: map[string]string{
			"batchId":        fmt.Sprintf("%d", batch.ID),
			"collateralType": batch.CollateralType,
			"vaultIds":       strings.Join(ids, ","),
			"totalQty":       bigString(batch.TotalQtyOffered),
			"startReveal":    fmt.Sprintf("%d", batch.StartReveal),
			"endReveal":      fmt.Sprintf("%d", batch.EndReveal),
		},
	}}
}

// NewBidCommittedEvent records an accepted sealed bid. Only the bond is
// disclosed; the bid itself stays sealed until reveal.
func NewBidCommittedEvent(batchID uint64, bidder crypto.Address, bond *big.Int) liquidationEvent {
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeBidCommitted,
		Attributes: map[string]string{
			"batchId": fmt.Sprintf("%d", batchID),
			"bidder":  bidder.String(),
			"bond":    bigString(bond),
		},
	}}
}

// NewBidRevealedEvent records an opened commitment together with its validity.
func NewBidRevealedEvent(batchID uint64, bid *Bid) liquidationEvent {
	if bid == nil {
		return liquidationEvent{}
	}
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeBidRevealed,
		Attributes: map[string]string{
			"batchId": fmt.Sprintf("%d", batchID),
			"bidder":  bid.Bidder.String(),
			"vaultId": fmt.Sprintf("%d", bid.VaultID),
			"qty":     bigString(bid.Qty),
			"price":   bigString(bid.Price),
			"valid":   fmt.Sprintf("%t", bid.Valid),
		},
	}}
}

// NewBondSlashedEvent records a forfeited bond routed to the treasury.
func NewBondSlashedEvent(batchID uint64, c *Commitment) liquidationEvent {
	if c == nil {
		return liquidationEvent{}
	}
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeBondSlashed,
		Attributes: map[string]string{
			"batchId": fmt.Sprintf("%d", batchID),
			"bidder":  c.Bidder.String(),
			"bond":    bigString(c.Bond),
		},
	}}
}

// NewWinnerSkippedEvent records a winning bid dropped for failed payment.
func NewWinnerSkippedEvent(batchID uint64, bid *Bid, cost *big.Int) liquidationEvent {
	if bid == nil {
		return liquidationEvent{}
	}
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeWinnerSkipped,
		Attributes: map[string]string{
			"batchId": fmt.Sprintf("%d", batchID),
			"bidder":  bid.Bidder.String(),
			"qty":     bigString(bid.Qty),
			"cost":    bigString(cost),
		},
	}}
}

// NewBatchSettledEvent records the terminal outcome of a batch.
func NewBatchSettledEvent(batch *Batch, totalFilled *big.Int) liquidationEvent {
	if batch == nil {
		return liquidationEvent{}
	}
	return liquidationEvent{evt: &types.Event{
		Type: EventTypeBatchSettled,
		Attributes: map[string]string{
			"batchId":       fmt.Sprintf("%d", batch.ID),
			"clearingPrice": bigString(batch.ClearingPrice),
			"totalFilled":   bigString(totalFilled),
		},
	}}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
