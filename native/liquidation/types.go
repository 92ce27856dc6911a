package liquidation

import (
	"math/big"

	"stablenet/crypto"
)

// Phase describes where a batch sits in its lifecycle. Phases are derived
// from the stored deadlines and the settled flag, never from call counts.
type Phase uint8

const (
	PhaseCommitting Phase = iota
	PhaseRevealing
	PhaseSettleable
	PhaseSettled
)

// String renders the phase for events and telemetry.
func (p Phase) String() string {
	switch p {
	case PhaseCommitting:
		return "committing"
	case PhaseRevealing:
		return "revealing"
	case PhaseSettleable:
		return "settleable"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Batch is a sealed-bid auction instance over a set of queued vaults sharing
// one collateral type. Lots and deadlines are frozen at creation so the
// clearing target cannot drift while the auction runs.
type Batch struct {
	ID             uint64
	CollateralType string
	VaultIDs       []uint64
	// Lots holds the per-vault offered share quantity, index-aligned with
	// VaultIDs and fixed at batch creation.
	Lots            []*big.Int
	TotalQtyOffered *big.Int
	StartCommit     int64
	StartReveal     int64
	EndReveal       int64
	ClearingPrice   *big.Int
	Settled         bool
}

// Phase derives the batch phase at the given unix time.
func (b *Batch) Phase(now int64) Phase {
	if b == nil {
		return PhaseSettled
	}
	if b.Settled {
		return PhaseSettled
	}
	switch {
	case now < b.StartReveal:
		return PhaseCommitting
	case now < b.EndReveal:
		return PhaseRevealing
	default:
		return PhaseSettleable
	}
}

// Clone returns a deep copy of the batch record.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	clone := &Batch{
		ID:             b.ID,
		CollateralType: b.CollateralType,
		VaultIDs:       append([]uint64(nil), b.VaultIDs...),
		StartCommit:    b.StartCommit,
		StartReveal:    b.StartReveal,
		EndReveal:      b.EndReveal,
		Settled:        b.Settled,
	}
	if len(b.Lots) > 0 {
		clone.Lots = make([]*big.Int, len(b.Lots))
		for i, lot := range b.Lots {
			if lot != nil {
				clone.Lots[i] = new(big.Int).Set(lot)
			}
		}
	}
	if b.TotalQtyOffered != nil {
		clone.TotalQtyOffered = new(big.Int).Set(b.TotalQtyOffered)
	}
	if b.ClearingPrice != nil {
		clone.ClearingPrice = new(big.Int).Set(b.ClearingPrice)
	}
	return clone
}

// Commitment records a sealed bid: an opaque hash plus the deposited bond.
// Refunded flips when the bond returns to the bidder (valid reveal or
// overwrite); Slashed flips exactly once at settlement for bonds that never
// earned a refund.
type Commitment struct {
	Bidder   crypto.Address
	Hash     [32]byte
	Bond     *big.Int
	Revealed bool
	Refunded bool
	Slashed  bool
}

// Clone returns a deep copy of the commitment record.
func (c *Commitment) Clone() *Commitment {
	if c == nil {
		return nil
	}
	clone := &Commitment{
		Bidder:   c.Bidder,
		Hash:     c.Hash,
		Revealed: c.Revealed,
		Refunded: c.Refunded,
		Slashed:  c.Slashed,
	}
	if c.Bond != nil {
		clone.Bond = new(big.Int).Set(c.Bond)
	}
	return clone
}

// Bid is the revealed form of a commitment. Records are append-only; reveal
// order doubles as the deterministic tie-break for equal prices.
type Bid struct {
	Bidder  crypto.Address
	VaultID uint64
	Qty     *big.Int
	Price   *big.Int
	Valid   bool
}

// Clone returns a deep copy of the bid record.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := &Bid{Bidder: b.Bidder, VaultID: b.VaultID, Valid: b.Valid}
	if b.Qty != nil {
		clone.Qty = new(big.Int).Set(b.Qty)
	}
	if b.Price != nil {
		clone.Price = new(big.Int).Set(b.Price)
	}
	return clone
}

// Params groups the governance-controlled auction knobs.
type Params struct {
	// CommitWindowSecs is the sealed-bid submission duration.
	CommitWindowSecs int64
	// RevealWindowSecs is the reveal duration following the commit window.
	RevealWindowSecs int64
	// MinCommitBond is the smallest accepted bond in native wei.
	MinCommitBond *big.Int
	// MinLot is the smallest revealable bid quantity in share units.
	MinLot *big.Int
	// MaxBatchSize caps vaults per batch, bounding settlement cost.
	MaxBatchSize int
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := Params{
		CommitWindowSecs: p.CommitWindowSecs,
		RevealWindowSecs: p.RevealWindowSecs,
		MaxBatchSize:     p.MaxBatchSize,
	}
	if p.MinCommitBond != nil {
		clone.MinCommitBond = new(big.Int).Set(p.MinCommitBond)
	}
	if p.MinLot != nil {
		clone.MinLot = new(big.Int).Set(p.MinLot)
	}
	return clone
}
