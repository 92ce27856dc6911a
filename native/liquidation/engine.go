package liquidation

import (
	"errors"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stablenet/core/events"
	"stablenet/core/types"
	"stablenet/crypto"
	nativecommon "stablenet/native/common"
	"stablenet/native/vault"
	"stablenet/observability"
)

var (
	// ErrNilState indicates the engine has not been wired to a state backend.
	ErrNilState = errors.New("liquidation engine: state not configured")
	// ErrVaultAlreadyQueued rejects duplicate queue entries.
	ErrVaultAlreadyQueued = errors.New("liquidation engine: vault already queued")
	// ErrEmptyQueue rejects batch creation with nothing pending.
	ErrEmptyQueue = errors.New("liquidation engine: queue is empty")
	// ErrBatchActive rejects batch creation while the prior batch is still
	// inside its commit or reveal window.
	ErrBatchActive = errors.New("liquidation engine: previous batch still active")
	// ErrBatchNotFound indicates an unknown batch identifier.
	ErrBatchNotFound = errors.New("liquidation engine: batch not found")
	// ErrBatchAlreadySettled rejects operations on a settled batch.
	ErrBatchAlreadySettled = errors.New("liquidation engine: batch already settled")
	// ErrCommitWindowClosed rejects commitments at or after the reveal start.
	ErrCommitWindowClosed = errors.New("liquidation engine: commit window closed")
	// ErrInsufficientBond rejects commitments below the minimum bond.
	ErrInsufficientBond = errors.New("liquidation engine: bond below minimum")
	// ErrInsufficientBalance rejects bonds the bidder cannot fund.
	ErrInsufficientBalance = errors.New("liquidation engine: insufficient native balance")
	// ErrNotInRevealPhase rejects reveals before the reveal window opens.
	ErrNotInRevealPhase = errors.New("liquidation engine: batch not in reveal phase")
	// ErrRevealWindowClosed rejects reveals at or after the reveal deadline.
	ErrRevealWindowClosed = errors.New("liquidation engine: reveal window closed")
	// ErrNoCommitmentFound rejects reveals without a prior commitment.
	ErrNoCommitmentFound = errors.New("liquidation engine: no commitment found")
	// ErrAlreadyRevealed rejects a second reveal from the same bidder.
	ErrAlreadyRevealed = errors.New("liquidation engine: bidder already revealed")
	// ErrInvalidBid rejects non-positive reveal quantities or prices.
	ErrInvalidBid = errors.New("liquidation engine: quantity and price must be positive")
	// ErrBidBelowMinLot rejects reveal quantities under the lot floor.
	ErrBidBelowMinLot = errors.New("liquidation engine: quantity below minimum lot")
	// ErrVaultNotInBatch rejects reveals targeting a vault outside the batch.
	ErrVaultNotInBatch = errors.New("liquidation engine: vault not part of batch")
	// ErrCannotSettleYet rejects settlement before the reveal window elapses.
	ErrCannotSettleYet = errors.New("liquidation engine: reveal window still open")
)

const moduleName = "liquidation"

type engineState interface {
	LoadQueue() ([]uint64, error)
	StoreQueue([]uint64) error
	GetBatch(id uint64) (*Batch, error)
	PutBatch(*Batch) error
	LatestBatchID() (uint64, error)
	SetLatestBatchID(id uint64) error
	GetCommitment(batchID uint64, bidder crypto.Address) (*Commitment, error)
	PutCommitment(batchID uint64, c *Commitment) error
	ListCommitments(batchID uint64) ([]*Commitment, error)
	ListBids(batchID uint64) ([]*Bid, error)
	AppendBid(batchID uint64, b *Bid) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// VaultBackend is the health engine surface the auction needs: reading vault
// snapshots at batch formation and applying fills at settlement.
type VaultBackend interface {
	VaultSnapshot(vaultID uint64) (*vault.Vault, error)
	OnLiquidationSettle(vaultIDs []uint64, fills []*big.Int, clearingPrice *big.Int) error
}

// StabilityPool collects winner payments and cancels liquidated debt.
type StabilityPool interface {
	BurnStableFrom(from crypto.Address, amount *big.Int) error
	Available() (*big.Int, error)
	Credit(to crypto.Address, amount *big.Int) error
}

// Engine is the commit-reveal batch auction state machine. It owns the
// pending queue, batch records, commitments and revealed bids; settlement is
// its single cross-cutting mutation point, reaching into vault state through
// the VaultBackend callback.
//
// Entry points serialize on an internal mutex so bond custody survives
// interleaved callers. The lock is held across the settlement callbacks into
// the vault engine and stability pool; those components take their own locks
// and must never call back into this engine.
type Engine struct {
	mu         sync.Mutex
	state      engineState
	vaults     VaultBackend
	pool       StabilityPool
	adapters   map[string]vault.CollateralAdapter
	moduleAddr crypto.Address
	treasury   crypto.Address
	params     Params
	nowFn      func() int64
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	metrics    *observability.LiquidationMetrics
}

// NewEngine constructs a liquidation engine holding bond custody at the
// module address and routing forfeited bonds to the treasury.
func NewEngine(moduleAddr, treasury crypto.Address, params Params) *Engine {
	return &Engine{
		adapters:   make(map[string]vault.CollateralAdapter),
		moduleAddr: moduleAddr,
		treasury:   treasury,
		params:     params.Clone(),
		nowFn:      func() int64 { return time.Now().Unix() },
		emitter:    events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVaultBackend installs the health engine callback surface.
func (e *Engine) SetVaultBackend(backend VaultBackend) { e.vaults = backend }

// SetStabilityPool installs the payment and debt-cancellation ledger.
func (e *Engine) SetStabilityPool(pool StabilityPool) { e.pool = pool }

// SetMetrics installs the prometheus registry; nil disables instrumentation.
func (e *Engine) SetMetrics(m *observability.LiquidationMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetPauses installs the governance pause switches.
func (e *Engine) SetPauses(view nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = view
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterAdapter installs the collateral adapter used to deliver winning
// allocations for a collateral type.
func (e *Engine) RegisterAdapter(symbol string, adapter vault.CollateralAdapter) {
	if e == nil || adapter == nil {
		return
	}
	e.adapters[symbol] = adapter
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Now exposes the engine clock so read surfaces derive phases consistently.
func (e *Engine) Now() int64 { return e.now() }

func (e *Engine) emit(evt liquidationEvent) {
	if e == nil || e.emitter == nil || evt.evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Enqueue appends a vault to the pending queue. Pure bookkeeping; it does not
// start a batch.
func (e *Engine) Enqueue(vaultID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	queue, err := e.state.LoadQueue()
	if err != nil {
		return err
	}
	for _, queued := range queue {
		if queued == vaultID {
			return ErrVaultAlreadyQueued
		}
	}
	queue = append(queue, vaultID)
	if err := e.state.StoreQueue(queue); err != nil {
		return err
	}
	e.emit(NewVaultEnqueuedEvent(vaultID))
	return nil
}

// StartBatch forms a new auction from the pending queue: FIFO vaults sharing
// the head vault's collateral type, up to MaxBatchSize, with lots frozen at
// the vaults' current shares. Fails while the prior batch is still inside its
// commit or reveal window.
func (e *Engine) StartBatch() (*Batch, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	latest, err := e.state.LatestBatchID()
	if err != nil {
		return nil, err
	}
	if latest > 0 {
		prior, err := e.state.GetBatch(latest)
		if err != nil {
			return nil, err
		}
		if prior != nil && !prior.Settled && now < prior.EndReveal {
			return nil, ErrBatchActive
		}
	}
	queue, err := e.state.LoadQueue()
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, ErrEmptyQueue
	}

	var (
		collateralType string
		vaultIDs       []uint64
		lots           []*big.Int
		remaining      []uint64
		total          = big.NewInt(0)
	)
	for _, id := range queue {
		if e.params.MaxBatchSize > 0 && len(vaultIDs) >= e.params.MaxBatchSize {
			remaining = append(remaining, id)
			continue
		}
		snapshot, err := e.vaults.VaultSnapshot(id)
		if err != nil || snapshot == nil || snapshot.Shares == nil || snapshot.Shares.Sign() == 0 {
			// Vanished or empty vaults are dropped from the queue outright.
			continue
		}
		if collateralType == "" {
			collateralType = snapshot.CollateralType
		}
		if snapshot.CollateralType != collateralType {
			remaining = append(remaining, id)
			continue
		}
		lot := new(big.Int).Set(snapshot.Shares)
		vaultIDs = append(vaultIDs, id)
		lots = append(lots, lot)
		total = total.Add(total, lot)
	}
	if len(vaultIDs) == 0 {
		// Queue held only vanished/empty vaults; it has been drained.
		if err := e.state.StoreQueue(remaining); err != nil {
			return nil, err
		}
		return nil, ErrEmptyQueue
	}

	batch := &Batch{
		ID:              latest + 1,
		CollateralType:  collateralType,
		VaultIDs:        vaultIDs,
		Lots:            lots,
		TotalQtyOffered: total,
		StartCommit:     now,
		StartReveal:     now + e.params.CommitWindowSecs,
		ClearingPrice:   big.NewInt(0),
	}
	batch.EndReveal = batch.StartReveal + e.params.RevealWindowSecs

	if err := e.state.PutBatch(batch); err != nil {
		return nil, err
	}
	if err := e.state.SetLatestBatchID(batch.ID); err != nil {
		return nil, err
	}
	if err := e.state.StoreQueue(remaining); err != nil {
		return nil, err
	}
	e.metrics.ObserveBatchStarted()
	e.emit(NewBatchStartedEvent(batch))
	return batch.Clone(), nil
}

// CommitmentHash computes the sealed-bid digest. Binding the bidder identity
// into the hash prevents a different address from replaying or stealing the
// commitment at reveal time.
func CommitmentHash(batchID, vaultID uint64, qty, price *big.Int, salt [32]byte, bidder crypto.Address) [32]byte {
	var batchBytes, vaultBytes [8]byte
	putUint64(batchBytes[:], batchID)
	putUint64(vaultBytes[:], vaultID)
	qtyBytes := make([]byte, 32)
	if qty != nil && qty.Sign() > 0 {
		qty.FillBytes(qtyBytes)
	}
	priceBytes := make([]byte, 32)
	if price != nil && price.Sign() > 0 {
		price.FillBytes(priceBytes)
	}
	digest := ethcrypto.Keccak256Hash(
		batchBytes[:], vaultBytes[:], qtyBytes, priceBytes, salt[:], bidder.Bytes(),
	)
	var out [32]byte
	copy(out[:], digest[:])
	return out
}

func putUint64(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

// CommitBid stores a sealed bid for the batch together with a bond debited
// from the bidder's native balance. A repeat commitment from the same bidder
// refunds the prior bond before the new one is accepted.
func (e *Engine) CommitBid(bidder crypto.Address, batchID uint64, commitment [32]byte, bond *big.Int) error {
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
	if e.now() >= batch.StartReveal {
		return ErrCommitWindowClosed
	}
	if bond == nil || e.params.MinCommitBond == nil || bond.Cmp(e.params.MinCommitBond) < 0 {
		return ErrInsufficientBond
	}

	bidderAcc, err := e.loadAccount(bidder)
	if err != nil {
		return err
	}
	if bidderAcc.BalanceNative.Cmp(bond) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddr)
	if err != nil {
		return err
	}

	bidderAcc.BalanceNative = new(big.Int).Sub(bidderAcc.BalanceNative, bond)
	moduleAcc.BalanceNative = new(big.Int).Add(moduleAcc.BalanceNative, bond)

	prior, err := e.state.GetCommitment(batchID, bidder)
	if err != nil {
		return err
	}
	if prior != nil && !prior.Refunded && prior.Bond != nil && prior.Bond.Sign() > 0 {
		// Overwrite refunds the stranded bond instead of silently summing it.
		moduleAcc.BalanceNative = new(big.Int).Sub(moduleAcc.BalanceNative, prior.Bond)
		bidderAcc.BalanceNative = new(big.Int).Add(bidderAcc.BalanceNative, prior.Bond)
	}

	if err := e.state.PutAccount(bidder, bidderAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddr, moduleAcc); err != nil {
		return err
	}
	record := &Commitment{
		Bidder: bidder,
		Hash:   commitment,
		Bond:   new(big.Int).Set(bond),
	}
	if err := e.state.PutCommitment(batchID, record); err != nil {
		return err
	}
	e.emit(NewBidCommittedEvent(batchID, bidder, bond))
	return nil
}

// RevealBid opens a sealed bid during the reveal window. The recorded bid is
// valid exactly when the revealed parameters and caller identity hash to the
// stored commitment; a valid reveal refunds the bond immediately. Each bidder
// may reveal at most once per batch.
func (e *Engine) RevealBid(bidder crypto.Address, batchID, vaultID uint64, qty, price *big.Int, salt [32]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	batch, err := e.loadBatch(batchID)
	if err != nil {
		return false, err
	}
	if batch.Settled {
		return false, ErrBatchAlreadySettled
	}
	now := e.now()
	if now < batch.StartReveal {
		return false, ErrNotInRevealPhase
	}
	if now >= batch.EndReveal {
		return false, ErrRevealWindowClosed
	}
	commitment, err := e.state.GetCommitment(batchID, bidder)
	if err != nil {
		return false, err
	}
	if commitment == nil {
		return false, ErrNoCommitmentFound
	}
	if commitment.Revealed {
		return false, ErrAlreadyRevealed
	}
	// Parameter validation rejects without consuming the commitment: a
	// commitment sealed over a sub-lot quantity can never validly reveal and
	// its bond forfeits at settlement.
	if qty == nil || qty.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return false, ErrInvalidBid
	}
	if e.params.MinLot != nil && qty.Cmp(e.params.MinLot) < 0 {
		return false, ErrBidBelowMinLot
	}
	if !containsVault(batch.VaultIDs, vaultID) {
		return false, ErrVaultNotInBatch
	}

	recomputed := CommitmentHash(batchID, vaultID, qty, price, salt, bidder)
	valid := recomputed == commitment.Hash

	commitment.Revealed = true
	if valid {
		if err := e.refundBond(commitment); err != nil {
			return false, err
		}
	}
	if err := e.state.PutCommitment(batchID, commitment); err != nil {
		return false, err
	}
	bid := &Bid{
		Bidder:  bidder,
		VaultID: vaultID,
		Qty:     new(big.Int).Set(qty),
		Price:   new(big.Int).Set(price),
		Valid:   valid,
	}
	if err := e.state.AppendBid(batchID, bid); err != nil {
		return false, err
	}
	e.emit(NewBidRevealedEvent(batchID, bid))
	return valid, nil
}

func (e *Engine) refundBond(c *Commitment) error {
	if c == nil || c.Refunded || c.Bond == nil || c.Bond.Sign() == 0 {
		return nil
	}
	moduleAcc, err := e.loadAccount(e.moduleAddr)
	if err != nil {
		return err
	}
	bidderAcc, err := e.loadAccount(c.Bidder)
	if err != nil {
		return err
	}
	moduleAcc.BalanceNative = new(big.Int).Sub(moduleAcc.BalanceNative, c.Bond)
	bidderAcc.BalanceNative = new(big.Int).Add(bidderAcc.BalanceNative, c.Bond)
	if err := e.state.PutAccount(e.moduleAddr, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(c.Bidder, bidderAcc); err != nil {
		return err
	}
	c.Refunded = true
	return nil
}

// GetBatch returns a copy of the batch record.
func (e *Engine) GetBatch(batchID uint64) (*Batch, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	batch, err := e.loadBatch(batchID)
	if err != nil {
		return nil, err
	}
	return batch.Clone(), nil
}

// IsCommitPhase reports whether the batch currently accepts commitments.
func (e *Engine) IsCommitPhase(batchID uint64) (bool, error) {
	batch, err := e.GetBatch(batchID)
	if err != nil {
		return false, err
	}
	return batch.Phase(e.now()) == PhaseCommitting, nil
}

// IsRevealPhase reports whether the batch currently accepts reveals.
func (e *Engine) IsRevealPhase(batchID uint64) (bool, error) {
	batch, err := e.GetBatch(batchID)
	if err != nil {
		return false, err
	}
	return batch.Phase(e.now()) == PhaseRevealing, nil
}

// CanSettle reports whether the batch is past its reveal deadline and not yet
// settled.
func (e *Engine) CanSettle(batchID uint64) (bool, error) {
	batch, err := e.GetBatch(batchID)
	if err != nil {
		return false, err
	}
	return batch.Phase(e.now()) == PhaseSettleable, nil
}

// PendingQueue returns a copy of the pending vault queue.
func (e *Engine) PendingQueue() ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	queue, err := e.state.LoadQueue()
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), queue...), nil
}

func (e *Engine) loadBatch(id uint64) (*Batch, error) {
	batch, err := e.state.GetBatch(id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	if batch.TotalQtyOffered == nil {
		batch.TotalQtyOffered = big.NewInt(0)
	}
	if batch.ClearingPrice == nil {
		batch.ClearingPrice = big.NewInt(0)
	}
	return batch, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
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

func containsVault(ids []uint64, id uint64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
