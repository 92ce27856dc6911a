package vault

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"stablenet/core/events"
	"stablenet/crypto"
	nativecommon "stablenet/native/common"
	"stablenet/observability"
)

var (
	// ErrNilState indicates the engine has not been wired to a state backend.
	ErrNilState = errors.New("vault engine: state not configured")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("vault engine: amount must be positive")
	// ErrVaultNotFound indicates the vault identifier is unknown.
	ErrVaultNotFound = errors.New("vault engine: vault not found")
	// ErrNotVaultOwner rejects position mutations from a non-owner.
	ErrNotVaultOwner = errors.New("vault engine: caller is not the vault owner")
	// ErrVaultInactive rejects deposits and borrows on tombstoned vaults.
	ErrVaultInactive = errors.New("vault engine: vault is inactive")
	// ErrCollateralDisabled rejects operations on disabled collateral types.
	ErrCollateralDisabled = errors.New("vault engine: collateral type disabled")
	// ErrNotEnoughShares rejects withdrawals exceeding the vault holdings.
	ErrNotEnoughShares = errors.New("vault engine: insufficient collateral shares")
	// ErrUnsafePosition rejects borrows and withdrawals that would violate the
	// configured loan-to-value bound.
	ErrUnsafePosition = errors.New("vault engine: position would violate LTV")
	// ErrVaultHealthy rejects liquidation flags on vaults above the MCR.
	ErrVaultHealthy = errors.New("vault engine: vault above minimum collateralization")
	// ErrLengthMismatch signals mismatched parallel arrays on the settlement
	// callback; it is an invariant breach, not a caller mistake.
	ErrLengthMismatch = errors.New("vault engine: vault/fill length mismatch")
)

const moduleName = "vault"

type engineState interface {
	GetVault(id uint64) (*Vault, error)
	PutVault(*Vault) error
	NextVaultID() (uint64, error)
	GetCollateralConfig(symbol string) (*CollateralConfig, error)
	PutCollateralConfig(symbol string, cfg *CollateralConfig) error
}

// PriceOracle resolves a guarded WAD price for a collateral asset. A stale,
// paused, or unknown feed must fail the call rather than return a default.
type PriceOracle interface {
	GetPrice(asset string) (*big.Int, time.Time, error)
}

// CollateralAdapter converts between underlying asset amounts and the share
// units recorded on vaults, absorbing yield accrual and rebasing.
type CollateralAdapter interface {
	Asset() string
	ValueOf(shares *big.Int) *big.Int
	DepositFrom(from crypto.Address, assets *big.Int, receiver crypto.Address) (*big.Int, error)
	Withdraw(shares *big.Int, receiver, owner crypto.Address) (*big.Int, error)
}

// StableLedger mints and burns the stablecoin; restricted to this engine's
// capability by wiring.
type StableLedger interface {
	Mint(to crypto.Address, amount *big.Int) error
	Burn(from crypto.Address, amount *big.Int) error
}

// LiquidationQueue receives vaults that passed the eligibility check.
type LiquidationQueue interface {
	Enqueue(vaultID uint64) error
}

// Engine owns vault records and the health model: it applies collateral and
// debt deltas, decides liquidation eligibility, and is the only component that
// mutates vault state during auction settlement via OnLiquidationSettle.
//
// Entry points serialize on an internal mutex. The liquidation engine calls
// VaultSnapshot and OnLiquidationSettle while holding its own lock, so this
// engine never crosses into the queue with its lock held.
type Engine struct {
	mu         sync.Mutex
	state      engineState
	adapters   map[string]CollateralAdapter
	oracle     PriceOracle
	ledger     StableLedger
	queue      LiquidationQueue
	mcrBps     uint64
	penaltyBps uint64
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	metrics    *observability.VaultMetrics
}

// NewEngine constructs a vault engine with the given minimum collateralization
// ratio and liquidation penalty, both in basis points.
func NewEngine(mcrBps, penaltyBps uint64) *Engine {
	return &Engine{
		adapters:   make(map[string]CollateralAdapter),
		mcrBps:     mcrBps,
		penaltyBps: penaltyBps,
		emitter:    events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle installs the guarded price feed.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetLedger installs the stablecoin mint/burn capability.
func (e *Engine) SetLedger(ledger StableLedger) { e.ledger = ledger }

// SetQueue installs the liquidation queue that flagged vaults are handed to.
func (e *Engine) SetQueue(queue LiquidationQueue) { e.queue = queue }

// SetPauses installs the governance pause switches.
func (e *Engine) SetPauses(view nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = view
}

// SetMetrics installs the prometheus registry; nil disables instrumentation.
func (e *Engine) SetMetrics(m *observability.VaultMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// RegisterAdapter installs the collateral adapter serving a collateral type.
func (e *Engine) RegisterAdapter(symbol string, adapter CollateralAdapter) {
	if e == nil || adapter == nil {
		return
	}
	e.adapters[normalizeSymbol(symbol)] = adapter
}

// SetCollateralConfig installs or replaces the risk parameters for a
// collateral type. Risk-admin capability.
func (e *Engine) SetCollateralConfig(symbol string, cfg CollateralConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PutCollateralConfig(normalizeSymbol(symbol), cfg.Clone())
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// OpenVault creates an empty active vault for the owner against an enabled
// collateral type and returns its identifier.
func (e *Engine) OpenVault(owner crypto.Address, collateralType string) (_ uint64, err error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	defer func() { e.metrics.ObserveOperation("open", err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	symbol := normalizeSymbol(collateralType)
	if _, err := e.enabledConfig(symbol); err != nil {
		return 0, err
	}
	if _, ok := e.adapters[symbol]; !ok {
		return 0, ErrCollateralDisabled
	}
	id, err := e.state.NextVaultID()
	if err != nil {
		return 0, err
	}
	vault := &Vault{
		ID:             id,
		Owner:          owner,
		CollateralType: symbol,
		Shares:         big.NewInt(0),
		Debt:           big.NewInt(0),
		Active:         true,
	}
	if err := e.state.PutVault(vault); err != nil {
		return 0, err
	}
	e.emit(NewVaultOpenedEvent(vault))
	return id, nil
}

// Deposit converts incoming assets to shares through the collateral adapter
// and credits them to the vault.
func (e *Engine) Deposit(caller crypto.Address, vaultID uint64, assets *big.Int) (err error) {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	defer func() { e.metrics.ObserveOperation("deposit", err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if assets == nil || assets.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return err
	}
	if !vault.Active {
		return ErrVaultInactive
	}
	if _, err := e.enabledConfig(vault.CollateralType); err != nil {
		return err
	}
	adapter, err := e.adapter(vault.CollateralType)
	if err != nil {
		return err
	}
	shares, err := adapter.DepositFrom(caller, assets, vault.Owner)
	if err != nil {
		return err
	}
	vault.Shares = new(big.Int).Add(vault.Shares, shares)
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit(NewVaultDepositedEvent(vault, shares))
	return nil
}

// Withdraw debits shares from the vault and releases the underlying assets to
// the receiver, provided the remaining position honors the LTV bound. All
// checks run against an in-memory copy so a rejected withdrawal leaves state
// untouched.
func (e *Engine) Withdraw(caller crypto.Address, vaultID uint64, shares *big.Int, receiver crypto.Address) (err error) {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	defer func() { e.metrics.ObserveOperation("withdraw", err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if shares == nil || shares.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return err
	}
	if vault.Shares.Cmp(shares) < 0 {
		return ErrNotEnoughShares
	}
	cfg, err := e.config(vault.CollateralType)
	if err != nil {
		return err
	}
	remaining := new(big.Int).Sub(vault.Shares, shares)
	value, err := e.collateralValueOf(vault.CollateralType, remaining)
	if err != nil {
		return err
	}
	if !withinLTV(value, vault.Debt, cfg.LTVBps) {
		return ErrUnsafePosition
	}
	adapter, err := e.adapter(vault.CollateralType)
	if err != nil {
		return err
	}
	if _, err := adapter.Withdraw(shares, receiver, vault.Owner); err != nil {
		return err
	}
	vault.Shares = remaining
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit(NewVaultWithdrawnEvent(vault, shares))
	return nil
}

// Borrow increases vault debt and mints stable to the owner, provided the
// projected position honors the LTV bound.
func (e *Engine) Borrow(caller crypto.Address, vaultID uint64, amount *big.Int) (err error) {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	defer func() { e.metrics.ObserveOperation("borrow", err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return err
	}
	if !vault.Active {
		return ErrVaultInactive
	}
	cfg, err := e.enabledConfig(vault.CollateralType)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(vault.Debt, amount)
	value, err := e.collateralValueOf(vault.CollateralType, vault.Shares)
	if err != nil {
		return err
	}
	if !withinLTV(value, projected, cfg.LTVBps) {
		return ErrUnsafePosition
	}
	if err := e.ledger.Mint(vault.Owner, amount); err != nil {
		return err
	}
	vault.Debt = projected
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit(NewVaultBorrowedEvent(vault, amount))
	return nil
}

// Repay burns stable from the caller and reduces vault debt. The amount is
// clamped to the outstanding debt; the clamped value is returned.
func (e *Engine) Repay(caller crypto.Address, vaultID uint64, amount *big.Int) (_ *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	defer func() { e.metrics.ObserveOperation("repay", err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return nil, err
	}
	repay := new(big.Int).Set(amount)
	if repay.Cmp(vault.Debt) > 0 {
		repay = new(big.Int).Set(vault.Debt)
	}
	if repay.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.ledger.Burn(caller, repay); err != nil {
		return nil, err
	}
	vault.Debt = new(big.Int).Sub(vault.Debt, repay)
	if err := e.state.PutVault(vault); err != nil {
		return nil, err
	}
	e.emit(NewVaultRepaidEvent(vault, repay))
	return repay, nil
}

// FlagForLiquidation validates eligibility against the MCR and hands the vault
// to the liquidation queue. Callable by anyone.
func (e *Engine) FlagForLiquidation(vaultID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	vault, err := e.loadVault(vaultID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	value, err := e.collateralValueOf(vault.CollateralType, vault.Shares)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !eligibleForLiquidation(value, vault.Debt, e.mcrBps) {
		e.mu.Unlock()
		return ErrVaultHealthy
	}
	// The queue takes the liquidation engine's own lock, and that engine
	// calls back into this one during settlement, so the handoff must not
	// hold our lock.
	e.mu.Unlock()
	if err := e.queue.Enqueue(vaultID); err != nil {
		return err
	}
	e.metrics.ObserveFlagged()
	e.emit(NewVaultFlaggedEvent(vault, value))
	return nil
}

// VaultHealth reports the collateral valuation, debt, configured LTV, and
// whether the vault sits above the minimum collateralization ratio.
func (e *Engine) VaultHealth(vaultID uint64) (*Health, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.config(vault.CollateralType)
	if err != nil {
		return nil, err
	}
	value, err := e.collateralValueOf(vault.CollateralType, vault.Shares)
	if err != nil {
		return nil, err
	}
	return &Health{
		CollateralValueWad: value,
		Debt:               new(big.Int).Set(vault.Debt),
		LTVBps:             cfg.LTVBps,
		Healthy:            !eligibleForLiquidation(value, vault.Debt, e.mcrBps),
	}, nil
}

// VaultSnapshot returns a copy of the vault record for the liquidation engine.
func (e *Engine) VaultSnapshot(vaultID uint64) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	return vault.Clone(), nil
}

// OnLiquidationSettle applies the filled quantities of a settled batch to the
// underlying vaults: debt is burned proportionally to the share fill and the
// liquidation penalty is reported for observability. Restricted by wiring to
// the liquidation engine. A fill exceeding the vault shares is clamped and
// logged rather than allowed to underflow.
func (e *Engine) OnLiquidationSettle(vaultIDs []uint64, fills []*big.Int, clearingPrice *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if len(vaultIDs) != len(fills) {
		return ErrLengthMismatch
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range vaultIDs {
		fill := fills[i]
		if fill == nil || fill.Sign() <= 0 {
			continue
		}
		vault, err := e.loadVault(id)
		if err != nil {
			return err
		}
		applied := new(big.Int).Set(fill)
		if applied.Cmp(vault.Shares) > 0 {
			slog.Warn("liquidation fill exceeds vault shares, clamping",
				"vault", id, "fill", fill.String(), "shares", vault.Shares.String())
			applied = new(big.Int).Set(vault.Shares)
		}
		if applied.Sign() == 0 {
			continue
		}
		debtToBurn := nativecommon.MulDiv(vault.Debt, applied, vault.Shares)
		if debtToBurn.Cmp(vault.Debt) > 0 {
			debtToBurn = new(big.Int).Set(vault.Debt)
		}
		vault.Shares = new(big.Int).Sub(vault.Shares, applied)
		vault.Debt = new(big.Int).Sub(vault.Debt, debtToBurn)
		if vault.Shares.Sign() == 0 && vault.Debt.Sign() == 0 {
			vault.Active = false
		}
		penalty := nativecommon.BpsMul(nativecommon.MulWad(applied, clearingPrice), e.penaltyBps)
		if err := e.state.PutVault(vault); err != nil {
			return err
		}
		e.emit(NewVaultLiquidatedEvent(vault, applied, debtToBurn, penalty))
	}
	return nil
}

func (e *Engine) emit(evt vaultEvent) {
	if e == nil || e.emitter == nil || evt.evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadVault(id uint64) (*Vault, error) {
	vault, err := e.state.GetVault(id)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrVaultNotFound
	}
	if vault.Shares == nil {
		vault.Shares = big.NewInt(0)
	}
	if vault.Debt == nil {
		vault.Debt = big.NewInt(0)
	}
	return vault, nil
}

func (e *Engine) ownedVault(caller crypto.Address, id uint64) (*Vault, error) {
	vault, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	if !vault.Owner.Equal(caller) {
		return nil, ErrNotVaultOwner
	}
	return vault, nil
}

func (e *Engine) config(symbol string) (*CollateralConfig, error) {
	cfg, err := e.state.GetCollateralConfig(normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrCollateralDisabled
	}
	return cfg, nil
}

func (e *Engine) enabledConfig(symbol string) (*CollateralConfig, error) {
	cfg, err := e.config(symbol)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrCollateralDisabled
	}
	return cfg, nil
}

func (e *Engine) adapter(symbol string) (CollateralAdapter, error) {
	adapter, ok := e.adapters[normalizeSymbol(symbol)]
	if !ok {
		return nil, ErrCollateralDisabled
	}
	return adapter, nil
}

// collateralValueOf prices the given share amount through the adapter and the
// guarded oracle. Oracle failures propagate; no default price is substituted.
func (e *Engine) collateralValueOf(symbol string, shares *big.Int) (*big.Int, error) {
	adapter, err := e.adapter(symbol)
	if err != nil {
		return nil, err
	}
	assets := adapter.ValueOf(shares)
	price, _, err := e.oracle.GetPrice(symbol)
	if err != nil {
		return nil, err
	}
	return nativecommon.MulWad(assets, price), nil
}

// withinLTV reports whether debt stays inside the loan-to-value bound. The
// comparison cross-multiplies so no division or wraparound can flip the
// result.
func withinLTV(collateralValue, debt *big.Int, ltvBps uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return true
	}
	if collateralValue == nil || collateralValue.Sign() == 0 {
		return false
	}
	lhs := new(big.Int).Mul(debt, big.NewInt(nativecommon.MaxBps))
	rhs := new(big.Int).Mul(collateralValue, new(big.Int).SetUint64(ltvBps))
	return lhs.Cmp(rhs) <= 0
}

// eligibleForLiquidation implements the MCR test: debt > 0 and
// collateralValue*10000 < debt*mcrBps.
func eligibleForLiquidation(collateralValue, debt *big.Int, mcrBps uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return false
	}
	if collateralValue == nil || collateralValue.Sign() == 0 {
		return true
	}
	lhs := new(big.Int).Mul(collateralValue, big.NewInt(nativecommon.MaxBps))
	rhs := new(big.Int).Mul(debt, new(big.Int).SetUint64(mcrBps))
	return lhs.Cmp(rhs) < 0
}
