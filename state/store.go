package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"stablenet/core/types"
	"stablenet/crypto"
	"stablenet/native/liquidation"
	"stablenet/native/vault"
	"stablenet/storage"
)

// Store persists engine records as JSON documents in a key-value database.
// It satisfies the state interfaces of the vault engine, the liquidation
// engine, and the stability pool, so one Store instance backs the whole
// protocol.
type Store struct {
	db storage.Database
}

// NewStore wraps the given database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func vaultKey(id uint64) []byte {
	return []byte(fmt.Sprintf("vault/%016x", id))
}

func collateralKey(symbol string) []byte {
	return []byte("collateral/" + symbol)
}

func accountKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("acct/%x", addr.Bytes()))
}

func poolDepositKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("stability/deposit/%x", addr.Bytes()))
}

func batchKey(id uint64) []byte {
	return []byte(fmt.Sprintf("liq/batch/%016x", id))
}

func commitmentKey(batchID uint64, addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("liq/commit/%016x/%x", batchID, addr.Bytes()))
}

func commitmentIndexKey(batchID uint64) []byte {
	return []byte(fmt.Sprintf("liq/commits/%016x", batchID))
}

func bidsKey(batchID uint64) []byte {
	return []byte(fmt.Sprintf("liq/bids/%016x", batchID))
}

var (
	queueKey       = []byte("liq/queue")
	latestBatchKey = []byte("liq/meta/latest")
	nextVaultKey   = []byte("vault/meta/next")
)

// get unmarshals the value at key into out, reporting false for absent keys.
func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

type storedVault struct {
	ID             uint64   `json:"id"`
	Owner          string   `json:"owner"`
	CollateralType string   `json:"collateralType"`
	Shares         *big.Int `json:"shares"`
	Debt           *big.Int `json:"debt"`
	Active         bool     `json:"active"`
}

// GetVault loads a vault record; absent vaults return nil.
func (s *Store) GetVault(id uint64) (*vault.Vault, error) {
	var stored storedVault
	ok, err := s.get(vaultKey(id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	owner, err := crypto.DecodeAddress(stored.Owner)
	if err != nil {
		return nil, fmt.Errorf("state: vault %d owner: %w", id, err)
	}
	return &vault.Vault{
		ID:             stored.ID,
		Owner:          owner,
		CollateralType: stored.CollateralType,
		Shares:         stored.Shares,
		Debt:           stored.Debt,
		Active:         stored.Active,
	}, nil
}

// PutVault persists a vault record.
func (s *Store) PutVault(v *vault.Vault) error {
	if v == nil {
		return errors.New("state: nil vault")
	}
	return s.put(vaultKey(v.ID), storedVault{
		ID:             v.ID,
		Owner:          v.Owner.String(),
		CollateralType: v.CollateralType,
		Shares:         v.Shares,
		Debt:           v.Debt,
		Active:         v.Active,
	})
}

// NextVaultID increments and returns the vault identifier counter.
func (s *Store) NextVaultID() (uint64, error) {
	var next uint64
	if _, err := s.get(nextVaultKey, &next); err != nil {
		return 0, err
	}
	next++
	if err := s.put(nextVaultKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// GetCollateralConfig loads the risk parameters for a collateral type; absent
// types return nil.
func (s *Store) GetCollateralConfig(symbol string) (*vault.CollateralConfig, error) {
	var cfg vault.CollateralConfig
	ok, err := s.get(collateralKey(symbol), &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// PutCollateralConfig persists the risk parameters for a collateral type.
func (s *Store) PutCollateralConfig(symbol string, cfg *vault.CollateralConfig) error {
	if cfg == nil {
		return errors.New("state: nil collateral config")
	}
	return s.put(collateralKey(symbol), cfg)
}

// LoadQueue returns the pending liquidation queue in FIFO order.
func (s *Store) LoadQueue() ([]uint64, error) {
	var queue []uint64
	if _, err := s.get(queueKey, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// StoreQueue persists the pending liquidation queue.
func (s *Store) StoreQueue(queue []uint64) error {
	if queue == nil {
		queue = []uint64{}
	}
	return s.put(queueKey, queue)
}

// GetBatch loads a batch record; absent batches return nil.
func (s *Store) GetBatch(id uint64) (*liquidation.Batch, error) {
	var batch liquidation.Batch
	ok, err := s.get(batchKey(id), &batch)
	if err != nil || !ok {
		return nil, err
	}
	return &batch, nil
}

// PutBatch persists a batch record.
func (s *Store) PutBatch(batch *liquidation.Batch) error {
	if batch == nil {
		return errors.New("state: nil batch")
	}
	return s.put(batchKey(batch.ID), batch)
}

// LatestBatchID returns the identifier of the most recently created batch,
// zero when none exists.
func (s *Store) LatestBatchID() (uint64, error) {
	var latest uint64
	if _, err := s.get(latestBatchKey, &latest); err != nil {
		return 0, err
	}
	return latest, nil
}

// SetLatestBatchID persists the most recent batch identifier.
func (s *Store) SetLatestBatchID(id uint64) error {
	return s.put(latestBatchKey, id)
}

type storedCommitment struct {
	Bidder   string   `json:"bidder"`
	Hash     []byte   `json:"hash"`
	Bond     *big.Int `json:"bond"`
	Revealed bool     `json:"revealed"`
	Refunded bool     `json:"refunded"`
	Slashed  bool     `json:"slashed"`
}

func (c storedCommitment) decode() (*liquidation.Commitment, error) {
	bidder, err := crypto.DecodeAddress(c.Bidder)
	if err != nil {
		return nil, fmt.Errorf("state: commitment bidder: %w", err)
	}
	out := &liquidation.Commitment{
		Bidder:   bidder,
		Bond:     c.Bond,
		Revealed: c.Revealed,
		Refunded: c.Refunded,
		Slashed:  c.Slashed,
	}
	copy(out.Hash[:], c.Hash)
	return out, nil
}

// GetCommitment loads a bidder's commitment for a batch; absent commitments
// return nil.
func (s *Store) GetCommitment(batchID uint64, bidder crypto.Address) (*liquidation.Commitment, error) {
	var stored storedCommitment
	ok, err := s.get(commitmentKey(batchID, bidder), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.decode()
}

// PutCommitment persists a commitment and keeps the per-batch index in
// first-commit order for deterministic settlement iteration.
func (s *Store) PutCommitment(batchID uint64, c *liquidation.Commitment) error {
	if c == nil {
		return errors.New("state: nil commitment")
	}
	bidder := c.Bidder.String()
	if err := s.put(commitmentKey(batchID, c.Bidder), storedCommitment{
		Bidder:   bidder,
		Hash:     c.Hash[:],
		Bond:     c.Bond,
		Revealed: c.Revealed,
		Refunded: c.Refunded,
		Slashed:  c.Slashed,
	}); err != nil {
		return err
	}
	var index []string
	if _, err := s.get(commitmentIndexKey(batchID), &index); err != nil {
		return err
	}
	for _, existing := range index {
		if existing == bidder {
			return nil
		}
	}
	return s.put(commitmentIndexKey(batchID), append(index, bidder))
}

// ListCommitments returns every commitment of a batch in first-commit order.
func (s *Store) ListCommitments(batchID uint64) ([]*liquidation.Commitment, error) {
	var index []string
	if _, err := s.get(commitmentIndexKey(batchID), &index); err != nil {
		return nil, err
	}
	out := make([]*liquidation.Commitment, 0, len(index))
	for _, encoded := range index {
		bidder, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return nil, fmt.Errorf("state: commitment index: %w", err)
		}
		c, err := s.GetCommitment(batchID, bidder)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

type storedBid struct {
	Bidder  string   `json:"bidder"`
	VaultID uint64   `json:"vaultId"`
	Qty     *big.Int `json:"qty"`
	Price   *big.Int `json:"price"`
	Valid   bool     `json:"valid"`
}

// ListBids returns the revealed bids of a batch in reveal order.
func (s *Store) ListBids(batchID uint64) ([]*liquidation.Bid, error) {
	var stored []storedBid
	if _, err := s.get(bidsKey(batchID), &stored); err != nil {
		return nil, err
	}
	out := make([]*liquidation.Bid, 0, len(stored))
	for _, record := range stored {
		bidder, err := crypto.DecodeAddress(record.Bidder)
		if err != nil {
			return nil, fmt.Errorf("state: bid bidder: %w", err)
		}
		out = append(out, &liquidation.Bid{
			Bidder:  bidder,
			VaultID: record.VaultID,
			Qty:     record.Qty,
			Price:   record.Price,
			Valid:   record.Valid,
		})
	}
	return out, nil
}

// AppendBid appends a revealed bid to the batch's append-only bid list.
func (s *Store) AppendBid(batchID uint64, b *liquidation.Bid) error {
	if b == nil {
		return errors.New("state: nil bid")
	}
	var stored []storedBid
	if _, err := s.get(bidsKey(batchID), &stored); err != nil {
		return err
	}
	stored = append(stored, storedBid{
		Bidder:  b.Bidder.String(),
		VaultID: b.VaultID,
		Qty:     b.Qty,
		Price:   b.Price,
		Valid:   b.Valid,
	})
	return s.put(bidsKey(batchID), stored)
}

// GetAccount loads a balance record; absent accounts return nil.
func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	var acc types.Account
	ok, err := s.get(accountKey(addr), &acc)
	if err != nil || !ok {
		return nil, err
	}
	return &acc, nil
}

// PutAccount persists a balance record.
func (s *Store) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	return s.put(accountKey(addr), account)
}

// GetPoolDeposit loads a stability pool claim; absent claims return nil.
func (s *Store) GetPoolDeposit(addr crypto.Address) (*big.Int, error) {
	var deposit big.Int
	ok, err := s.get(poolDepositKey(addr), &deposit)
	if err != nil || !ok {
		return nil, err
	}
	return &deposit, nil
}

// PutPoolDeposit persists a stability pool claim.
func (s *Store) PutPoolDeposit(addr crypto.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return s.put(poolDepositKey(addr), amount)
}
