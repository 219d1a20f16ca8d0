package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BlockChain is the engine: append, validate, mine, query historical
// state, fork, swap, and stage/unstage pending transactions, all against a
// pluggable Store. It holds a borrowing handle to the Store and coordinates
// the single-writer discipline over it via rw/tx locks.
type BlockChain struct {
	id      ChainID
	store   Store
	policy  BlockPolicy
	codec   ActionCodec
	logger  *logrus.Entry
	metrics *Metrics

	lock   upgradableRWLock
	txLock sync.Mutex
}

// NewBlockChain constructs a BlockChain bound to an existing chain_id
// within store. logger and metrics may be nil.
func NewBlockChain(id ChainID, store Store, policy BlockPolicy, codec ActionCodec, logger *logrus.Entry, metrics *Metrics) *BlockChain {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &BlockChain{
		id:      id,
		store:   store,
		policy:  policy,
		codec:   codec,
		logger:  logger.WithField("chain_id", string(id)),
		metrics: metrics,
	}
}

func (c *BlockChain) ID() ChainID { return c.id }

// MakeTransaction assigns signer's next nonce and signs a new Transaction
// under tx_lock, so two concurrent callers for the same signer are
// serialized and never assign the same nonce twice.
func (c *BlockChain) MakeTransaction(signer Address, updatedAddresses []Address, actions []Action, timestamp time.Time, sign func(*Transaction) error) (*Transaction, error) {
	c.txLock.Lock()
	defer c.txLock.Unlock()
	nonce, err := c.GetNextTxNonce(signer)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		Nonce:            uint64(nonce),
		Signer:           signer,
		UpdatedAddresses: updatedAddresses,
		Timestamp:        timestamp,
		Actions:          actions,
	}
	if err := sign(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// TipUnsafe reads the current tip without acquiring the chain's lock. It
// must only be called by code that already holds the lock in at least read
// mode — BlockPolicy implementations invoked from ValidateNextBlock or
// GetNextDifficulty, or BlockChain's own internal methods. Anything else
// should call Tip.
func (c *BlockChain) TipUnsafe() (*Block, bool, error) {
	count, err := c.store.CountIndex(c.id)
	if err != nil {
		return nil, false, err
	}
	if count == 0 {
		return nil, false, nil
	}
	hash, ok, err := c.store.IndexBlockHash(c.id, -1)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return c.store.GetBlock(hash)
}

// Tip returns the chain's highest-index block, or ok=false for an empty
// chain.
func (c *BlockChain) Tip() (*Block, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	b, ok, err := c.TipUnsafe()
	if err != nil {
		return nil, false
	}
	return b, ok
}

// Append validates block against policy, persists it, and (if
// evaluateActions) evaluates and renders its actions. On any validation
// failure the chain is left unchanged.
func (c *BlockChain) Append(ctx context.Context, block *Block, now time.Time, evaluateActions, renderActions bool) error {
	c.lock.UpgradableRLock()
	released := false
	release := func() {
		if !released {
			c.lock.UpgradableRUnlock()
			released = true
		}
	}
	defer release()

	select {
	case <-ctx.Done():
		return canceled(ctx.Err())
	default:
	}

	if err := c.policy.ValidateNextBlock(c, block); err != nil {
		return err
	}

	// Step 3: expected nonce per signer = store.get_tx_nonce + count of
	// previously-seen txs from that signer earlier in this block's declared
	// (execution) order.
	seenCount := map[Address]int64{}
	for _, tx := range block.Transactions {
		base, err := c.store.GetTxNonce(c.id, tx.Signer)
		if err != nil {
			return wrapStoreErr("GetTxNonce", err)
		}
		expected := base + seenCount[tx.Signer]
		if int64(tx.Nonce) != expected {
			return newInvalidTxNonce(tx.Signer, expected, int64(tx.Nonce))
		}
		seenCount[tx.Signer]++
	}

	txIDs := make([]HashDigest, len(block.Transactions))
	for i, tx := range block.Transactions {
		id, err := tx.ID()
		if err != nil {
			return err
		}
		txIDs[i] = id
	}

	c.lock.Upgrade()
	writeErr := func() error {
		if err := c.store.PutBlock(block); err != nil {
			return wrapStoreErr("PutBlock", err)
		}
		for _, tx := range block.Transactions {
			if err := c.store.PutTransaction(tx); err != nil {
				return wrapStoreErr("PutTransaction", err)
			}
		}
		if _, err := c.store.AppendIndex(c.id, block.Hash); err != nil {
			return wrapStoreErr("AppendIndex", err)
		}
		for signer, n := range seenCount {
			if err := c.store.IncreaseTxNonce(c.id, signer, n); err != nil {
				return wrapStoreErr("IncreaseTxNonce", err)
			}
		}
		if err := c.store.UnstageTransactionIDs(txIDs); err != nil {
			return wrapStoreErr("UnstageTransactionIDs", err)
		}
		return nil
	}()
	c.lock.Downgrade()
	release()
	if writeErr != nil {
		return writeErr
	}

	if c.metrics != nil {
		c.metrics.BlocksAppended.Inc()
	}
	c.logger.WithField("index", block.Index).WithField("hash", block.Hash.String()).Info("appended block")

	if evaluateActions {
		return c.ExecuteActions(ctx, block, renderActions)
	}
	return nil
}

// ExecuteActions is idempotent with respect to state: if block's states are
// already persisted, evaluation and state writes are skipped. If
// renderActions, evaluation is always (re-)run so render callbacks fire in
// canonical order, but state references are only written on first
// execution.
func (c *BlockChain) ExecuteActions(ctx context.Context, block *Block, renderActions bool) error {
	select {
	case <-ctx.Done():
		return canceled(ctx.Err())
	default:
	}

	c.lock.UpgradableRLock()
	released := false
	release := func() {
		if !released {
			c.lock.UpgradableRUnlock()
			released = true
		}
	}
	defer release()

	_, hasStates, err := c.store.GetBlockStates(block.Hash)
	if err != nil {
		return wrapStoreErr("GetBlockStates", err)
	}

	var evaluations []ActionEvaluation
	if !hasStates || renderActions {
		release()
		baseline, err := c.buildBaseline(block)
		if err != nil {
			return err
		}
		evaluations, err = block.Evaluate(baseline, c.policy.BlockAction())
		if err != nil {
			return err
		}
		c.lock.UpgradableRLock()
		released = false
	}

	if !hasStates {
		delta := map[Address][]byte{}
		addrOrder := []Address{}
		for _, ev := range evaluations {
			if ev.Err != nil || ev.OutputDelta == nil {
				continue
			}
			for _, addr := range ev.OutputDelta.StateUpdatedAddresses() {
				v, _ := ev.OutputDelta.GetState(addr)
				if _, seen := delta[addr]; !seen {
					addrOrder = append(addrOrder, addr)
				}
				delta[addr] = v
			}
		}
		c.lock.Upgrade()
		writeErr := func() error {
			if err := c.store.SetBlockStates(block.Hash, delta); err != nil {
				return wrapStoreErr("SetBlockStates", err)
			}
			if len(addrOrder) > 0 {
				if err := c.store.StoreStateReference(c.id, addrOrder, block); err != nil {
					return wrapStoreErr("StoreStateReference", err)
				}
			}
			return nil
		}()
		c.lock.Downgrade()
		if writeErr != nil {
			return writeErr
		}
	}
	release()

	if renderActions {
		for _, ev := range evaluations {
			if ev.Err != nil {
				ev.Action.RenderError(ev.Ctx, ev.Err)
				continue
			}
			ev.Action.Render(ev.Ctx, ev.OutputDelta)
			if c.metrics != nil {
				c.metrics.ActionsRendered.Inc()
			}
		}
	}
	return nil
}

// buildBaseline resolves the pre-evaluation state for every address any
// transaction in block declares it updates, as of block.PreviousHash.
func (c *BlockChain) buildBaseline(block *Block) (AccountStateDelta, error) {
	seen := map[Address]bool{}
	var order []Address
	for _, tx := range block.Transactions {
		for _, a := range tx.UpdatedAddresses {
			if !seen[a] {
				seen[a] = true
				order = append(order, a)
			}
		}
	}
	baseline := NewAccountStateDelta()
	if len(order) == 0 {
		return baseline, nil
	}

	var pivot *Block
	if !block.PreviousHash.IsZero() {
		c.lock.RLock()
		pb, ok, err := c.store.GetBlock(block.PreviousHash)
		c.lock.RUnlock()
		if err != nil {
			return nil, wrapStoreErr("GetBlock", err)
		}
		if ok {
			pivot = pb
		}
	}

	values, missing, err := c.collectStates(order, pivot)
	if err != nil {
		return nil, err
	}
	if missing != nil {
		return nil, &IncompleteBlockStatesError{Block: *missing}
	}
	for _, a := range order {
		if v, ok := values[a]; ok {
			baseline = baseline.SetState(a, v)
		}
	}
	return baseline, nil
}

// collectStates looks up each address's state as of pivot (nil pivot means
// "no history", e.g. before genesis). It returns the first block whose
// state delta is referenced but not yet persisted, if any.
func (c *BlockChain) collectStates(addrs []Address, pivot *Block) (map[Address][]byte, *HashDigest, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	result := make(map[Address][]byte)
	for _, a := range addrs {
		if pivot == nil {
			continue
		}
		ref, ok, err := c.store.LookupStateReference(c.id, a, pivot)
		if err != nil {
			return nil, nil, wrapStoreErr("LookupStateReference", err)
		}
		if !ok {
			continue
		}
		states, ok, err := c.store.GetBlockStates(ref.Hash)
		if err != nil {
			return nil, nil, wrapStoreErr("GetBlockStates", err)
		}
		if !ok {
			h := ref.Hash
			return nil, &h, nil
		}
		if v, ok := states[a]; ok {
			result[a] = v
		}
	}
	return result, nil, nil
}

// GetStates resolves each address's state as of offset (nil means tip). If
// a referenced block's states were never persisted: complete=false fails
// with IncompleteBlockStatesError; complete=true replays every missing
// block from genesis forward (without rendering) and retries once.
func (c *BlockChain) GetStates(ctx context.Context, addrs []Address, offset *Block, complete bool) (map[Address][]byte, error) {
	if offset == nil {
		tip, ok := c.Tip()
		if !ok {
			return map[Address][]byte{}, nil
		}
		offset = tip
	}

	result, missing, err := c.collectStates(addrs, offset)
	if err != nil {
		return nil, err
	}
	if missing == nil {
		return result, nil
	}
	if !complete {
		return nil, &IncompleteBlockStatesError{Block: *missing}
	}
	if err := c.fillMissingStates(ctx); err != nil {
		return nil, err
	}
	result, missing, err = c.collectStates(addrs, offset)
	if err != nil {
		return nil, err
	}
	if missing != nil {
		return nil, &IncompleteBlockStatesError{Block: *missing}
	}
	return result, nil
}

// fillMissingStates walks the canonical index from genesis forward,
// executing (without rendering) every block whose state delta hasn't been
// persisted yet. Ascending order guarantees each block's predecessor states
// already exist by the time it's reached.
func (c *BlockChain) fillMissingStates(ctx context.Context) error {
	c.lock.RLock()
	count, err := c.store.CountIndex(c.id)
	c.lock.RUnlock()
	if err != nil {
		return wrapStoreErr("CountIndex", err)
	}
	for i := uint64(0); i < count; i++ {
		select {
		case <-ctx.Done():
			return canceled(ctx.Err())
		default:
		}
		c.lock.RLock()
		hash, ok, err := c.store.IndexBlockHash(c.id, int64(i))
		c.lock.RUnlock()
		if err != nil {
			return wrapStoreErr("IndexBlockHash", err)
		}
		if !ok {
			continue
		}
		c.lock.RLock()
		_, hasStates, err := c.store.GetBlockStates(hash)
		c.lock.RUnlock()
		if err != nil {
			return wrapStoreErr("GetBlockStates", err)
		}
		if hasStates {
			continue
		}
		c.lock.RLock()
		block, ok, err := c.store.GetBlock(hash)
		c.lock.RUnlock()
		if err != nil {
			return wrapStoreErr("GetBlock", err)
		}
		if !ok {
			continue
		}
		if err := c.ExecuteActions(ctx, block, false); err != nil {
			return err
		}
	}
	return nil
}

// GetNextTxNonce is store.get_tx_nonce(addr) extended by the longest
// contiguous ascending run of nonces present among addr's staged
// transactions.
func (c *BlockChain) GetNextTxNonce(addr Address) (int64, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.nextTxNonceLocked(addr)
}

func (c *BlockChain) nextTxNonceLocked(addr Address) (int64, error) {
	base, err := c.store.GetTxNonce(c.id, addr)
	if err != nil {
		return 0, wrapStoreErr("GetTxNonce", err)
	}
	ids, err := c.store.IterateStaged(false)
	if err != nil {
		return 0, wrapStoreErr("IterateStaged", err)
	}
	present := map[int64]bool{}
	for _, id := range ids {
		tx, ok, err := c.store.GetTransaction(id)
		if err != nil {
			return 0, wrapStoreErr("GetTransaction", err)
		}
		if !ok || tx.Signer != addr {
			continue
		}
		present[int64(tx.Nonce)] = true
	}
	next := base
	for present[next] {
		next++
	}
	return next, nil
}

// StageTransactions adds txs to the shared staging pool, each carrying its
// own "should broadcast" flag.
func (c *BlockChain) StageTransactions(txs map[*Transaction]bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	ids := make(map[HashDigest]bool, len(txs))
	for tx, broadcast := range txs {
		id, err := tx.ID()
		if err != nil {
			return err
		}
		if err := c.store.PutTransaction(tx); err != nil {
			return wrapStoreErr("PutTransaction", err)
		}
		ids[id] = broadcast
	}
	if err := c.store.StageTransactionIDs(ids); err != nil {
		return wrapStoreErr("StageTransactionIDs", err)
	}
	if c.metrics != nil {
		c.metrics.TxsStaged.Add(float64(len(ids)))
	}
	return nil
}

// UnstageTransactions removes txs from the staging pool without including
// them in a block (e.g. they were dropped or superseded).
func (c *BlockChain) UnstageTransactions(ids []HashDigest) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.store.UnstageTransactionIDs(ids); err != nil {
		return wrapStoreErr("UnstageTransactionIDs", err)
	}
	if c.metrics != nil {
		c.metrics.TxsUnstaged.Add(float64(len(ids)))
	}
	return nil
}

// MineBlock gathers staged transactions eligible for inclusion (those whose
// nonce is contiguous with the confirmed prefix), mines a block, and
// appends it.
func (c *BlockChain) MineBlock(ctx context.Context, miner Address, now time.Time) (*Block, error) {
	c.lock.RLock()
	count, err := c.store.CountIndex(c.id)
	if err != nil {
		c.lock.RUnlock()
		return nil, wrapStoreErr("CountIndex", err)
	}
	var previousHash HashDigest
	if count > 0 {
		hash, ok, err := c.store.IndexBlockHash(c.id, -1)
		if err != nil {
			c.lock.RUnlock()
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if ok {
			previousHash = hash
		}
	}
	stagedIDs, err := c.store.IterateStaged(false)
	if err != nil {
		c.lock.RUnlock()
		return nil, wrapStoreErr("IterateStaged", err)
	}
	type candidate struct {
		tx  *Transaction
		seq int // position within the staged listing; not used to order the block
	}
	bySigner := map[Address][]candidate{}
	txByID := map[HashDigest]*Transaction{}
	for i, id := range stagedIDs {
		tx, ok, err := c.store.GetTransaction(id)
		if err != nil {
			c.lock.RUnlock()
			return nil, wrapStoreErr("GetTransaction", err)
		}
		if !ok {
			continue
		}
		bySigner[tx.Signer] = append(bySigner[tx.Signer], candidate{tx, i})
		txByID[id] = tx
	}
	var selected []*Transaction
	for signer, candidates := range bySigner {
		base, err := c.store.GetTxNonce(c.id, signer)
		if err != nil {
			c.lock.RUnlock()
			return nil, wrapStoreErr("GetTxNonce", err)
		}
		byNonce := map[int64]*Transaction{}
		for _, cd := range candidates {
			byNonce[int64(cd.tx.Nonce)] = cd.tx
		}
		next := base
		for {
			tx, ok := byNonce[next]
			if !ok {
				break
			}
			selected = append(selected, tx)
			next++
		}
	}
	difficulty, err := c.policy.GetNextDifficulty(c)
	c.lock.RUnlock()
	if err != nil {
		return nil, err
	}

	block, err := Mine(ctx, count, difficulty, miner, previousHash, now, selected)
	if err != nil {
		return nil, err
	}
	if err := c.Append(ctx, block, now, true, true); err != nil {
		return nil, err
	}
	return block, nil
}
