package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Fork creates a sibling chain sharing every block up to and including
// branchHash, with per-chain state references and nonces adjusted so the
// sibling starts as if it had never seen anything after the branch point.
func (c *BlockChain) Fork(branchHash HashDigest) (*BlockChain, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	branch, ok, err := c.store.GetBlock(branchHash)
	if err != nil {
		return nil, wrapStoreErr("GetBlock", err)
	}
	if !ok {
		return nil, fmt.Errorf("chaincore: fork: branch block %s not found", branchHash)
	}

	newID := ChainID(uuid.New().String())

	// Step 2: copy the index namespace up to and including branch.
	for i := uint64(0); i <= branch.Index; i++ {
		hash, ok, err := c.store.IndexBlockHash(c.id, int64(i))
		if err != nil {
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if !ok {
			return nil, fmt.Errorf("chaincore: fork: missing index entry %d", i)
		}
		if _, err := c.store.AppendIndex(newID, hash); err != nil {
			return nil, wrapStoreErr("AppendIndex", err)
		}
	}

	// Step 3: stripped addresses and per-signer counts above the branch.
	refs, err := c.store.ListAllStateReferences(c.id, &branch.Index, nil)
	if err != nil {
		return nil, wrapStoreErr("ListAllStateReferences", err)
	}
	stripped := make([]Address, 0, len(refs))
	for addr := range refs {
		stripped = append(stripped, addr)
	}

	strippedCount := map[Address]int64{}
	count, err := c.store.CountIndex(c.id)
	if err != nil {
		return nil, wrapStoreErr("CountIndex", err)
	}
	for i := branch.Index + 1; i < count; i++ {
		hash, ok, err := c.store.IndexBlockHash(c.id, int64(i))
		if err != nil {
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if !ok {
			continue
		}
		b, ok, err := c.store.GetBlock(hash)
		if err != nil {
			return nil, wrapStoreErr("GetBlock", err)
		}
		if !ok {
			continue
		}
		for _, tx := range b.Transactions {
			strippedCount[tx.Signer]++
		}
	}

	// Step 4.
	if err := c.store.ForkStateReferences(c.id, newID, branch, stripped); err != nil {
		return nil, wrapStoreErr("ForkStateReferences", err)
	}

	// Step 5.
	nonces, err := c.store.ListTxNonces(c.id)
	if err != nil {
		return nil, wrapStoreErr("ListTxNonces", err)
	}
	for addr, nonce := range nonces {
		adjusted := nonce - strippedCount[addr]
		if adjusted < 0 {
			return nil, fmt.Errorf("chaincore: fork: adjusted nonce for %s would be negative (%d - %d)", addr, nonce, strippedCount[addr])
		}
		if err := c.store.IncreaseTxNonce(newID, addr, adjusted); err != nil {
			return nil, wrapStoreErr("IncreaseTxNonce", err)
		}
	}

	if c.metrics != nil {
		c.metrics.ChainsForked.Inc()
	}
	c.logger.WithField("branch", branchHash.String()).WithField("new_chain_id", string(newID)).Info("forked chain")

	return NewBlockChain(newID, c.store, c.policy, c.codec, c.logger, c.metrics), nil
}
