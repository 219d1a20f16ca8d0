// Package memstore is a plain in-memory implementation of core.Store,
// useful for tests and single-process experimentation. Nothing it holds
// survives process exit; store/filestore is the durable counterpart.
package memstore

import (
	"fmt"
	"sync"

	"github.com/meridian-chain/chaincore/core"
)

// MemStore guards every namespace with a single RWMutex; none of chaincore's
// Store operations are hot enough on a single node to warrant finer locking.
type MemStore struct {
	mu sync.RWMutex

	blockByHash map[core.HashDigest]*core.Block
	txByID      map[core.HashDigest]*core.Transaction
	blockStates map[core.HashDigest]map[core.Address][]byte
	staged      map[core.HashDigest]bool

	hasCanonical bool
	canonical    core.ChainID

	index     map[core.ChainID][]core.HashDigest
	stateRefs map[core.ChainID]map[core.Address][]core.StateRef
	nonces    map[core.ChainID]map[core.Address]int64
}

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		blockByHash: make(map[core.HashDigest]*core.Block),
		txByID:      make(map[core.HashDigest]*core.Transaction),
		blockStates: make(map[core.HashDigest]map[core.Address][]byte),
		staged:      make(map[core.HashDigest]bool),
		index:       make(map[core.ChainID][]core.HashDigest),
		stateRefs:   make(map[core.ChainID]map[core.Address][]core.StateRef),
		nonces:      make(map[core.ChainID]map[core.Address]int64),
	}
}

func (s *MemStore) PutBlock(b *core.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockByHash[b.Hash] = b
	return nil
}

func (s *MemStore) GetBlock(hash core.HashDigest) (*core.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blockByHash[hash]
	return b, ok, nil
}

func (s *MemStore) DeleteBlock(hash core.HashDigest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blockByHash[hash]
	delete(s.blockByHash, hash)
	return ok, nil
}

func (s *MemStore) IterateBlockHashes() ([]core.HashDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.HashDigest, 0, len(s.blockByHash))
	for h := range s.blockByHash {
		out = append(out, h)
	}
	return out, nil
}

func (s *MemStore) PutTransaction(tx *core.Transaction) error {
	id, err := tx.ID()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txByID[id] = tx
	return nil
}

func (s *MemStore) GetTransaction(id core.HashDigest) (*core.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txByID[id]
	return tx, ok, nil
}

func (s *MemStore) DeleteTransaction(id core.HashDigest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.txByID[id]
	delete(s.txByID, id)
	return ok, nil
}

func (s *MemStore) SetBlockStates(hash core.HashDigest, delta map[core.Address][]byte) error {
	clone := make(map[core.Address][]byte, len(delta))
	for k, v := range delta {
		clone[k] = append([]byte(nil), v...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockStates[hash] = clone
	return nil
}

func (s *MemStore) GetBlockStates(hash core.HashDigest) (map[core.Address][]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delta, ok := s.blockStates[hash]
	if !ok {
		return nil, false, nil
	}
	clone := make(map[core.Address][]byte, len(delta))
	for k, v := range delta {
		clone[k] = append([]byte(nil), v...)
	}
	return clone, true, nil
}

func (s *MemStore) StageTransactionIDs(ids map[core.HashDigest]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, broadcast := range ids {
		s.staged[id] = broadcast
	}
	return nil
}

func (s *MemStore) UnstageTransactionIDs(ids []core.HashDigest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.staged, id)
	}
	return nil
}

func (s *MemStore) IterateStaged(toBroadcastOnly bool) ([]core.HashDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.HashDigest, 0, len(s.staged))
	for id, broadcast := range s.staged {
		if toBroadcastOnly && !broadcast {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *MemStore) GetCanonicalChainID() (core.ChainID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonical, s.hasCanonical, nil
}

func (s *MemStore) SetCanonicalChainID(id core.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical = id
	s.hasCanonical = true
	return nil
}

func (s *MemStore) CountIndex(chain core.ChainID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.index[chain])), nil
}

func (s *MemStore) IndexBlockHash(chain core.ChainID, i int64) (core.HashDigest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.index[chain]
	pos := i
	if pos < 0 {
		pos = int64(len(list)) + pos
	}
	if pos < 0 || pos >= int64(len(list)) {
		return core.HashDigest{}, false, nil
	}
	return list[pos], true, nil
}

func (s *MemStore) AppendIndex(chain core.ChainID, hash core.HashDigest) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[chain] = append(s.index[chain], hash)
	return uint64(len(s.index[chain])), nil
}

func (s *MemStore) IterateIndex(chain core.ChainID, start int64, count int64) ([]core.HashDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.index[chain]
	if start < 0 || start > int64(len(list)) {
		return nil, fmt.Errorf("memstore: start %d out of range (len %d)", start, len(list))
	}
	end := int64(len(list))
	if count >= 0 && start+count < end {
		end = start + count
	}
	out := make([]core.HashDigest, end-start)
	copy(out, list[start:end])
	return out, nil
}

func (s *MemStore) StoreStateReference(chain core.ChainID, addrs []core.Address, b *core.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.stateRefs[chain]
	if !ok {
		m = make(map[core.Address][]core.StateRef)
		s.stateRefs[chain] = m
	}
	ref := core.StateRef{Hash: b.Hash, Index: b.Index}
	for _, addr := range addrs {
		m[addr] = append(m[addr], ref)
	}
	return nil
}

func (s *MemStore) LookupStateReference(chain core.ChainID, addr core.Address, pivot *core.Block) (core.StateRef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.stateRefs[chain][addr]
	for i := len(refs) - 1; i >= 0; i-- {
		if refs[i].Index <= pivot.Index {
			return refs[i], true, nil
		}
	}
	return core.StateRef{}, false, nil
}

func (s *MemStore) IterateStateReferences(chain core.ChainID, addr core.Address, fromIndex, toIndex int64, limit int) ([]core.StateRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.stateRefs[chain][addr]
	out := make([]core.StateRef, 0, len(refs))
	for i := len(refs) - 1; i >= 0; i-- {
		idx := int64(refs[i].Index)
		if idx < fromIndex || idx > toIndex {
			continue
		}
		out = append(out, refs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) ListAllStateReferences(chain core.ChainID, onlyAfter, ignoreAfter *uint64) (map[core.Address][]core.HashDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[core.Address][]core.HashDigest)
	for addr, refs := range s.stateRefs[chain] {
		var hashes []core.HashDigest
		for _, r := range refs {
			if onlyAfter != nil && r.Index <= *onlyAfter {
				continue
			}
			if ignoreAfter != nil && r.Index > *ignoreAfter {
				continue
			}
			hashes = append(hashes, r.Hash)
		}
		if len(hashes) > 0 {
			out[addr] = hashes
		}
	}
	return out, nil
}

func (s *MemStore) ForkStateReferences(src, dst core.ChainID, branch *core.Block, strip []core.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srcRefs := s.stateRefs[src]
	dstRefs := make(map[core.Address][]core.StateRef, len(srcRefs))
	for addr, refs := range srcRefs {
		kept := make([]core.StateRef, 0, len(refs))
		for _, r := range refs {
			if r.Index <= branch.Index {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			dstRefs[addr] = kept
		}
	}
	s.stateRefs[dst] = dstRefs
	return nil
}

func (s *MemStore) GetTxNonce(chain core.ChainID, addr core.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[chain][addr], nil
}

func (s *MemStore) IncreaseTxNonce(chain core.ChainID, addr core.Address, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.nonces[chain]
	if !ok {
		m = make(map[core.Address]int64)
		s.nonces[chain] = m
	}
	m[addr] += delta
	return nil
}

func (s *MemStore) ListTxNonces(chain core.ChainID) (map[core.Address]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[core.Address]int64, len(s.nonces[chain]))
	for addr, n := range s.nonces[chain] {
		out[addr] = n
	}
	return out, nil
}

func (s *MemStore) DeleteChainID(chain core.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, chain)
	delete(s.stateRefs, chain)
	delete(s.nonces, chain)
	return nil
}

var _ core.Store = (*MemStore)(nil)
