package core

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ForkInfo summarizes a side branch known to a ForkTracker.
type ForkInfo struct {
	ChainID ChainID
	Length  uint64
}

// ForkTracker keeps a registry of sibling chains produced by BlockChain.Fork
// so a node can notice when a side branch has overtaken the chain it
// currently treats as canonical and recover onto it. It holds no authority
// of its own; RecoverLongestFork only ever acts through Swap.
type ForkTracker struct {
	mu     sync.Mutex
	logger *logrus.Entry
	chains map[ChainID]*BlockChain
}

// NewForkTracker returns an empty tracker.
func NewForkTracker(logger *logrus.Entry) *ForkTracker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ForkTracker{logger: logger, chains: make(map[ChainID]*BlockChain)}
}

// Register adds chain to the set of branches considered during
// RecoverLongestFork. It is typically called with the result of Fork.
func (t *ForkTracker) Register(chain *BlockChain) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chains[chain.id] = chain
}

// Forget removes a chain from the registry, e.g. after it has been swapped
// in (it is now canonical, not a side branch) or abandoned.
func (t *ForkTracker) Forget(id ChainID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chains, id)
}

// ListForks reports every registered branch and its current length.
func (t *ForkTracker) ListForks() ([]ForkInfo, error) {
	t.mu.Lock()
	chains := make([]*BlockChain, 0, len(t.chains))
	for _, c := range t.chains {
		chains = append(chains, c)
	}
	t.mu.Unlock()

	infos := make([]ForkInfo, 0, len(chains))
	for _, c := range chains {
		n, err := c.store.CountIndex(c.id)
		if err != nil {
			return nil, wrapStoreErr("CountIndex", err)
		}
		infos = append(infos, ForkInfo{ChainID: c.id, Length: n})
	}
	return infos, nil
}

// RecoverLongestFork compares canonical's length against every registered
// branch and, if one is strictly longer, Swaps canonical onto it (rendering
// the divergent blocks) and forgets the branch, since it is now canonical
// itself. It reports whether a swap occurred.
func (t *ForkTracker) RecoverLongestFork(ctx context.Context, canonical *BlockChain) (bool, error) {
	canonicalLen, err := canonical.store.CountIndex(canonical.id)
	if err != nil {
		return false, wrapStoreErr("CountIndex", err)
	}

	t.mu.Lock()
	var best *BlockChain
	var bestLen uint64
	for _, c := range t.chains {
		if c.id == canonical.id {
			continue
		}
		n, err := c.store.CountIndex(c.id)
		if err != nil {
			t.mu.Unlock()
			return false, wrapStoreErr("CountIndex", err)
		}
		if n > canonicalLen && n > bestLen {
			best = c
			bestLen = n
		}
	}
	t.mu.Unlock()

	if best == nil {
		return false, nil
	}

	if err := canonical.Swap(ctx, best, true); err != nil {
		return false, err
	}
	t.Forget(best.id)
	t.logger.WithField("new_length", bestLen).Info("recovered onto longest fork")
	return true, nil
}
