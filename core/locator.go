package core

// BlockLocator returns an ordered list of block hashes beginning with the
// tip and stepping backward with geometrically increasing stride once
// threshold entries have been emitted, Bitcoin-style, so a peer can find a
// common ancestor in O(log n) round trips. The genesis hash is always the
// last entry.
func (c *BlockChain) BlockLocator(threshold int) ([]HashDigest, error) {
	if threshold <= 0 {
		threshold = 10
	}
	c.lock.RLock()
	defer c.lock.RUnlock()

	count, err := c.store.CountIndex(c.id)
	if err != nil {
		return nil, wrapStoreErr("CountIndex", err)
	}
	if count == 0 {
		return nil, nil
	}

	var hashes []HashDigest
	step := int64(1)
	emitted := 0
	for i := int64(count) - 1; i >= 0; i -= step {
		hash, ok, err := c.store.IndexBlockHash(c.id, i)
		if err != nil {
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if ok {
			hashes = append(hashes, hash)
			emitted++
		}
		if emitted >= threshold {
			step *= 2
		}
	}
	if len(hashes) == 0 || hashes[len(hashes)-1] != mustHash(c.store.IndexBlockHash(c.id, 0)) {
		genesis, ok, err := c.store.IndexBlockHash(c.id, 0)
		if err != nil {
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if ok {
			hashes = append(hashes, genesis)
		}
	}
	return hashes, nil
}

func mustHash(h HashDigest, ok bool, err error) HashDigest {
	if err != nil || !ok {
		return HashDigest{}
	}
	return h
}

// FindBranchPoint returns the first hash in locator that is part of this
// chain (i.e. occupies the same index position here as it does in
// whichever chain locator was built from), or the genesis hash as a
// fallback.
func (c *BlockChain) FindBranchPoint(locator []HashDigest) (HashDigest, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for _, h := range locator {
		b, ok, err := c.store.GetBlock(h)
		if err != nil {
			return HashDigest{}, wrapStoreErr("GetBlock", err)
		}
		if !ok {
			continue
		}
		atIndex, ok, err := c.store.IndexBlockHash(c.id, int64(b.Index))
		if err != nil {
			return HashDigest{}, wrapStoreErr("IndexBlockHash", err)
		}
		if ok && atIndex == h {
			return h, nil
		}
	}
	genesis, ok, err := c.store.IndexBlockHash(c.id, 0)
	if err != nil {
		return HashDigest{}, wrapStoreErr("IndexBlockHash", err)
	}
	if !ok {
		return HashDigest{}, nil
	}
	return genesis, nil
}

// FindNextHashes yields up to count hashes starting at the branchpoint
// locator resolves to, terminating early if stop is emitted.
func (c *BlockChain) FindNextHashes(locator []HashDigest, stop *HashDigest, count int) ([]HashDigest, error) {
	branch, err := c.FindBranchPoint(locator)
	if err != nil {
		return nil, err
	}
	c.lock.RLock()
	defer c.lock.RUnlock()
	b, ok, err := c.store.GetBlock(branch)
	if err != nil {
		return nil, wrapStoreErr("GetBlock", err)
	}
	if !ok {
		return nil, nil
	}
	var out []HashDigest
	for i := int64(b.Index); count <= 0 || len(out) < count; i++ {
		hash, ok, err := c.store.IndexBlockHash(c.id, i)
		if err != nil {
			return nil, wrapStoreErr("IndexBlockHash", err)
		}
		if !ok {
			break
		}
		out = append(out, hash)
		if stop != nil && hash == *stop {
			break
		}
	}
	return out, nil
}
