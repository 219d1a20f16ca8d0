package core

import "context"

// replayEvaluations rebuilds a block's action evaluations by resolving its
// baseline state under c's current chain id and re-running Evaluate. Used
// by Swap to recover render/unrender evaluations without requiring the
// engine to have kept them in memory.
func (c *BlockChain) replayEvaluations(block *Block) ([]ActionEvaluation, error) {
	baseline, err := c.buildBaseline(block)
	if err != nil {
		return nil, err
	}
	return block.Evaluate(baseline, c.policy.BlockAction())
}

// Swap atomically replaces c's chain identity with other's. If render,
// every action that leaves the canonical chain (blocks strictly above the
// branchpoint on c's current chain) is unrendered in reverse canonical
// order before the swap, and every action that enters it (blocks strictly
// above the branchpoint on other's chain) is rendered in canonical order
// after. The identity replacement itself (recording the new canonical
// chain id and retiring the old one) is atomic; steps before and after it
// are a best-effort pass the caller should not race against concurrent
// Appends on either chain.
func (c *BlockChain) Swap(ctx context.Context, other *BlockChain, render bool) error {
	var branchIdx int64 = -1

	if render {
		lenA, err := c.store.CountIndex(c.id)
		if err != nil {
			return wrapStoreErr("CountIndex", err)
		}
		lenB, err := c.store.CountIndex(other.id)
		if err != nil {
			return wrapStoreErr("CountIndex", err)
		}
		minLen := lenA
		if lenB < minLen {
			minLen = lenB
		}
		for i := int64(minLen) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				return canceled(ctx.Err())
			default:
			}
			hashA, okA, err := c.store.IndexBlockHash(c.id, i)
			if err != nil {
				return wrapStoreErr("IndexBlockHash", err)
			}
			hashB, okB, err := c.store.IndexBlockHash(other.id, i)
			if err != nil {
				return wrapStoreErr("IndexBlockHash", err)
			}
			if okA && okB && hashA == hashB {
				branchIdx = i
				break
			}
		}

		for i := int64(lenA) - 1; i > branchIdx; i-- {
			select {
			case <-ctx.Done():
				return canceled(ctx.Err())
			default:
			}
			hash, ok, err := c.store.IndexBlockHash(c.id, i)
			if err != nil {
				return wrapStoreErr("IndexBlockHash", err)
			}
			if !ok {
				continue
			}
			b, ok, err := c.store.GetBlock(hash)
			if err != nil {
				return wrapStoreErr("GetBlock", err)
			}
			if !ok {
				continue
			}
			evaluations, err := c.replayEvaluations(b)
			if err != nil {
				return err
			}
			for i := len(evaluations) - 1; i >= 0; i-- {
				ev := evaluations[i]
				if ev.Err != nil {
					ev.Action.UnrenderError(ev.Ctx, ev.Err)
					continue
				}
				ev.Action.Unrender(ev.Ctx, ev.OutputDelta)
				if c.metrics != nil {
					c.metrics.ActionsUnrendered.Inc()
				}
			}
		}
	}

	c.lock.Lock()
	oldID := c.id
	c.id = other.id
	setErr := c.store.SetCanonicalChainID(c.id)
	var delErr error
	if setErr == nil {
		delErr = c.store.DeleteChainID(oldID)
	}
	c.lock.Unlock()
	if setErr != nil {
		return wrapStoreErr("SetCanonicalChainID", setErr)
	}
	if delErr != nil {
		return wrapStoreErr("DeleteChainID", delErr)
	}

	if render {
		newLen, err := c.store.CountIndex(c.id)
		if err != nil {
			return wrapStoreErr("CountIndex", err)
		}
		for i := branchIdx + 1; i < int64(newLen); i++ {
			select {
			case <-ctx.Done():
				return canceled(ctx.Err())
			default:
			}
			hash, ok, err := c.store.IndexBlockHash(c.id, i)
			if err != nil {
				return wrapStoreErr("IndexBlockHash", err)
			}
			if !ok {
				continue
			}
			b, ok, err := c.store.GetBlock(hash)
			if err != nil {
				return wrapStoreErr("GetBlock", err)
			}
			if !ok {
				continue
			}
			evaluations, err := c.replayEvaluations(b)
			if err != nil {
				return err
			}
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
	}

	if c.metrics != nil {
		c.metrics.ChainsSwapped.Inc()
	}
	c.logger.WithField("new_chain_id", string(c.id)).Info("swapped canonical chain")
	return nil
}
