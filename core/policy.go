package core

import (
	"math/big"
	"sync"
	"time"
)

// BlockPolicy supplies the consensus/mining rules the core defers to:
// next-difficulty calculation, per-block validation, and an optional
// implicit action run after every block's own transactions.
type BlockPolicy interface {
	GetNextDifficulty(chain *BlockChain) (uint64, error)
	ValidateNextBlock(chain *BlockChain, b *Block) error
	ValidateBlocks(blocks []*Block, now time.Time) error
	// BlockAction returns the implicit action evaluated after a block's own
	// transactions (e.g. a mining reward), or nil if there is none.
	BlockAction() Action
}

// DefaultPolicy is a Hashcash proof-of-work policy with periodic difficulty
// retargeting. Difficulty is inverse to the target threshold: larger means
// harder, target = 2^256/Difficulty.
type DefaultPolicy struct {
	InitialDifficulty   uint64
	RetargetWindow       int
	TargetBlockInterval time.Duration
	MaxTimestampSkew    time.Duration
	Action              Action // optional block action, e.g. a mining reward

	mu         sync.Mutex
	difficulty uint64
}

func NewDefaultPolicy(initialDifficulty uint64, retargetWindow int, targetInterval, maxSkew time.Duration) *DefaultPolicy {
	return &DefaultPolicy{
		InitialDifficulty:   initialDifficulty,
		RetargetWindow:      retargetWindow,
		TargetBlockInterval: targetInterval,
		MaxTimestampSkew:    maxSkew,
		difficulty:          initialDifficulty,
	}
}

// Status returns the policy's current difficulty.
func (p *DefaultPolicy) Status() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.difficulty
}

// SetDifficulty overrides the current difficulty, e.g. for tests.
func (p *DefaultPolicy) SetDifficulty(d uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.difficulty = d
}

func (p *DefaultPolicy) BlockAction() Action { return p.Action }

func (p *DefaultPolicy) GetNextDifficulty(chain *BlockChain) (uint64, error) {
	count, err := chain.store.CountIndex(chain.id)
	if err != nil {
		return 0, wrapStoreErr("CountIndex", err)
	}
	if count == 0 {
		return p.InitialDifficulty, nil
	}
	p.mu.Lock()
	cur := p.difficulty
	window := p.RetargetWindow
	p.mu.Unlock()
	if window <= 0 || int(count)%window != 0 || count < uint64(window) {
		return cur, nil
	}

	first, ok, err := chain.store.IndexBlockHash(chain.id, int64(count)-int64(window))
	if err != nil {
		return 0, wrapStoreErr("IndexBlockHash", err)
	}
	if !ok {
		return cur, nil
	}
	last, ok, err := chain.store.IndexBlockHash(chain.id, -1)
	if err != nil {
		return 0, wrapStoreErr("IndexBlockHash", err)
	}
	if !ok {
		return cur, nil
	}
	firstBlock, ok, err := chain.store.GetBlock(first)
	if err != nil || !ok {
		return cur, wrapStoreErr("GetBlock", err)
	}
	lastBlock, ok, err := chain.store.GetBlock(last)
	if err != nil || !ok {
		return cur, wrapStoreErr("GetBlock", err)
	}

	span := lastBlock.Timestamp.Sub(firstBlock.Timestamp)
	expected := p.TargetBlockInterval * time.Duration(window)
	if span <= 0 || expected <= 0 {
		return cur, nil
	}

	curF := new(big.Float).SetUint64(cur)
	ratio := new(big.Float).Quo(big.NewFloat(expected.Seconds()), big.NewFloat(span.Seconds()))
	nextF := new(big.Float).Mul(curF, ratio)
	next, _ := nextF.Uint64()
	if next == 0 {
		next = 1
	}

	p.mu.Lock()
	p.difficulty = next
	p.mu.Unlock()
	return next, nil
}

func (p *DefaultPolicy) ValidateNextBlock(chain *BlockChain, b *Block) error {
	expected, err := p.GetNextDifficulty(chain)
	if err != nil {
		return err
	}
	if b.Difficulty != expected {
		return newBlockError(InvalidDifficulty, "expected difficulty %d, got %d", expected, b.Difficulty)
	}
	tip, _, err := chain.TipUnsafe()
	if err != nil {
		return wrapStoreErr("TipUnsafe", err)
	}
	return b.Validate(time.Now().UTC(), tip, p.MaxTimestampSkew, func(addr Address) (int64, error) {
		return chain.store.GetTxNonce(chain.id, addr)
	})
}

// ValidateBlocks performs a lightweight structural pass over a candidate
// block sequence (e.g. received during peer sync, before any of it is
// appended): hash/difficulty self-consistency, index/previous-hash
// chaining, timestamp monotonicity, and transaction signatures. Per-signer
// nonce contiguity against confirmed chain state is enforced by
// BlockChain.Append, not here, since that check requires Store access this
// method does not have.
func (p *DefaultPolicy) ValidateBlocks(blocks []*Block, now time.Time) error {
	var prev *Block
	for _, b := range blocks {
		if err := b.verifyStructureAndSignatures(now, prev, p.MaxTimestampSkew); err != nil {
			return err
		}
		prev = b
	}
	return nil
}
