package testutil

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/meridian-chain/chaincore/core"
)

// SetValueAction is the minimal reference Action used by tests needing real
// (not mocked) action semantics: it overwrites the signer's opaque state
// with Value.
type SetValueAction struct {
	Value []byte
}

func (a *SetValueAction) Execute(ctx *core.ActionContext) (core.AccountStateDelta, error) {
	return ctx.PreviousStates.SetState(ctx.Signer, a.Value), nil
}

func (a *SetValueAction) Render(ctx *core.ActionContext, output core.AccountStateDelta)        {}
func (a *SetValueAction) Unrender(ctx *core.ActionContext, output core.AccountStateDelta)      {}
func (a *SetValueAction) RenderError(ctx *core.ActionContext, err error)                       {}
func (a *SetValueAction) UnrenderError(ctx *core.ActionContext, err error)                     {}
func (a *SetValueAction) PlainValue() ([]byte, error)                                          { return append([]byte(nil), a.Value...), nil }

// SetValueActionCodec reconstructs SetValueAction from its plain bytes.
type SetValueActionCodec struct{}

func (SetValueActionCodec) Decode(plain []byte) (core.Action, error) {
	return &SetValueAction{Value: append([]byte(nil), plain...)}, nil
}

// SignedTransaction builds a single-action transaction and signs it with
// signer, the idiom every BlockBuilder test uses instead of repeating the
// construct-sign boilerplate inline.
func SignedTransaction(signer *ecdsa.PrivateKey, nonce uint64, value []byte, timestamp time.Time) (*core.Transaction, error) {
	tx := &core.Transaction{
		Nonce:            nonce,
		UpdatedAddresses: []core.Address{core.AddressFromPublicKey(&signer.PublicKey)},
		Timestamp:        timestamp,
		Actions:          []core.Action{&SetValueAction{Value: value}},
	}
	if err := tx.Sign(signer); err != nil {
		return nil, err
	}
	return tx, nil
}

// BlockBuilder fluently assembles a candidate block and mines it, so tests
// don't repeat PoW-loop boilerplate for every fixture block they need.
type BlockBuilder struct {
	minerAddr  core.Address
	previous   *core.Block
	difficulty uint64
	txs        []*core.Transaction
}

// NewBlockBuilder starts a builder for the block that follows previous (nil
// for genesis), mined by miner at difficulty.
func NewBlockBuilder(miner *ecdsa.PrivateKey, previous *core.Block, difficulty uint64) *BlockBuilder {
	return &BlockBuilder{
		minerAddr:  core.AddressFromPublicKey(&miner.PublicKey),
		previous:   previous,
		difficulty: difficulty,
	}
}

// WithTransaction appends tx to the block under construction and returns the
// builder for chaining.
func (b *BlockBuilder) WithTransaction(tx *core.Transaction) *BlockBuilder {
	b.txs = append(b.txs, tx)
	return b
}

// Build mines the accumulated transactions into a valid block at index,
// timestamped timestamp.
func (b *BlockBuilder) Build(ctx context.Context, index uint64, timestamp time.Time) (*core.Block, error) {
	prevHash := core.ZeroHash
	if b.previous != nil {
		prevHash = b.previous.Hash
	}
	return core.Mine(ctx, index, b.difficulty, b.minerAddr, prevHash, timestamp, b.txs)
}
