package core_test

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/meridian-chain/chaincore/core"
	"github.com/meridian-chain/chaincore/internal/testutil"
	"github.com/meridian-chain/chaincore/store/memstore"
)

func newTestChain(t *testing.T) (*core.BlockChain, *memstore.MemStore, *core.DefaultPolicy) {
	t.Helper()
	store := memstore.New()
	policy := core.NewDefaultPolicy(4, 0, time.Second, time.Hour)
	logger := logrus.NewEntry(logrus.New())
	chain := core.NewBlockChain(core.ChainID("main"), store, policy, testutil.SetValueActionCodec{}, logger, nil)
	return chain, store, policy
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

// Genesis only: mining a chain with no transactions produces a single valid
// index-0 block whose previous hash is zero.
func TestGenesisOnly(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	ctx := context.Background()

	block, err := chain.MineBlock(ctx, core.AddressFromPublicKey(&miner.PublicKey), time.Now().UTC())
	if err != nil {
		t.Fatalf("MineBlock: %v", err)
	}
	if block.Index != 0 {
		t.Fatalf("expected genesis index 0, got %d", block.Index)
	}
	if !block.PreviousHash.IsZero() {
		t.Fatalf("expected zero previous hash for genesis")
	}

	tip, ok := chain.Tip()
	if !ok || tip.Hash != block.Hash {
		t.Fatalf("tip does not match mined genesis block")
	}
}

// Two-block linear: mining twice in sequence produces a properly chained
// two-block history.
func TestTwoBlockLinear(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	ctx := context.Background()

	first, err := chain.MineBlock(ctx, minerAddr, time.Now().UTC())
	if err != nil {
		t.Fatalf("mine first block: %v", err)
	}
	second, err := chain.MineBlock(ctx, minerAddr, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("mine second block: %v", err)
	}
	if second.Index != first.Index+1 {
		t.Fatalf("expected second index %d, got %d", first.Index+1, second.Index)
	}
	if second.PreviousHash != first.Hash {
		t.Fatalf("second block does not chain to first")
	}
}

// Fork and swap: forking at the genesis block and mining a longer branch,
// then swapping onto it, makes the branch canonical and renders its action.
func TestForkAndSwap(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	signer := newTestKey(t)
	signerAddr := core.AddressFromPublicKey(&signer.PublicKey)
	ctx := context.Background()
	now := time.Now().UTC()

	genesis, err := chain.MineBlock(ctx, minerAddr, now)
	if err != nil {
		t.Fatalf("mine genesis: %v", err)
	}

	forked, err := chain.Fork(genesis.Hash)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}

	tx, err := testutil.SignedTransaction(signer, 0, []byte("branch-value"), now.Add(time.Second))
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := forked.StageTransactions(map[*core.Transaction]bool{tx: false}); err != nil {
		t.Fatalf("stage tx on fork: %v", err)
	}
	if _, err := forked.MineBlock(ctx, minerAddr, now.Add(time.Second)); err != nil {
		t.Fatalf("mine on fork: %v", err)
	}

	if err := chain.Swap(ctx, forked, true); err != nil {
		t.Fatalf("swap: %v", err)
	}

	tip, ok := chain.Tip()
	if !ok || tip.Index != 1 {
		t.Fatalf("expected canonical chain to now have 2 blocks, tip index %d ok %v", tip.Index, ok)
	}

	states, err := chain.GetStates(ctx, []core.Address{signerAddr}, nil, false)
	if err != nil {
		t.Fatalf("get states after swap: %v", err)
	}
	if string(states[signerAddr]) != "branch-value" {
		t.Fatalf("expected branch-value state after swap, got %q", states[signerAddr])
	}
}

// InvalidTxNonce: a block containing a transaction whose nonce does not
// match the signer's expected next nonce must be rejected, leaving the
// chain unchanged.
func TestInvalidTxNonce(t *testing.T) {
	chain, _, policy := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	signer := newTestKey(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tx, err := testutil.SignedTransaction(signer, 5, []byte("skip-ahead"), now)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}

	difficulty, err := policy.GetNextDifficulty(chain)
	if err != nil {
		t.Fatalf("get next difficulty: %v", err)
	}
	block, err := core.Mine(ctx, 0, difficulty, minerAddr, core.ZeroHash, now, []*core.Transaction{tx})
	if err != nil {
		t.Fatalf("mine candidate block: %v", err)
	}

	err = chain.Append(ctx, block, now, true, true)
	if err == nil {
		t.Fatalf("expected invalid-nonce error, got nil")
	}
	txErr, ok := err.(*core.TransactionError)
	if !ok {
		t.Fatalf("expected *core.TransactionError, got %T: %v", err, err)
	}
	if txErr.Kind != core.InvalidTxNonce {
		t.Fatalf("expected InvalidTxNonce, got %v", txErr.Kind)
	}

	if _, ok := chain.Tip(); ok {
		t.Fatalf("chain should remain empty after rejected append")
	}
}

// Incomplete states recovery: a state reference that points at a block
// whose state delta was never persisted must fail GetStates fast without
// complete, and succeed by replaying history from genesis when complete is
// requested.
func TestIncompleteStatesRecovery(t *testing.T) {
	chain, store, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	signer := newTestKey(t)
	signerAddr := core.AddressFromPublicKey(&signer.PublicKey)
	ctx := context.Background()
	now := time.Now().UTC()

	genesis, err := chain.MineBlock(ctx, minerAddr, now)
	if err != nil {
		t.Fatalf("mine genesis: %v", err)
	}

	tx, err := testutil.SignedTransaction(signer, 0, []byte("v1"), now.Add(time.Second))
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	builder := testutil.NewBlockBuilder(miner, genesis, 4)
	builder.WithTransaction(tx)
	block, err := builder.Build(ctx, 1, now.Add(time.Second))
	if err != nil {
		t.Fatalf("build block: %v", err)
	}

	// Bypass BlockChain.Append entirely: record the block, its index entry,
	// and its state reference directly against the store, without ever
	// calling SetBlockStates, so the reference points at a block with no
	// persisted state delta.
	if err := store.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if _, err := store.AppendIndex(chain.ID(), block.Hash); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}
	if err := store.StoreStateReference(chain.ID(), []core.Address{signerAddr}, block); err != nil {
		t.Fatalf("StoreStateReference: %v", err)
	}

	_, err = chain.GetStates(ctx, []core.Address{signerAddr}, nil, false)
	if err == nil {
		t.Fatalf("expected IncompleteBlockStatesError, got nil")
	}
	incomplete, ok := err.(*core.IncompleteBlockStatesError)
	if !ok {
		t.Fatalf("expected *core.IncompleteBlockStatesError, got %T: %v", err, err)
	}
	if incomplete.Block != block.Hash {
		t.Fatalf("expected incomplete block %s, got %s", block.Hash, incomplete.Block)
	}

	states, err := chain.GetStates(ctx, []core.Address{signerAddr}, nil, true)
	if err != nil {
		t.Fatalf("recover incomplete states: %v", err)
	}
	if string(states[signerAddr]) != "v1" {
		t.Fatalf("expected recovered state v1, got %q", states[signerAddr])
	}
}

// Concurrent staging/mining: staging transactions from several goroutines at
// once, then mining, must never corrupt the store or produce a block with a
// nonce-conflicting transaction set.
func TestConcurrentStagingAndMining(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	ctx := context.Background()

	const signerCount = 5
	signers := make([]*ecdsa.PrivateKey, signerCount)
	for i := range signers {
		signers[i] = newTestKey(t)
	}

	done := make(chan error, signerCount)
	for i, signer := range signers {
		go func(i int, signer *ecdsa.PrivateKey) {
			tx, err := testutil.SignedTransaction(signer, 0, []byte("concurrent"), time.Now().UTC())
			if err != nil {
				done <- err
				return
			}
			done <- chain.StageTransactions(map[*core.Transaction]bool{tx: true})
		}(i, signer)
	}
	for i := 0; i < signerCount; i++ {
		if err := <-done; err != nil {
			t.Fatalf("stage goroutine failed: %v", err)
		}
	}

	if _, err := chain.MineBlock(ctx, minerAddr, time.Now().UTC()); err != nil {
		t.Fatalf("mine after concurrent staging: %v", err)
	}

	for _, signer := range signers {
		addr := core.AddressFromPublicKey(&signer.PublicKey)
		next, err := chain.GetNextTxNonce(addr)
		if err != nil {
			t.Fatalf("get next nonce: %v", err)
		}
		if next != 1 {
			t.Fatalf("expected signer %s to have nonce 1 after inclusion, got %d", addr, next)
		}
	}
}
