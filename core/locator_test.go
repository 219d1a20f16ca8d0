package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/meridian-chain/chaincore/core"
)

func TestBlockLocatorEndsAtGenesis(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	ctx := context.Background()
	now := time.Now().UTC()

	var genesis, tip *core.Block
	for i := 0; i < 3; i++ {
		b, err := chain.MineBlock(ctx, minerAddr, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("mine block %d: %v", i, err)
		}
		if i == 0 {
			genesis = b
		}
		tip = b
	}

	locator, err := chain.BlockLocator(10)
	if err != nil {
		t.Fatalf("BlockLocator: %v", err)
	}
	if len(locator) == 0 {
		t.Fatalf("expected non-empty locator")
	}
	if locator[0] != tip.Hash {
		t.Fatalf("expected locator to start at tip %s, got %s", tip.Hash, locator[0])
	}
	if locator[len(locator)-1] != genesis.Hash {
		t.Fatalf("expected locator to end at genesis %s, got %s", genesis.Hash, locator[len(locator)-1])
	}
}

func TestFindBranchPointAndNextHashes(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
	ctx := context.Background()
	now := time.Now().UTC()

	genesis, err := chain.MineBlock(ctx, minerAddr, now)
	if err != nil {
		t.Fatalf("mine genesis: %v", err)
	}
	second, err := chain.MineBlock(ctx, minerAddr, now.Add(time.Second))
	if err != nil {
		t.Fatalf("mine second: %v", err)
	}
	third, err := chain.MineBlock(ctx, minerAddr, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("mine third: %v", err)
	}
	_ = genesis

	forked, err := chain.Fork(second.Hash)
	if err != nil {
		t.Fatalf("fork at second: %v", err)
	}
	forkedThird, err := forked.MineBlock(ctx, minerAddr, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("mine on fork: %v", err)
	}
	if forkedThird.Hash == third.Hash {
		t.Fatalf("expected the forked third block to diverge from the original")
	}

	locator, err := chain.BlockLocator(10)
	if err != nil {
		t.Fatalf("BlockLocator: %v", err)
	}

	branch, err := forked.FindBranchPoint(locator)
	if err != nil {
		t.Fatalf("FindBranchPoint: %v", err)
	}
	if branch != second.Hash {
		t.Fatalf("expected branch point %s (second block), got %s", second.Hash, branch)
	}

	next, err := forked.FindNextHashes(locator, nil, 5)
	if err != nil {
		t.Fatalf("FindNextHashes: %v", err)
	}
	if len(next) != 2 {
		t.Fatalf("expected 2 hashes from branch to forked tip, got %d: %v", len(next), next)
	}
	if next[0] != second.Hash {
		t.Fatalf("expected first next hash to be the branch point, got %s", next[0])
	}
	if next[1] != forkedThird.Hash {
		t.Fatalf("expected last next hash to be the forked tip, got %s", next[1])
	}
}
