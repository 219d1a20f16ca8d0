package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridian-chain/chaincore/core"
)

func TestForkTrackerRecoversLongestFork(t *testing.T) {
	chain, _, _ := newTestChain(t)
	miner := newTestKey(t)
	minerAddr := core.AddressFromPublicKey(&miner.PublicKey)
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

	tracker := core.NewForkTracker(logrus.NewEntry(logrus.New()))
	tracker.Register(forked)

	recovered, err := tracker.RecoverLongestFork(ctx, chain)
	if err != nil {
		t.Fatalf("RecoverLongestFork (equal length): %v", err)
	}
	if recovered {
		t.Fatalf("expected no recovery while fork is not strictly longer")
	}

	var forkedTip *core.Block
	for i := 0; i < 2; i++ {
		b, err := forked.MineBlock(ctx, minerAddr, now.Add(time.Duration(i+1)*time.Second))
		if err != nil {
			t.Fatalf("mine on fork: %v", err)
		}
		forkedTip = b
	}

	forks, err := tracker.ListForks()
	if err != nil {
		t.Fatalf("ListForks: %v", err)
	}
	if len(forks) != 1 || forks[0].Length != 3 {
		t.Fatalf("expected one tracked fork of length 3, got %+v", forks)
	}

	recovered, err = tracker.RecoverLongestFork(ctx, chain)
	if err != nil {
		t.Fatalf("RecoverLongestFork: %v", err)
	}
	if !recovered {
		t.Fatalf("expected recovery onto the now-longer fork")
	}

	tip, ok := chain.Tip()
	if !ok || tip.Hash != forkedTip.Hash {
		t.Fatalf("expected canonical tip to match fork tip %s, got %+v", forkedTip.Hash, tip)
	}

	forks, err = tracker.ListForks()
	if err != nil {
		t.Fatalf("ListForks after recovery: %v", err)
	}
	if len(forks) != 0 {
		t.Fatalf("expected the absorbed fork to be forgotten, got %+v", forks)
	}
}
