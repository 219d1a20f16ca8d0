package memstore_test

import (
	"testing"
	"time"

	"github.com/meridian-chain/chaincore/core"
	"github.com/meridian-chain/chaincore/store/memstore"
)

func TestMemStoreBlockAndTransactionRoundTrip(t *testing.T) {
	s := memstore.New()
	block := &core.Block{Index: 0, PreviousHash: core.ZeroHash, Hash: core.HashBytes([]byte("genesis"))}

	if err := s.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, ok, err := s.GetBlock(block.Hash)
	if err != nil || !ok || got.Hash != block.Hash {
		t.Fatalf("GetBlock round trip failed: ok=%v err=%v", ok, err)
	}

	deleted, err := s.DeleteBlock(block.Hash)
	if err != nil || !deleted {
		t.Fatalf("DeleteBlock: deleted=%v err=%v", deleted, err)
	}
	if _, ok, _ := s.GetBlock(block.Hash); ok {
		t.Fatalf("expected block gone after delete")
	}

	tx := &core.Transaction{Nonce: 1, Timestamp: time.Now().UTC()}
	if err := s.PutTransaction(tx); err != nil {
		t.Fatalf("PutTransaction: %v", err)
	}
	id, err := tx.ID()
	if err != nil {
		t.Fatalf("tx ID: %v", err)
	}
	gotTx, ok, err := s.GetTransaction(id)
	if err != nil || !ok || gotTx.Nonce != tx.Nonce {
		t.Fatalf("GetTransaction round trip failed: ok=%v err=%v", ok, err)
	}
}

func TestMemStoreIndexAndStateReferences(t *testing.T) {
	s := memstore.New()
	chain := core.ChainID("chain-a")
	addr := core.Address{0x01}

	b0 := &core.Block{Index: 0, Hash: core.HashBytes([]byte("b0")), Timestamp: time.Now().UTC()}
	b1 := &core.Block{Index: 1, Hash: core.HashBytes([]byte("b1")), Timestamp: time.Now().UTC()}

	if _, err := s.AppendIndex(chain, b0.Hash); err != nil {
		t.Fatalf("AppendIndex b0: %v", err)
	}
	if _, err := s.AppendIndex(chain, b1.Hash); err != nil {
		t.Fatalf("AppendIndex b1: %v", err)
	}
	count, err := s.CountIndex(chain)
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d (err=%v)", count, err)
	}

	tip, ok, err := s.IndexBlockHash(chain, -1)
	if err != nil || !ok || tip != b1.Hash {
		t.Fatalf("expected tip to resolve to b1, ok=%v err=%v", ok, err)
	}

	if err := s.StoreStateReference(chain, []core.Address{addr}, b0); err != nil {
		t.Fatalf("StoreStateReference b0: %v", err)
	}
	if err := s.StoreStateReference(chain, []core.Address{addr}, b1); err != nil {
		t.Fatalf("StoreStateReference b1: %v", err)
	}

	ref, ok, err := s.LookupStateReference(chain, addr, b0)
	if err != nil || !ok || ref.Hash != b0.Hash {
		t.Fatalf("expected lookup pinned at b0 to resolve to b0, ok=%v err=%v ref=%+v", ok, err, ref)
	}
	ref, ok, err = s.LookupStateReference(chain, addr, b1)
	if err != nil || !ok || ref.Hash != b1.Hash {
		t.Fatalf("expected lookup pinned at b1 to resolve to b1, ok=%v err=%v ref=%+v", ok, err, ref)
	}
}

func TestMemStoreTxNonces(t *testing.T) {
	s := memstore.New()
	chain := core.ChainID("chain-a")
	addr := core.Address{0x02}

	n, err := s.GetTxNonce(chain, addr)
	if err != nil || n != 0 {
		t.Fatalf("expected zero-value nonce for unseen address, got %d (err=%v)", n, err)
	}
	if err := s.IncreaseTxNonce(chain, addr, 3); err != nil {
		t.Fatalf("IncreaseTxNonce: %v", err)
	}
	n, err = s.GetTxNonce(chain, addr)
	if err != nil || n != 3 {
		t.Fatalf("expected nonce 3, got %d (err=%v)", n, err)
	}
}
