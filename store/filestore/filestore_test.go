package filestore_test

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/meridian-chain/chaincore/core"
	"github.com/meridian-chain/chaincore/internal/testutil"
	"github.com/meridian-chain/chaincore/store/filestore"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestFileStorePutGetRoundTripsActions(t *testing.T) {
	dir := t.TempDir()
	fs, err := filestore.Open(dir, 0, testutil.SetValueActionCodec{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	signer := newKey(t)
	tx, err := testutil.SignedTransaction(signer, 0, []byte("payload"), time.Now().UTC())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := fs.PutTransaction(tx); err != nil {
		t.Fatalf("PutTransaction: %v", err)
	}

	block := &core.Block{
		Index:        0,
		PreviousHash: core.ZeroHash,
		Timestamp:    time.Now().UTC(),
		Transactions: []*core.Transaction{tx},
		Hash:         core.HashBytes([]byte("block-0")),
	}
	if err := fs.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: replaying the WAL from scratch (no snapshot was ever taken)
	// must reproduce both the block and the transaction's decoded action.
	reopened, err := filestore.Open(dir, 0, testutil.SetValueActionCodec{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	gotBlock, ok, err := reopened.GetBlock(block.Hash)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if !ok || len(gotBlock.Transactions) != 1 {
		t.Fatalf("expected block with 1 transaction after replay, got ok=%v block=%+v", ok, gotBlock)
	}

	id, err := tx.ID()
	if err != nil {
		t.Fatalf("tx ID: %v", err)
	}
	gotTx, ok, err := reopened.GetTransaction(id)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !ok || len(gotTx.Actions) != 1 {
		t.Fatalf("expected transaction with 1 action after replay, got ok=%v", ok)
	}
	action, ok := gotTx.Actions[0].(*testutil.SetValueAction)
	if !ok {
		t.Fatalf("expected *testutil.SetValueAction, got %T", gotTx.Actions[0])
	}
	if string(action.Value) != "payload" {
		t.Fatalf("expected decoded action value %q, got %q", "payload", action.Value)
	}
}

func TestFileStoreSnapshotAndArchive(t *testing.T) {
	dir := t.TempDir()
	fs, err := filestore.Open(dir, 0, testutil.SetValueActionCodec{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	block := &core.Block{Index: 0, PreviousHash: core.ZeroHash, Hash: core.HashBytes([]byte("b"))}
	if err := fs.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := fs.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "chain.snap")); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "chain.archive.gz")); err != nil {
		t.Fatalf("expected archive file to exist: %v", err)
	}

	reopened, err := filestore.Open(dir, 0, testutil.SetValueActionCodec{})
	if err != nil {
		t.Fatalf("reopen from snapshot: %v", err)
	}
	defer reopened.Close()
	_, ok, err := reopened.GetBlock(block.Hash)
	if err != nil || !ok {
		t.Fatalf("expected block to survive snapshot+reopen, ok=%v err=%v", ok, err)
	}
}
