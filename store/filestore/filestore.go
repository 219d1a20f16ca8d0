// Package filestore is a durable core.Store backed by a write-ahead log of
// mutations plus periodic JSON snapshots, with old WAL segments archived to
// a gzip file rather than simply discarded. It favors simplicity and
// auditability over throughput: every mutation is fsynced before the call
// returns.
package filestore

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meridian-chain/chaincore/core"
)

// txRecord and blockRecord are the wire shapes actually persisted. Block and
// Transaction carry core.Action interface values (Transaction.Actions),
// which plain encoding/json cannot round-trip without knowing concrete
// types, so actions are reduced to their PlainValue() bytes and restored
// through the store's ActionCodec, the same contract BlockChain itself
// relies on for action semantics to stay opaque to the core.
type txRecord struct {
	Nonce            uint64
	Signer           core.Address
	PublicKey        []byte
	UpdatedAddresses []core.Address
	Timestamp        time.Time
	ActionPayloads   [][]byte
	Signature        []byte
}

func toTxRecord(tx *core.Transaction) (*txRecord, error) {
	payloads := make([][]byte, len(tx.Actions))
	for i, a := range tx.Actions {
		pv, err := a.PlainValue()
		if err != nil {
			return nil, err
		}
		payloads[i] = pv
	}
	return &txRecord{
		Nonce:            tx.Nonce,
		Signer:           tx.Signer,
		PublicKey:        tx.PublicKey,
		UpdatedAddresses: tx.UpdatedAddresses,
		Timestamp:        tx.Timestamp,
		ActionPayloads:   payloads,
		Signature:        tx.Signature,
	}, nil
}

func (fs *FileStore) fromTxRecord(r *txRecord) (*core.Transaction, error) {
	actions := make([]core.Action, len(r.ActionPayloads))
	for i, p := range r.ActionPayloads {
		a, err := fs.codec.Decode(p)
		if err != nil {
			return nil, err
		}
		actions[i] = a
	}
	return &core.Transaction{
		Nonce:            r.Nonce,
		Signer:           r.Signer,
		PublicKey:        r.PublicKey,
		UpdatedAddresses: r.UpdatedAddresses,
		Timestamp:        r.Timestamp,
		Actions:          actions,
		Signature:        r.Signature,
	}, nil
}

type blockRecord struct {
	Index        uint64
	PreviousHash core.HashDigest
	Timestamp    time.Time
	Miner        core.Address
	Difficulty   uint64
	Nonce        core.Nonce
	Transactions []*txRecord
	Hash         core.HashDigest
}

func toBlockRecord(b *core.Block) (*blockRecord, error) {
	txs := make([]*txRecord, len(b.Transactions))
	for i, tx := range b.Transactions {
		r, err := toTxRecord(tx)
		if err != nil {
			return nil, err
		}
		txs[i] = r
	}
	return &blockRecord{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Miner:        b.Miner,
		Difficulty:   b.Difficulty,
		Nonce:        b.Nonce,
		Transactions: txs,
		Hash:         b.Hash,
	}, nil
}

func (fs *FileStore) fromBlockRecord(r *blockRecord) (*core.Block, error) {
	txs := make([]*core.Transaction, len(r.Transactions))
	for i, tr := range r.Transactions {
		tx, err := fs.fromTxRecord(tr)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &core.Block{
		Index:        r.Index,
		PreviousHash: r.PreviousHash,
		Timestamp:    r.Timestamp,
		Miner:        r.Miner,
		Difficulty:   r.Difficulty,
		Nonce:        r.Nonce,
		Transactions: txs,
		Hash:         r.Hash,
	}, nil
}

type snapshotData struct {
	BlockByHash  map[core.HashDigest]*blockRecord
	TxByID       map[core.HashDigest]*txRecord
	BlockStates  map[core.HashDigest]map[core.Address][]byte
	Staged       map[core.HashDigest]bool
	Canonical    core.ChainID
	HasCanonical bool
	Index        map[core.ChainID][]core.HashDigest
	StateRefs    map[core.ChainID]map[core.Address][]core.StateRef
	Nonces       map[core.ChainID]map[core.Address]int64
}

func newSnapshotData() snapshotData {
	return snapshotData{
		BlockByHash: make(map[core.HashDigest]*blockRecord),
		TxByID:      make(map[core.HashDigest]*txRecord),
		BlockStates: make(map[core.HashDigest]map[core.Address][]byte),
		Staged:      make(map[core.HashDigest]bool),
		Index:       make(map[core.ChainID][]core.HashDigest),
		StateRefs:   make(map[core.ChainID]map[core.Address][]core.StateRef),
		Nonces:      make(map[core.ChainID]map[core.Address]int64),
	}
}

// walRecord is one WAL line: an operation name plus its JSON payload.
type walRecord struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// FileStore implements core.Store with a WAL-plus-snapshot durability
// model. Every exported method acquires mu for its whole duration: none of
// chaincore's call sites hold this store's lock across a call into
// BlockChain, so there is no risk of recursive locking.
type FileStore struct {
	mu sync.Mutex

	dir              string
	snapshotPath     string
	archivePath      string
	walPath          string
	walFile          *os.File
	snapshotInterval int
	opsSinceSnapshot int
	codec            core.ActionCodec

	data snapshotData
}

// Open loads dir's snapshot (if any), replays its WAL on top, and returns a
// ready FileStore. snapshotInterval is the number of mutating operations
// between automatic snapshot-and-archive cycles; 0 disables automatic
// snapshotting (Snapshot can still be called directly). codec reconstructs
// Actions from the plain bytes persisted for each transaction.
func Open(dir string, snapshotInterval int, codec core.ActionCodec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: mkdir: %w", err)
	}
	fs := &FileStore{
		dir:              dir,
		snapshotPath:     filepath.Join(dir, "chain.snap"),
		archivePath:      filepath.Join(dir, "chain.archive.gz"),
		walPath:          filepath.Join(dir, "chain.wal"),
		snapshotInterval: snapshotInterval,
		codec:            codec,
		data:             newSnapshotData(),
	}

	if f, err := os.Open(fs.snapshotPath); err == nil {
		err := json.NewDecoder(f).Decode(&fs.data)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("filestore: decode snapshot: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("filestore: open snapshot: %w", err)
	}

	wal, err := os.OpenFile(fs.walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("filestore: open WAL: %w", err)
	}
	fs.walFile = wal

	scanner := bufio.NewScanner(wal)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec walRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			wal.Close()
			return nil, fmt.Errorf("filestore: WAL unmarshal: %w", err)
		}
		if err := fs.apply(rec); err != nil {
			wal.Close()
			return nil, fmt.Errorf("filestore: WAL replay: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		wal.Close()
		return nil, fmt.Errorf("filestore: WAL scan: %w", err)
	}
	return fs, nil
}

// Close releases the underlying WAL file handle.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.walFile.Close()
}

func (fs *FileStore) appendWAL(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	rec := walRecord{Op: op, Data: data}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fs.walFile.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := fs.walFile.Sync(); err != nil {
		return err
	}
	fs.opsSinceSnapshot++
	if fs.snapshotInterval > 0 && fs.opsSinceSnapshot >= fs.snapshotInterval {
		return fs.snapshot()
	}
	return nil
}

// Snapshot forces a JSON snapshot of the current state and archives the WAL
// segment it replaces, ready to be called on a schedule by a caller that
// wants tighter control than snapshotInterval gives.
func (fs *FileStore) Snapshot() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.snapshot()
}

func (fs *FileStore) snapshot() error {
	tmp := fs.snapshotPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("filestore: create snapshot: %w", err)
	}
	if err := json.NewEncoder(f).Encode(&fs.data); err != nil {
		f.Close()
		return fmt.Errorf("filestore: write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.snapshotPath); err != nil {
		return fmt.Errorf("filestore: install snapshot: %w", err)
	}

	if err := fs.archiveWAL(); err != nil {
		return err
	}

	if err := fs.walFile.Close(); err != nil {
		return err
	}
	wal, err := os.Create(fs.walPath)
	if err != nil {
		return fmt.Errorf("filestore: recreate WAL: %w", err)
	}
	fs.walFile = wal
	fs.opsSinceSnapshot = 0
	return nil
}

// archiveWAL gzip-appends the WAL segment about to be truncated onto
// archivePath, so a snapshot cycle loses no history even though the live
// WAL shrinks back to empty.
func (fs *FileStore) archiveWAL() error {
	if err := fs.walFile.Sync(); err != nil {
		return err
	}
	r, err := os.Open(fs.walPath)
	if err != nil {
		return fmt.Errorf("filestore: reopen WAL for archive: %w", err)
	}
	defer r.Close()

	out, err := os.OpenFile(fs.archivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("filestore: open archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, r); err != nil {
		return fmt.Errorf("filestore: archive WAL: %w", err)
	}
	return gz.Close()
}

// apply replays a single WAL record against fs.data without re-appending to
// the WAL (used during Open's replay).
func (fs *FileStore) apply(rec walRecord) error {
	switch rec.Op {
	case "PutBlock":
		var p struct{ Block *blockRecord }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.BlockByHash[p.Block.Hash] = p.Block
	case "DeleteBlock":
		var p struct{ Hash core.HashDigest }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		delete(fs.data.BlockByHash, p.Hash)
	case "PutTransaction":
		var p struct {
			ID core.HashDigest
			Tx *txRecord
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.TxByID[p.ID] = p.Tx
	case "DeleteTransaction":
		var p struct{ ID core.HashDigest }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		delete(fs.data.TxByID, p.ID)
	case "SetBlockStates":
		var p struct {
			Hash  core.HashDigest
			Delta map[core.Address][]byte
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.BlockStates[p.Hash] = p.Delta
	case "StageTransactionIDs":
		var p struct{ IDs map[core.HashDigest]bool }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		for id, b := range p.IDs {
			fs.data.Staged[id] = b
		}
	case "UnstageTransactionIDs":
		var p struct{ IDs []core.HashDigest }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		for _, id := range p.IDs {
			delete(fs.data.Staged, id)
		}
	case "SetCanonicalChainID":
		var p struct{ ID core.ChainID }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.Canonical = p.ID
		fs.data.HasCanonical = true
	case "AppendIndex":
		var p struct {
			Chain core.ChainID
			Hash  core.HashDigest
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.Index[p.Chain] = append(fs.data.Index[p.Chain], p.Hash)
	case "StoreStateReference":
		var p struct {
			Chain core.ChainID
			Addrs []core.Address
			Ref   core.StateRef
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		m, ok := fs.data.StateRefs[p.Chain]
		if !ok {
			m = make(map[core.Address][]core.StateRef)
			fs.data.StateRefs[p.Chain] = m
		}
		for _, addr := range p.Addrs {
			m[addr] = append(m[addr], p.Ref)
		}
	case "ForkStateReferences":
		var p struct {
			Dst   core.ChainID
			Table map[core.Address][]core.StateRef
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		fs.data.StateRefs[p.Dst] = p.Table
	case "IncreaseTxNonce":
		var p struct {
			Chain core.ChainID
			Addr  core.Address
			Delta int64
		}
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		m, ok := fs.data.Nonces[p.Chain]
		if !ok {
			m = make(map[core.Address]int64)
			fs.data.Nonces[p.Chain] = m
		}
		m[p.Addr] += p.Delta
	case "DeleteChainID":
		var p struct{ Chain core.ChainID }
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return err
		}
		delete(fs.data.Index, p.Chain)
		delete(fs.data.StateRefs, p.Chain)
		delete(fs.data.Nonces, p.Chain)
	default:
		return fmt.Errorf("unknown WAL op %q", rec.Op)
	}
	return nil
}

func (fs *FileStore) PutBlock(b *core.Block) error {
	rec, err := toBlockRecord(b)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.BlockByHash[b.Hash] = rec
	return fs.appendWAL("PutBlock", struct{ Block *blockRecord }{rec})
}

func (fs *FileStore) GetBlock(hash core.HashDigest) (*core.Block, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.data.BlockByHash[hash]
	if !ok {
		return nil, false, nil
	}
	b, err := fs.fromBlockRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (fs *FileStore) DeleteBlock(hash core.HashDigest) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.data.BlockByHash[hash]
	delete(fs.data.BlockByHash, hash)
	if err := fs.appendWAL("DeleteBlock", struct{ Hash core.HashDigest }{hash}); err != nil {
		return ok, err
	}
	return ok, nil
}

func (fs *FileStore) IterateBlockHashes() ([]core.HashDigest, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]core.HashDigest, 0, len(fs.data.BlockByHash))
	for h := range fs.data.BlockByHash {
		out = append(out, h)
	}
	return out, nil
}

func (fs *FileStore) PutTransaction(tx *core.Transaction) error {
	id, err := tx.ID()
	if err != nil {
		return err
	}
	rec, err := toTxRecord(tx)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.TxByID[id] = rec
	return fs.appendWAL("PutTransaction", struct {
		ID core.HashDigest
		Tx *txRecord
	}{id, rec})
}

func (fs *FileStore) GetTransaction(id core.HashDigest) (*core.Transaction, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.data.TxByID[id]
	if !ok {
		return nil, false, nil
	}
	tx, err := fs.fromTxRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

func (fs *FileStore) DeleteTransaction(id core.HashDigest) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.data.TxByID[id]
	delete(fs.data.TxByID, id)
	if err := fs.appendWAL("DeleteTransaction", struct{ ID core.HashDigest }{id}); err != nil {
		return ok, err
	}
	return ok, nil
}

func (fs *FileStore) SetBlockStates(hash core.HashDigest, delta map[core.Address][]byte) error {
	clone := make(map[core.Address][]byte, len(delta))
	for k, v := range delta {
		clone[k] = append([]byte(nil), v...)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.BlockStates[hash] = clone
	return fs.appendWAL("SetBlockStates", struct {
		Hash  core.HashDigest
		Delta map[core.Address][]byte
	}{hash, clone})
}

func (fs *FileStore) GetBlockStates(hash core.HashDigest) (map[core.Address][]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delta, ok := fs.data.BlockStates[hash]
	if !ok {
		return nil, false, nil
	}
	clone := make(map[core.Address][]byte, len(delta))
	for k, v := range delta {
		clone[k] = append([]byte(nil), v...)
	}
	return clone, true, nil
}

func (fs *FileStore) StageTransactionIDs(ids map[core.HashDigest]bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for id, b := range ids {
		fs.data.Staged[id] = b
	}
	return fs.appendWAL("StageTransactionIDs", struct{ IDs map[core.HashDigest]bool }{ids})
}

func (fs *FileStore) UnstageTransactionIDs(ids []core.HashDigest) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, id := range ids {
		delete(fs.data.Staged, id)
	}
	return fs.appendWAL("UnstageTransactionIDs", struct{ IDs []core.HashDigest }{ids})
}

func (fs *FileStore) IterateStaged(toBroadcastOnly bool) ([]core.HashDigest, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]core.HashDigest, 0, len(fs.data.Staged))
	for id, broadcast := range fs.data.Staged {
		if toBroadcastOnly && !broadcast {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (fs *FileStore) GetCanonicalChainID() (core.ChainID, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.data.Canonical, fs.data.HasCanonical, nil
}

func (fs *FileStore) SetCanonicalChainID(id core.ChainID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.Canonical = id
	fs.data.HasCanonical = true
	return fs.appendWAL("SetCanonicalChainID", struct{ ID core.ChainID }{id})
}

func (fs *FileStore) CountIndex(chain core.ChainID) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return uint64(len(fs.data.Index[chain])), nil
}

func (fs *FileStore) IndexBlockHash(chain core.ChainID, i int64) (core.HashDigest, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	list := fs.data.Index[chain]
	pos := i
	if pos < 0 {
		pos = int64(len(list)) + pos
	}
	if pos < 0 || pos >= int64(len(list)) {
		return core.HashDigest{}, false, nil
	}
	return list[pos], true, nil
}

func (fs *FileStore) AppendIndex(chain core.ChainID, hash core.HashDigest) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.Index[chain] = append(fs.data.Index[chain], hash)
	if err := fs.appendWAL("AppendIndex", struct {
		Chain core.ChainID
		Hash  core.HashDigest
	}{chain, hash}); err != nil {
		return 0, err
	}
	return uint64(len(fs.data.Index[chain])), nil
}

func (fs *FileStore) IterateIndex(chain core.ChainID, start int64, count int64) ([]core.HashDigest, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	list := fs.data.Index[chain]
	if start < 0 || start > int64(len(list)) {
		return nil, fmt.Errorf("filestore: start %d out of range (len %d)", start, len(list))
	}
	end := int64(len(list))
	if count >= 0 && start+count < end {
		end = start + count
	}
	out := make([]core.HashDigest, end-start)
	copy(out, list[start:end])
	return out, nil
}

func (fs *FileStore) StoreStateReference(chain core.ChainID, addrs []core.Address, b *core.Block) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, ok := fs.data.StateRefs[chain]
	if !ok {
		m = make(map[core.Address][]core.StateRef)
		fs.data.StateRefs[chain] = m
	}
	ref := core.StateRef{Hash: b.Hash, Index: b.Index}
	for _, addr := range addrs {
		m[addr] = append(m[addr], ref)
	}
	return fs.appendWAL("StoreStateReference", struct {
		Chain core.ChainID
		Addrs []core.Address
		Ref   core.StateRef
	}{chain, addrs, ref})
}

func (fs *FileStore) LookupStateReference(chain core.ChainID, addr core.Address, pivot *core.Block) (core.StateRef, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	refs := fs.data.StateRefs[chain][addr]
	for i := len(refs) - 1; i >= 0; i-- {
		if refs[i].Index <= pivot.Index {
			return refs[i], true, nil
		}
	}
	return core.StateRef{}, false, nil
}

func (fs *FileStore) IterateStateReferences(chain core.ChainID, addr core.Address, fromIndex, toIndex int64, limit int) ([]core.StateRef, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	refs := fs.data.StateRefs[chain][addr]
	out := make([]core.StateRef, 0, len(refs))
	for i := len(refs) - 1; i >= 0; i-- {
		idx := int64(refs[i].Index)
		if idx < fromIndex || idx > toIndex {
			continue
		}
		out = append(out, refs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (fs *FileStore) ListAllStateReferences(chain core.ChainID, onlyAfter, ignoreAfter *uint64) (map[core.Address][]core.HashDigest, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[core.Address][]core.HashDigest)
	for addr, refs := range fs.data.StateRefs[chain] {
		var hashes []core.HashDigest
		for _, r := range refs {
			if onlyAfter != nil && r.Index <= *onlyAfter {
				continue
			}
			if ignoreAfter != nil && r.Index > *ignoreAfter {
				continue
			}
			hashes = append(hashes, r.Hash)
		}
		if len(hashes) > 0 {
			out[addr] = hashes
		}
	}
	return out, nil
}

func (fs *FileStore) ForkStateReferences(src, dst core.ChainID, branch *core.Block, strip []core.Address) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	srcRefs := fs.data.StateRefs[src]
	dstRefs := make(map[core.Address][]core.StateRef, len(srcRefs))
	for addr, refs := range srcRefs {
		kept := make([]core.StateRef, 0, len(refs))
		for _, r := range refs {
			if r.Index <= branch.Index {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			dstRefs[addr] = kept
		}
	}
	fs.data.StateRefs[dst] = dstRefs
	return fs.appendWAL("ForkStateReferences", struct {
		Dst   core.ChainID
		Table map[core.Address][]core.StateRef
	}{dst, dstRefs})
}

func (fs *FileStore) GetTxNonce(chain core.ChainID, addr core.Address) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.data.Nonces[chain][addr], nil
}

func (fs *FileStore) IncreaseTxNonce(chain core.ChainID, addr core.Address, delta int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, ok := fs.data.Nonces[chain]
	if !ok {
		m = make(map[core.Address]int64)
		fs.data.Nonces[chain] = m
	}
	m[addr] += delta
	return fs.appendWAL("IncreaseTxNonce", struct {
		Chain core.ChainID
		Addr  core.Address
		Delta int64
	}{chain, addr, delta})
}

func (fs *FileStore) ListTxNonces(chain core.ChainID) (map[core.Address]int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[core.Address]int64, len(fs.data.Nonces[chain]))
	for addr, n := range fs.data.Nonces[chain] {
		out[addr] = n
	}
	return out, nil
}

func (fs *FileStore) DeleteChainID(chain core.ChainID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.data.Index, chain)
	delete(fs.data.StateRefs, chain)
	delete(fs.data.Nonces, chain)
	return fs.appendWAL("DeleteChainID", struct{ Chain core.ChainID }{chain})
}

var _ core.Store = (*FileStore)(nil)
