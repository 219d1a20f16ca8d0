package core

import (
	"context"
	"encoding/binary"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// Nonce is the arbitrary-length proof-of-work witness. Mine encodes it
// as a big-endian counter, but callers may supply any byte string a
// BlockPolicy chooses to validate.
type Nonce []byte

// Block is an immutable record of (index, previous hash, timestamp, miner,
// difficulty, nonce, transactions). Its Hash is the SHA-256 of a canonical
// serialization and must satisfy the Hashcash rule at Difficulty.
type Block struct {
	Index        uint64
	PreviousHash HashDigest // ZeroHash iff Index == 0
	Timestamp    time.Time
	Miner        Address // zero Address means "no miner" (e.g. genesis)
	Difficulty   uint64
	Nonce        Nonce
	Transactions []*Transaction
	Hash         HashDigest
}

type rlpBlockHeader struct {
	Index        uint64
	PreviousHash []byte
	Timestamp    uint64
	Miner        []byte
	Difficulty   uint64
	Nonce        []byte
	TxHashes     [][]byte
}

// sortedTxIDs returns txs' ids in ascending order: an order-independent
// commitment to the block's transaction set, used only for the hash and
// the Merkle root. It is deliberately distinct from b.Transactions' own
// order, which is the miner's chosen execution order and is what Append's
// per-signer nonce-contiguity check walks.
func sortedTxIDs(txs []*Transaction) ([]HashDigest, error) {
	ids := make([]HashDigest, len(txs))
	for i, tx := range txs {
		id, err := tx.ID()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytesLess(ids[i][:], ids[j][:])
	})
	return ids, nil
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (b *Block) headerForm(txHashes []HashDigest) *rlpBlockHeader {
	hashes := make([][]byte, len(txHashes))
	for i, h := range txHashes {
		hashes[i] = h.Bytes()
	}
	return &rlpBlockHeader{
		Index:        b.Index,
		PreviousHash: b.PreviousHash.Bytes(),
		Timestamp:    uint64(b.Timestamp.UTC().UnixNano()),
		Miner:        b.Miner.Bytes(),
		Difficulty:   b.Difficulty,
		Nonce:        b.Nonce,
		TxHashes:     hashes,
	}
}

// computeHash recomputes the block's hash from its canonical fields. It
// does not mutate b. The transaction-set commitment is hash-sorted so the
// block's hash doesn't depend on the order transactions were gathered in.
func (b *Block) computeHash() (HashDigest, error) {
	txIDs, err := sortedTxIDs(b.Transactions)
	if err != nil {
		return HashDigest{}, err
	}
	encoded, err := rlp.EncodeToBytes(b.headerForm(txIDs))
	if err != nil {
		return HashDigest{}, err
	}
	return HashBytes(encoded), nil
}

// TransactionsRoot builds a SHA-256 pairwise Merkle root over the block's
// hash-sorted transaction ids, giving external indexers a single
// commitment to verify instead of replaying the full hash-sort.
func (b *Block) TransactionsRoot() (HashDigest, error) {
	if len(b.Transactions) == 0 {
		return ZeroHash, nil
	}
	level, err := sortedTxIDs(b.Transactions)
	if err != nil {
		return HashDigest{}, err
	}
	for len(level) > 1 {
		next := make([]HashDigest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, HashBytes(append(level[i].Bytes(), level[i].Bytes()...)))
			} else {
				next = append(next, HashBytes(append(level[i].Bytes(), level[i+1].Bytes()...)))
			}
		}
		level = next
	}
	return level[0], nil
}

// Mine searches for a Nonce such that the resulting block's hash satisfies
// difficulty, polling ctx at every attempt so callers can cancel cleanly at
// a block boundary.
func Mine(ctx context.Context, index uint64, difficulty uint64, miner Address, previousHash HashDigest, timestamp time.Time, txs []*Transaction) (*Block, error) {
	b := &Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Miner:        miner,
		Difficulty:   difficulty,
		Transactions: txs,
	}
	var counter uint64
	nonce := make([]byte, 8)
	for {
		select {
		case <-ctx.Done():
			return nil, canceled(ctx.Err())
		default:
		}
		binary.BigEndian.PutUint64(nonce, counter)
		b.Nonce = append([]byte(nil), nonce...)
		hash, err := b.computeHash()
		if err != nil {
			return nil, err
		}
		if SatisfiesDifficulty(hash, difficulty) {
			b.Hash = hash
			return b, nil
		}
		counter++
	}
}

// Validate checks a block's structural and cryptographic invariants.
// previous is nil only for the genesis block. nonceGetter resolves
// the next expected nonce for a signer; it is
// consulted once per signer and advanced locally as transactions from that
// signer are seen, mirroring the "contiguous ascending run" rule.
func (b *Block) Validate(now time.Time, previous *Block, maxTimestampSkew time.Duration, nonceGetter func(Address) (int64, error)) error {
	if err := b.verifyStructureAndSignatures(now, previous, maxTimestampSkew); err != nil {
		return err
	}

	expected := map[Address]int64{}
	for _, tx := range b.Transactions {
		next, ok := expected[tx.Signer]
		var err error
		if !ok {
			next, err = nonceGetter(tx.Signer)
			if err != nil {
				return wrapStoreErr("nonceGetter", err)
			}
		}
		if int64(tx.Nonce) != next {
			return newInvalidTxNonce(tx.Signer, next, int64(tx.Nonce))
		}
		expected[tx.Signer] = next + 1
	}
	return nil
}

// verifyStructureAndSignatures checks everything Validate checks except
// per-signer nonce contiguity against external (Store) state: hash and
// difficulty self-consistency, index/previous-hash chaining, timestamp
// bounds, and every transaction's signature.
func (b *Block) verifyStructureAndSignatures(now time.Time, previous *Block, maxTimestampSkew time.Duration) error {
	hash, err := b.computeHash()
	if err != nil {
		return newBlockError(InvalidHash, "recompute hash: %v", err)
	}
	if hash != b.Hash {
		return newBlockError(InvalidHash, "declared hash does not match recomputed hash")
	}
	if !SatisfiesDifficulty(b.Hash, b.Difficulty) {
		return newBlockError(InvalidDifficulty, "hash does not satisfy difficulty %d", b.Difficulty)
	}
	if previous == nil {
		if b.Index != 0 {
			return newBlockError(InvalidIndex, "genesis block must have index 0, got %d", b.Index)
		}
		if !b.PreviousHash.IsZero() {
			return newBlockError(InvalidPreviousHash, "genesis block must have a zero previous hash")
		}
	} else {
		if b.Index != previous.Index+1 {
			return newBlockError(InvalidIndex, "expected index %d, got %d", previous.Index+1, b.Index)
		}
		if b.PreviousHash != previous.Hash {
			return newBlockError(InvalidPreviousHash, "previous hash does not match tip")
		}
		if b.Timestamp.Before(previous.Timestamp) {
			return newBlockError(InvalidTimestamp, "timestamp %s precedes previous block's %s", b.Timestamp, previous.Timestamp)
		}
	}
	if maxTimestampSkew > 0 && b.Timestamp.After(now.Add(maxTimestampSkew)) {
		return newBlockError(InvalidTimestamp, "timestamp %s is more than %s ahead of now", b.Timestamp, maxTimestampSkew)
	}
	for _, tx := range b.Transactions {
		if err := tx.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate applies each transaction's actions in canonical block order,
// threading the output delta of action N into action N+1 as
// ActionContext.PreviousStates, and seeding each action's deterministic
// random stream from b.Hash XOR the action's index within the block. If
// blockAction is non-nil it is evaluated last, with signer set to b.Miner.
func (b *Block) Evaluate(baseline AccountStateDelta, blockAction Action) ([]ActionEvaluation, error) {
	evaluations := make([]ActionEvaluation, 0)
	acc := baseline
	actionIndex := 0
	for _, tx := range b.Transactions {
		for _, action := range tx.Actions {
			ctx := &ActionContext{
				Signer:         tx.Signer,
				Miner:          b.Miner,
				BlockIndex:     b.Index,
				Rehearsal:      false,
				PreviousStates: acc,
				Random:         newActionRandom(b.Hash, actionIndex),
			}
			out, err := action.Execute(ctx)
			eval := ActionEvaluation{Action: action, Ctx: ctx, InputDelta: acc, Err: err}
			if err != nil {
				eval.OutputDelta = acc
			} else {
				eval.OutputDelta = out
				acc = out
			}
			evaluations = append(evaluations, eval)
			actionIndex++
		}
	}
	if blockAction != nil {
		ctx := &ActionContext{
			Signer:         b.Miner,
			Miner:          b.Miner,
			BlockIndex:     b.Index,
			Rehearsal:      false,
			PreviousStates: acc,
			Random:         newActionRandom(b.Hash, actionIndex),
		}
		out, err := blockAction.Execute(ctx)
		eval := ActionEvaluation{Action: blockAction, Ctx: ctx, InputDelta: acc, Err: err}
		if err != nil {
			eval.OutputDelta = acc
		} else {
			eval.OutputDelta = out
			acc = out
		}
		evaluations = append(evaluations, eval)
	}
	return evaluations, nil
}
