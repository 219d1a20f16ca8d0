package core

// ChainID identifies a logical BlockChain (a linear sequence of block
// hashes plus its per-chain namespaces) within a Store. Fork allocates a
// fresh one; Swap retires the loser's.
type ChainID string

// StateRef is a single state-reference entry: the block in which an
// address's state was last mutated at or before some pivot block.
type StateRef struct {
	Hash  HashDigest
	Index uint64
}

// Store is the persistence contract the BlockChain engine is built
// against. It is a collection of global (not chain-scoped) namespaces plus
// per-chain namespaces. Implementations must make each operation durable on
// return, and missing-key lookups must report "not found" via the second
// return value rather than an error. store/memstore and store/filestore
// provide reference implementations.
type Store interface {
	// --- global namespaces ---

	PutBlock(b *Block) error
	GetBlock(hash HashDigest) (*Block, bool, error)
	DeleteBlock(hash HashDigest) (bool, error)
	IterateBlockHashes() ([]HashDigest, error)

	PutTransaction(tx *Transaction) error
	GetTransaction(id HashDigest) (*Transaction, bool, error)
	DeleteTransaction(id HashDigest) (bool, error)

	SetBlockStates(hash HashDigest, delta map[Address][]byte) error
	GetBlockStates(hash HashDigest) (map[Address][]byte, bool, error)

	// StageTransactionIDs marks each id with its "should broadcast" flag.
	StageTransactionIDs(ids map[HashDigest]bool) error
	UnstageTransactionIDs(ids []HashDigest) error
	// IterateStaged returns staged ids, optionally filtered to only those
	// flagged for broadcast.
	IterateStaged(toBroadcastOnly bool) ([]HashDigest, error)

	GetCanonicalChainID() (ChainID, bool, error)
	SetCanonicalChainID(id ChainID) error

	// --- per-chain namespaces ---

	CountIndex(chain ChainID) (uint64, error)
	// IndexBlockHash looks up the block hash at position i. Negative i
	// counts from the tip (-1 = tip).
	IndexBlockHash(chain ChainID, i int64) (HashDigest, bool, error)
	// AppendIndex appends hash and returns the new index length.
	AppendIndex(chain ChainID, hash HashDigest) (uint64, error)
	// IterateIndex returns up to count hashes starting at start (0-based,
	// ascending). count<0 means "to the end".
	IterateIndex(chain ChainID, start int64, count int64) ([]HashDigest, error)

	// StoreStateReference appends (block.Hash, block.Index) to each
	// address's reference list.
	StoreStateReference(chain ChainID, addrs []Address, b *Block) error
	// LookupStateReference returns the greatest reference for addr whose
	// index is <= pivot.Index.
	LookupStateReference(chain ChainID, addr Address, pivot *Block) (StateRef, bool, error)
	// IterateStateReferences returns references for addr in descending
	// index order, bounded by [fromIndex, toIndex] and limit (limit<=0
	// means unbounded).
	IterateStateReferences(chain ChainID, addr Address, fromIndex, toIndex int64, limit int) ([]StateRef, error)
	// ListAllStateReferences is used by state-sync: returns every address's
	// full reference-hash list, optionally bounded by index.
	ListAllStateReferences(chain ChainID, onlyAfter, ignoreAfter *uint64) (map[Address][]HashDigest, error)
	// ForkStateReferences copies src's reference lists into dst up to and
	// including branch.Index, except for strip addresses: those are copied
	// but truncated at branch.Index (references strictly after are dropped).
	ForkStateReferences(src, dst ChainID, branch *Block, strip []Address) error

	GetTxNonce(chain ChainID, addr Address) (int64, error)
	IncreaseTxNonce(chain ChainID, addr Address, delta int64) error
	ListTxNonces(chain ChainID) (map[Address]int64, error)

	// DeleteChainID removes every per-chain namespace for chain.
	DeleteChainID(chain ChainID) error
}
