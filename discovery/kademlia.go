// Package discovery implements a minimal in-memory Kademlia-style peer
// table used by a chaincore node to locate other nodes and publish small
// advertisements (e.g. which chain ids it serves). It does not itself speak
// any wire protocol; it is the bookkeeping a real transport would consult.
package discovery

import (
	"crypto/sha256"
	"math/big"
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p-core/peer"
)

// NodeID identifies a peer. It is shaped after libp2p's peer.ID so this
// table can sit behind a real libp2p host later without changing its public
// surface.
type NodeID = peer.ID

const bucketCount = 160

func hash160(data []byte) [20]byte {
	sum := sha256.Sum256(data)
	var h [20]byte
	copy(h[:], sum[:20])
	return h
}

// Table is a minimal in-memory Kademlia DHT: it buckets known peers by XOR
// distance from the local node and stores small key/value advertisements.
type Table struct {
	self    NodeID
	mu      sync.RWMutex
	buckets [bucketCount][]NodeID
	values  map[[20]byte][]byte
}

// NewTable creates a peer table bound to the local node's id.
func NewTable(self NodeID) *Table {
	return &Table{self: self, values: make(map[[20]byte][]byte)}
}

// AddPeer inserts a peer into the appropriate distance bucket, ignoring
// the local id and duplicates.
func (t *Table) AddPeer(id NodeID) {
	if id == t.self {
		return
	}
	idx := t.bucketIndex(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.buckets[idx] {
		if p == id {
			return
		}
	}
	t.buckets[idx] = append(t.buckets[idx], id)
}

// RemovePeer drops a peer from its bucket, e.g. after repeated dial failures.
func (t *Table) RemovePeer(id NodeID) {
	idx := t.bucketIndex(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.buckets[idx]
	for i, p := range list {
		if p == id {
			t.buckets[idx] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Store saves a small advertisement under key, keyed by its SHA-256 (the
// DHT's internal 160-bit key space).
func (t *Table) Store(key string, value []byte) {
	h := hash160([]byte(key))
	t.mu.Lock()
	t.values[h] = append([]byte(nil), value...)
	t.mu.Unlock()
}

// Lookup retrieves a previously stored advertisement.
func (t *Table) Lookup(key string) ([]byte, bool) {
	h := hash160([]byte(key))
	t.mu.RLock()
	v, ok := t.values[h]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Nearest returns up to count known peer ids ordered by XOR distance to
// target, closest first.
func (t *Table) Nearest(target NodeID, count int) []NodeID {
	idx := t.bucketIndex(target)
	t.mu.RLock()
	defer t.mu.RUnlock()
	peers := make([]NodeID, 0, count)
	for i := idx; i < len(t.buckets) && len(peers) < count*4; i++ {
		peers = append(peers, t.buckets[i]...)
	}
	for i := idx - 1; i >= 0 && len(peers) < count*4; i-- {
		peers = append(peers, t.buckets[i]...)
	}
	sort.Slice(peers, func(i, j int) bool {
		return t.distance(peers[i], target).Cmp(t.distance(peers[j], target)) < 0
	})
	if len(peers) > count {
		peers = peers[:count]
	}
	return peers
}

func (t *Table) bucketIndex(id NodeID) int {
	d := t.distance(t.self, id)
	if d.Sign() == 0 {
		return bucketCount - 1
	}
	idx := bucketCount - d.BitLen()
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (t *Table) distance(a, b NodeID) *big.Int {
	ha := hash160([]byte(a))
	hb := hash160([]byte(b))
	var diff [20]byte
	for i := range diff {
		diff[i] = ha[i] ^ hb[i]
	}
	return new(big.Int).SetBytes(diff[:])
}
