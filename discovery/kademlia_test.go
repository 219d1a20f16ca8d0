package discovery_test

import (
	"testing"

	"github.com/meridian-chain/chaincore/discovery"
)

func TestTableAddAndRemovePeer(t *testing.T) {
	table := discovery.NewTable(discovery.NodeID("self"))
	peerA := discovery.NodeID("peer-a")
	peerB := discovery.NodeID("peer-b")

	table.AddPeer(peerA)
	table.AddPeer(peerB)
	table.AddPeer(discovery.NodeID("self")) // ignored: own id

	nearest := table.Nearest(peerA, 10)
	if len(nearest) != 2 {
		t.Fatalf("expected 2 known peers, got %d: %v", len(nearest), nearest)
	}
	if nearest[0] != peerA {
		t.Fatalf("expected peerA to be nearest to itself, got %v", nearest[0])
	}

	table.RemovePeer(peerA)
	nearest = table.Nearest(peerA, 10)
	if len(nearest) != 1 || nearest[0] != peerB {
		t.Fatalf("expected only peerB to remain, got %v", nearest)
	}
}

func TestTableStoreAndLookup(t *testing.T) {
	table := discovery.NewTable(discovery.NodeID("self"))

	if _, ok := table.Lookup("missing"); ok {
		t.Fatalf("expected miss on unset key")
	}

	table.Store("chain-id", []byte("main"))
	v, ok := table.Lookup("chain-id")
	if !ok {
		t.Fatalf("expected hit after Store")
	}
	if string(v) != "main" {
		t.Fatalf("expected value %q, got %q", "main", v)
	}
}

func TestTableNearestIsBoundedByCount(t *testing.T) {
	table := discovery.NewTable(discovery.NodeID("self"))
	for i := 0; i < 20; i++ {
		table.AddPeer(discovery.NodeID(string(rune('a' + i))))
	}
	nearest := table.Nearest(discovery.NodeID("target"), 5)
	if len(nearest) != 5 {
		t.Fatalf("expected Nearest to cap at 5, got %d", len(nearest))
	}
}
