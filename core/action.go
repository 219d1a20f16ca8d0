package core

import (
	"math/rand"
)

// Action is user-supplied transactional logic applied against a state view
// to produce a delta. The engine never inspects what an action does; it
// only calls these methods in a fixed order, parameterized by this
// interface rather than by any concrete action type.
type Action interface {
	// Execute applies the action against ctx.PreviousStates and returns the
	// resulting delta, or an error if the action cannot be applied.
	Execute(ctx *ActionContext) (AccountStateDelta, error)
	// Render is called once when the action (and its output delta) enters
	// the canonical chain.
	Render(ctx *ActionContext, output AccountStateDelta)
	// Unrender is called once when the action leaves the canonical chain.
	Unrender(ctx *ActionContext, output AccountStateDelta)
	// RenderError/UnrenderError observe an execution failure instead of a
	// successful output delta; the chain itself is not rolled back.
	RenderError(ctx *ActionContext, err error)
	UnrenderError(ctx *ActionContext, err error)
	// PlainValue returns the canonical serialized form of the action, used
	// both for transaction hashing and for persistence.
	PlainValue() ([]byte, error)
}

// ActionCodec reconstructs Actions from their serialized plain value. It is
// supplied by the caller (the same way BlockPolicy is) since action
// semantics are opaque to the core.
type ActionCodec interface {
	Decode(plain []byte) (Action, error)
}

// ActionContext is the environment an Action executes within.
type ActionContext struct {
	Signer         Address
	Miner          Address
	BlockIndex     uint64
	Rehearsal      bool
	PreviousStates AccountStateDelta
	Random         *rand.Rand
}

// newActionRandom derives the deterministic per-action PRNG stream: seeded
// from the block's pre-evaluation hash XORed with the action's index within
// the block, so re-evaluating the same block always reproduces the same
// random stream regardless of how many times it is replayed.
func newActionRandom(preEvaluationHash HashDigest, actionIndex int) *rand.Rand {
	seed := int64(0)
	h := preEvaluationHash
	for i := 0; i < 8; i++ {
		seed = seed<<8 | int64(h[i])
	}
	seed ^= int64(actionIndex)
	return rand.New(rand.NewSource(seed))
}

// AccountStateDelta is an immutable, copy-on-write view of per-address state
// produced by evaluating one or more actions. Every mutator returns a new
// delta rather than modifying the receiver, so a rehearsal evaluation can be
// discarded without side effects.
type AccountStateDelta interface {
	GetState(addr Address) ([]byte, bool)
	SetState(addr Address, value []byte) AccountStateDelta
	GetBalance(addr Address, currency string) uint64
	MintAsset(addr Address, currency string, amount uint64) AccountStateDelta
	TransferAsset(from, to Address, currency string, amount uint64) AccountStateDelta
	BurnAsset(addr Address, currency string, amount uint64) AccountStateDelta
	// UpdatedAddresses reports every address this delta (and its ancestors)
	// touched, in first-touched order.
	UpdatedAddresses() []Address
	// StateUpdatedAddresses reports only addresses whose opaque state bytes
	// (not just balances) changed, the set persisted as a block's state
	// snapshot.
	StateUpdatedAddresses() []Address
}

// NewAccountStateDelta returns an empty delta, the identity element actions
// fold over within a block.
func NewAccountStateDelta() AccountStateDelta {
	return &accountStateDelta{}
}

type balanceKey struct {
	addr     Address
	currency string
}

// accountStateDelta is a persistent (copy-on-write) map triple. Each mutator
// copies the relevant map before writing so earlier deltas in the same
// block's accumulator chain remain valid to read from.
type accountStateDelta struct {
	state           map[Address][]byte
	balances        map[balanceKey]uint64
	touchedOrder    []Address
	touched         map[Address]bool
	stateTouchedSet map[Address]bool
}

func (d *accountStateDelta) clone() *accountStateDelta {
	n := &accountStateDelta{
		state:           make(map[Address][]byte, len(d.state)),
		balances:        make(map[balanceKey]uint64, len(d.balances)),
		touchedOrder:    append([]Address(nil), d.touchedOrder...),
		touched:         make(map[Address]bool, len(d.touched)),
		stateTouchedSet: make(map[Address]bool, len(d.stateTouchedSet)),
	}
	for k, v := range d.state {
		n.state[k] = v
	}
	for k, v := range d.balances {
		n.balances[k] = v
	}
	for k, v := range d.touched {
		n.touched[k] = v
	}
	for k, v := range d.stateTouchedSet {
		n.stateTouchedSet[k] = v
	}
	return n
}

func (d *accountStateDelta) markTouched(n *accountStateDelta, addr Address) {
	if !n.touched[addr] {
		n.touched[addr] = true
		n.touchedOrder = append(n.touchedOrder, addr)
	}
}

func (d *accountStateDelta) GetState(addr Address) ([]byte, bool) {
	v, ok := d.state[addr]
	return v, ok
}

func (d *accountStateDelta) SetState(addr Address, value []byte) AccountStateDelta {
	n := d.clone()
	n.state[addr] = value
	d.markTouched(n, addr)
	n.stateTouchedSet[addr] = true
	return n
}

func (d *accountStateDelta) GetBalance(addr Address, currency string) uint64 {
	return d.balances[balanceKey{addr, currency}]
}

func (d *accountStateDelta) MintAsset(addr Address, currency string, amount uint64) AccountStateDelta {
	n := d.clone()
	key := balanceKey{addr, currency}
	n.balances[key] = n.balances[key] + amount
	d.markTouched(n, addr)
	return n
}

func (d *accountStateDelta) BurnAsset(addr Address, currency string, amount uint64) AccountStateDelta {
	n := d.clone()
	key := balanceKey{addr, currency}
	bal := n.balances[key]
	if amount > bal {
		amount = bal
	}
	n.balances[key] = bal - amount
	d.markTouched(n, addr)
	return n
}

func (d *accountStateDelta) TransferAsset(from, to Address, currency string, amount uint64) AccountStateDelta {
	n := d.clone()
	fromKey := balanceKey{from, currency}
	toKey := balanceKey{to, currency}
	bal := n.balances[fromKey]
	if amount > bal {
		amount = bal
	}
	n.balances[fromKey] = bal - amount
	n.balances[toKey] = n.balances[toKey] + amount
	d.markTouched(n, from)
	d.markTouched(n, to)
	return n
}

func (d *accountStateDelta) UpdatedAddresses() []Address {
	return append([]Address(nil), d.touchedOrder...)
}

func (d *accountStateDelta) StateUpdatedAddresses() []Address {
	out := make([]Address, 0, len(d.stateTouchedSet))
	for _, addr := range d.touchedOrder {
		if d.stateTouchedSet[addr] {
			out = append(out, addr)
		}
	}
	return out
}

// ActionEvaluation is the result of executing a single action against the
// accumulator state, successful or not.
type ActionEvaluation struct {
	Action      Action
	Ctx         *ActionContext
	InputDelta  AccountStateDelta
	OutputDelta AccountStateDelta
	Err         error
}
