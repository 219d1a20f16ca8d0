package core

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// HashDigest is a fixed 32-byte SHA-256 digest used to identify blocks and
// state roots.
type HashDigest [32]byte

// ZeroHash is the null digest; genesis blocks use it as a sentinel "no
// previous hash" rather than a pointer type, since Go has no natural
// nilable-array analogue.
var ZeroHash HashDigest

func HashBytes(b []byte) HashDigest {
	return HashDigest(sha256.Sum256(b))
}

func (h HashDigest) Bytes() []byte { return h[:] }

func (h HashDigest) String() string { return hex.EncodeToString(h[:]) }

func (h HashDigest) IsZero() bool { return h == HashDigest{} }

// MarshalText renders h as hex so HashDigest can be used as a JSON object
// key (e.g. persisted state-reference or block-state maps).
func (h HashDigest) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses the form MarshalText produces.
func (h *HashDigest) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(h) {
		return errInvalidAddressLength
	}
	copy(h[:], b)
	return nil
}

// Int interprets the digest as a big-endian unsigned integer, the
// representation the Hashcash difficulty check operates on.
func (h HashDigest) Int() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// CID converts the digest into a content identifier for external indexers
// (block explorers, gateways) that want to address blocks the same way the
// storage layer addresses pinned content.
func (h HashDigest) CID() (cid.Cid, error) {
	digest, err := mh.Encode(h[:], mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}

// DifficultyTarget returns 2^256 / difficulty, the exclusive upper bound a
// hash (as a big-endian integer) must stay below to satisfy the Hashcash
// rule at this difficulty.
func DifficultyTarget(difficulty uint64) *big.Int {
	if difficulty == 0 {
		difficulty = 1
	}
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(max, new(big.Int).SetUint64(difficulty))
}

// SatisfiesDifficulty reports whether h, read as a big-endian integer, is
// less than 2^256/difficulty.
func SatisfiesDifficulty(h HashDigest, difficulty uint64) bool {
	return h.Int().Cmp(DifficultyTarget(difficulty)) < 0
}
