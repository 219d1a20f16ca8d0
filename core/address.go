package core

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

var errInvalidAddressLength = errors.New("chaincore: invalid address length")

// Address is a fixed 20-byte identity derived from the Keccak-256 digest of
// an uncompressed secp256k1 public key minus its leading sign byte.
type Address [20]byte

// AddressFromPublicKey derives the Address for a signer's public key.
func AddressFromPublicKey(pub *ecdsa.PublicKey) Address {
	return Address(crypto.PubkeyToAddress(*pub))
}

// AddressFromBytes parses raw 20-byte address material.
func AddressFromBytes(b []byte) (Address, bool) {
	var a Address
	if len(b) != len(a) {
		return a, false
	}
	copy(a[:], b)
	return a, true
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) IsZero() bool { return a == Address{} }

// MarshalText renders a as the same hex form String does, so Address can be
// used as a JSON object key (e.g. map[Address][]byte state dumps).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the form MarshalText produces.
func (a *Address) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	parsed, ok := AddressFromBytes(b)
	if !ok {
		return errInvalidAddressLength
	}
	*a = parsed
	return nil
}
