package core

import (
	"bytes"
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Transaction is a signed, ordered list of actions with a per-signer nonce.
// Once signed and persisted it is immutable.
type Transaction struct {
	Nonce            uint64
	Signer           Address
	PublicKey        []byte // uncompressed secp256k1 public key, as crypto.FromECDSAPub produces
	UpdatedAddresses []Address
	Timestamp        time.Time
	Actions          []Action
	Signature        []byte // 65-byte [R || S || V] as produced by crypto.Sign

	id *HashDigest // memoized
}

type rlpTransaction struct {
	Nonce            uint64
	Signer           []byte
	PublicKey        []byte
	UpdatedAddresses [][]byte
	Timestamp        uint64
	Actions          [][]byte
}

func (tx *Transaction) rlpForm() (*rlpTransaction, error) {
	actions := make([][]byte, len(tx.Actions))
	for i, a := range tx.Actions {
		pv, err := a.PlainValue()
		if err != nil {
			return nil, err
		}
		actions[i] = pv
	}
	addrs := make([][]byte, len(tx.UpdatedAddresses))
	for i, a := range tx.UpdatedAddresses {
		addrs[i] = a.Bytes()
	}
	return &rlpTransaction{
		Nonce:            tx.Nonce,
		Signer:           tx.Signer.Bytes(),
		PublicKey:        tx.PublicKey,
		UpdatedAddresses: addrs,
		Timestamp:        uint64(tx.Timestamp.UTC().UnixNano()),
		Actions:          actions,
	}, nil
}

// SigningHash is the canonical serialization signatures are computed over:
// every field except the signature itself.
func (tx *Transaction) SigningHash() (HashDigest, error) {
	form, err := tx.rlpForm()
	if err != nil {
		return HashDigest{}, err
	}
	encoded, err := rlp.EncodeToBytes(form)
	if err != nil {
		return HashDigest{}, err
	}
	return HashBytes(encoded), nil
}

// ID is the transaction's identity: the hash of its canonical serialization
// including the signature. Used as the store key and staging id.
func (tx *Transaction) ID() (HashDigest, error) {
	if tx.id != nil {
		return *tx.id, nil
	}
	signing, err := tx.SigningHash()
	if err != nil {
		return HashDigest{}, err
	}
	id := HashBytes(append(signing.Bytes(), tx.Signature...))
	tx.id = &id
	return id, nil
}

// Sign computes the transaction's signature and derived signer fields from
// priv by signing over the transaction's canonical hash.
func (tx *Transaction) Sign(priv *ecdsa.PrivateKey) error {
	tx.PublicKey = crypto.FromECDSAPub(&priv.PublicKey)
	tx.Signer = AddressFromPublicKey(&priv.PublicKey)
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash[:], priv)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.id = nil
	return nil
}

// Verify checks that Signature verifies PublicKey over the canonical
// serialization of every other field, and that Signer is PublicKey's
// address.
func (tx *Transaction) Verify() error {
	if tx.Nonce > (1<<63 - 1) {
		return newTxError(InvalidUpdatedAddresses, "nonce overflow")
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return newTxError(InvalidSignature, "compute signing hash: %v", err)
	}
	if len(tx.Signature) != 65 {
		return newTxError(InvalidSignature, "signature must be 65 bytes, got %d", len(tx.Signature))
	}
	pub, err := crypto.SigToPub(hash[:], tx.Signature)
	if err != nil {
		return newTxError(InvalidSignature, "recover public key: %v", err)
	}
	if !bytes.Equal(crypto.FromECDSAPub(pub), tx.PublicKey) {
		return newTxError(InvalidSignature, "recovered public key does not match declared public key")
	}
	if AddressFromPublicKey(pub) != tx.Signer {
		return newTxError(InvalidSignature, "signer does not match public key")
	}
	return nil
}
