package codec

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const DigestLength = 32

// transactionDataSalt is the name prefix hashed ahead of the BCS body.
const transactionDataSalt = "TransactionData::"

var ErrInvalidDigest = errors.New("invalid transaction digest")

// Digest is the Blake2b-256 transaction digest. Its text form is base58.
type Digest [DigestLength]byte

func (d Digest) String() string {
	return base58.Encode(d[:])
}

// ParseDigest validates the base58 text form of a digest without touching any store.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	if s == "" {
		return d, ErrInvalidDigest
	}
	// base58.Decode returns an empty slice for characters outside the alphabet.
	raw := base58.Decode(s)
	if len(raw) != DigestLength {
		return d, ErrInvalidDigest
	}
	copy(d[:], raw)
	return d, nil
}

// ComputeDigest hashes the canonical serialization of tx.
func ComputeDigest(tx *TransactionData) (Digest, error) {
	body, err := EncodeTransaction(tx)
	if err != nil {
		return Digest{}, err
	}
	return digestOf(body), nil
}

func digestOf(body []byte) Digest {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(transactionDataSalt))
	h.Write(body)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
