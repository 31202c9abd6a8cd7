package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fardream/go-bcs/bcs"
)

var (
	ErrInvalidEncoding      = errors.New("invalid base64 transaction bytes")
	ErrMalformedTransaction = errors.New("invalid transaction data")
)

// DecodeEnvelope turns the base64 text envelope into the raw BCS body.
func DecodeEnvelope(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidEncoding
	}
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return raw, nil
}

// EncodeEnvelope is the inverse of DecodeEnvelope.
func EncodeEnvelope(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// ParseTransaction decodes raw as TransactionData. The whole input must be
// consumed and must re-encode to the same bytes.
func ParseTransaction(raw []byte) (tx *TransactionData, err error) {
	if len(raw) == 0 {
		return nil, ErrMalformedTransaction
	}
	defer func() {
		if r := recover(); r != nil {
			tx, err = nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, r)
		}
	}()
	tx = new(TransactionData)
	n, err := bcs.Unmarshal(raw, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if n != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, len(raw)-n)
	}
	if tx.V1 == nil {
		return nil, ErrMalformedTransaction
	}
	canonical, err := bcs.Marshal(tx)
	if err != nil || !bytes.Equal(canonical, raw) {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrMalformedTransaction)
	}
	return tx, nil
}

// EncodeTransaction produces the canonical BCS body of tx.
func EncodeTransaction(tx *TransactionData) ([]byte, error) {
	if tx == nil || tx.V1 == nil {
		return nil, ErrMalformedTransaction
	}
	raw, err := bcs.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	return raw, nil
}

// Sender reads the sender field.
func Sender(tx *TransactionData) Address {
	return tx.V1.Sender
}

// Decoded bundles everything the service needs from one envelope.
type Decoded struct {
	Raw    []byte
	Tx     *TransactionData
	Digest Digest
	Sender Address
}

// Decode runs envelope decode, parse, digest and sender extraction.
func Decode(envelope string) (*Decoded, error) {
	raw, err := DecodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	tx, err := ParseTransaction(raw)
	if err != nil {
		return nil, err
	}
	// raw is canonical at this point, so hashing it equals hashing bcs(tx).
	return &Decoded{
		Raw:    raw,
		Tx:     tx,
		Digest: digestOf(raw),
		Sender: Sender(tx),
	}, nil
}
