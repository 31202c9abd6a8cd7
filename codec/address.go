package codec

import (
	"encoding/hex"
	"errors"
	"strings"
)

const AddressLength = 32

var ErrInvalidAddress = errors.New("invalid address")

// Address is an account or object identifier on the ledger.
type Address [AddressLength]byte

// ParseAddress accepts hex with or without the 0x prefix. Short forms such as
// 0x6 are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 0 || len(s) > AddressLength*2 {
		return addr, ErrInvalidAddress
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, ErrInvalidAddress
	}
	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// String renders the canonical 0x-prefixed long form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
