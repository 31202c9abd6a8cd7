package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fardream/go-bcs/bcs"
)

const (
	// maxSequenceLength bounds every length prefix. Envelopes arrive in
	// request bodies that are capped well below this.
	maxSequenceLength = 1 << 20
	// maxTypeDepth bounds vector and struct nesting inside type tags.
	maxTypeDepth = 64
)

var errUnknownVariant = errors.New("unknown variant")

// The reflective enum decoding in go-bcs indexes the variant field without a
// bounds check and cannot allocate a nil enum pointer, so every enum here
// carries its own UnmarshalBCS built on reader.

func (x *TransactionData) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.transactionData(x)
	return d.n, err
}

func (x *TransactionKind) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.transactionKind(x)
	return d.n, err
}

func (x *CallArg) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.callArg(x)
	return d.n, err
}

func (x *ObjectArg) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.objectArg(x)
	return d.n, err
}

func (x *Command) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.command(x)
	return d.n, err
}

func (x *Argument) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.argument(x)
	return d.n, err
}

func (x *TypeTag) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.typeTag(x, 0)
	return d.n, err
}

func (x *TransactionExpiration) UnmarshalBCS(r io.Reader) (int, error) {
	d := &reader{r: r}
	err := d.expiration(x)
	return d.n, err
}

var (
	_ bcs.Unmarshaler = (*TransactionData)(nil)
	_ bcs.Unmarshaler = (*TransactionKind)(nil)
	_ bcs.Unmarshaler = (*CallArg)(nil)
	_ bcs.Unmarshaler = (*ObjectArg)(nil)
	_ bcs.Unmarshaler = (*Command)(nil)
	_ bcs.Unmarshaler = (*Argument)(nil)
	_ bcs.Unmarshaler = (*TypeTag)(nil)
	_ bcs.Unmarshaler = (*TransactionExpiration)(nil)
)

// reader decodes the transaction schema field by field and counts the bytes
// it consumes.
type reader struct {
	r   io.Reader
	n   int
	buf [8]byte
}

func (d *reader) Read(p []byte) (int, error) {
	k, err := d.r.Read(p)
	d.n += k
	return k, err
}

func (d *reader) full(p []byte) error {
	_, err := io.ReadFull(d, p)
	return err
}

func (d *reader) length() (int, error) {
	v, _, err := bcs.ULEB128Decode[uint64](d)
	if err != nil {
		return 0, err
	}
	if v > maxSequenceLength {
		return 0, fmt.Errorf("length %d exceeds %d", v, maxSequenceLength)
	}
	return int(v), nil
}

// tag reads an enum discriminant and rejects anything past the last variant.
func (d *reader) tag(enum string, variants int) (int, error) {
	v, _, err := bcs.ULEB128Decode[uint64](d)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", enum, err)
	}
	if v >= uint64(variants) {
		return 0, fmt.Errorf("%s: %w %d", enum, errUnknownVariant, v)
	}
	return int(v), nil
}

func (d *reader) u8() (byte, error) {
	if err := d.full(d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *reader) u16() (uint16, error) {
	if err := d.full(d.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d.buf[:2]), nil
}

func (d *reader) u64() (uint64, error) {
	if err := d.full(d.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.buf[:8]), nil
}

func (d *reader) boolean() (bool, error) {
	b, err := d.u8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("invalid bool byte %#x", b)
}

func (d *reader) bytes() ([]byte, error) {
	size, err := d.length()
	if err != nil || size == 0 {
		return nil, err
	}
	out := make([]byte, size)
	if err := d.full(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *reader) str() (string, error) {
	b, err := d.bytes()
	return string(b), err
}

func (d *reader) address(a *Address) error {
	return d.full(a[:])
}

// option reads the Option<T> presence byte.
func (d *reader) option() (bool, error) {
	b, err := d.u8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("invalid option tag %#x", b)
}

func sequence[T any](d *reader, elem func(*T) error) ([]T, error) {
	size, err := d.length()
	if err != nil {
		return nil, err
	}
	var out []T
	for i := 0; i < size; i++ {
		var v T
		if err := elem(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *reader) byteVectors() ([][]byte, error) {
	return sequence(d, func(b *[]byte) (err error) {
		*b, err = d.bytes()
		return err
	})
}

func (d *reader) addresses() ([]ObjectID, error) {
	return sequence(d, d.address)
}

func (d *reader) arguments() ([]Argument, error) {
	return sequence(d, d.argument)
}

func (d *reader) transactionData(x *TransactionData) error {
	if _, err := d.tag("TransactionData", 1); err != nil {
		return err
	}
	v1 := new(TransactionDataV1)
	if err := d.transactionKind(&v1.Kind); err != nil {
		return err
	}
	if err := d.address(&v1.Sender); err != nil {
		return err
	}
	if err := d.gasData(&v1.GasData); err != nil {
		return err
	}
	if err := d.expiration(&v1.Expiration); err != nil {
		return err
	}
	*x = TransactionData{V1: v1}
	return nil
}

func (d *reader) transactionKind(x *TransactionKind) error {
	if _, err := d.tag("TransactionKind", 1); err != nil {
		return err
	}
	pt := new(ProgrammableTransaction)
	var err error
	if pt.Inputs, err = sequence(d, d.callArg); err != nil {
		return err
	}
	if pt.Commands, err = sequence(d, d.command); err != nil {
		return err
	}
	*x = TransactionKind{ProgrammableTransaction: pt}
	return nil
}

func (d *reader) callArg(x *CallArg) error {
	variant, err := d.tag("CallArg", 2)
	if err != nil {
		return err
	}
	switch variant {
	case 0:
		pure, err := d.bytes()
		if err != nil {
			return err
		}
		*x = CallArg{Pure: &pure}
	case 1:
		obj := new(ObjectArg)
		if err := d.objectArg(obj); err != nil {
			return err
		}
		*x = CallArg{Object: obj}
	}
	return nil
}

func (d *reader) objectArg(x *ObjectArg) error {
	variant, err := d.tag("ObjectArg", 3)
	if err != nil {
		return err
	}
	switch variant {
	case 0:
		ref := new(ObjectRef)
		if err := d.objectRef(ref); err != nil {
			return err
		}
		*x = ObjectArg{ImmOrOwnedObject: ref}
	case 1:
		shared := new(SharedObjectRef)
		if err := d.address(&shared.ID); err != nil {
			return err
		}
		if shared.InitialSharedVersion, err = d.u64(); err != nil {
			return err
		}
		if shared.Mutable, err = d.boolean(); err != nil {
			return err
		}
		*x = ObjectArg{SharedObject: shared}
	case 2:
		ref := new(ObjectRef)
		if err := d.objectRef(ref); err != nil {
			return err
		}
		*x = ObjectArg{Receiving: ref}
	}
	return nil
}

func (d *reader) objectRef(x *ObjectRef) error {
	var err error
	if err = d.address(&x.ObjectID); err != nil {
		return err
	}
	if x.Version, err = d.u64(); err != nil {
		return err
	}
	x.Digest, err = d.bytes()
	return err
}

func (d *reader) command(x *Command) error {
	variant, err := d.tag("Command", 7)
	if err != nil {
		return err
	}
	switch variant {
	case 0:
		call := new(ProgrammableMoveCall)
		if err := d.address(&call.Package); err != nil {
			return err
		}
		if call.Module, err = d.str(); err != nil {
			return err
		}
		if call.Function, err = d.str(); err != nil {
			return err
		}
		if call.TypeArguments, err = d.typeTags(0); err != nil {
			return err
		}
		if call.Arguments, err = d.arguments(); err != nil {
			return err
		}
		*x = Command{MoveCall: call}
	case 1:
		transfer := new(TransferObjects)
		if transfer.Objects, err = d.arguments(); err != nil {
			return err
		}
		if err := d.argument(&transfer.Address); err != nil {
			return err
		}
		*x = Command{TransferObjects: transfer}
	case 2:
		split := new(SplitCoins)
		if err := d.argument(&split.Coin); err != nil {
			return err
		}
		if split.Amounts, err = d.arguments(); err != nil {
			return err
		}
		*x = Command{SplitCoins: split}
	case 3:
		merge := new(MergeCoins)
		if err := d.argument(&merge.Destination); err != nil {
			return err
		}
		if merge.Sources, err = d.arguments(); err != nil {
			return err
		}
		*x = Command{MergeCoins: merge}
	case 4:
		publish := new(Publish)
		if publish.Modules, err = d.byteVectors(); err != nil {
			return err
		}
		if publish.Dependencies, err = d.addresses(); err != nil {
			return err
		}
		*x = Command{Publish: publish}
	case 5:
		vec := new(MakeMoveVec)
		present, err := d.option()
		if err != nil {
			return err
		}
		if present {
			vec.Type = new(TypeTag)
			if err := d.typeTag(vec.Type, 0); err != nil {
				return err
			}
		}
		if vec.Elements, err = d.arguments(); err != nil {
			return err
		}
		*x = Command{MakeMoveVec: vec}
	case 6:
		upgrade := new(Upgrade)
		if upgrade.Modules, err = d.byteVectors(); err != nil {
			return err
		}
		if upgrade.Dependencies, err = d.addresses(); err != nil {
			return err
		}
		if err := d.address(&upgrade.Package); err != nil {
			return err
		}
		if err := d.argument(&upgrade.Ticket); err != nil {
			return err
		}
		*x = Command{Upgrade: upgrade}
	}
	return nil
}

func (d *reader) argument(x *Argument) error {
	variant, err := d.tag("Argument", 4)
	if err != nil {
		return err
	}
	switch variant {
	case 0:
		*x = Argument{GasCoin: &struct{}{}}
	case 1:
		input, err := d.u16()
		if err != nil {
			return err
		}
		*x = Argument{Input: &input}
	case 2:
		result, err := d.u16()
		if err != nil {
			return err
		}
		*x = Argument{Result: &result}
	case 3:
		nested := new(NestedResult)
		if nested.Result, err = d.u16(); err != nil {
			return err
		}
		if nested.Index, err = d.u16(); err != nil {
			return err
		}
		*x = Argument{NestedResult: nested}
	}
	return nil
}

func (d *reader) typeTags(depth int) ([]TypeTag, error) {
	return sequence(d, func(t *TypeTag) error {
		return d.typeTag(t, depth)
	})
}

func (d *reader) typeTag(x *TypeTag, depth int) error {
	if depth > maxTypeDepth {
		return fmt.Errorf("type tag nested deeper than %d", maxTypeDepth)
	}
	variant, err := d.tag("TypeTag", 11)
	if err != nil {
		return err
	}
	unit := &struct{}{}
	switch variant {
	case 0:
		*x = TypeTag{Bool: unit}
	case 1:
		*x = TypeTag{U8: unit}
	case 2:
		*x = TypeTag{U64: unit}
	case 3:
		*x = TypeTag{U128: unit}
	case 4:
		*x = TypeTag{Address: unit}
	case 5:
		*x = TypeTag{Signer: unit}
	case 6:
		elem := new(TypeTag)
		if err := d.typeTag(elem, depth+1); err != nil {
			return err
		}
		*x = TypeTag{Vector: elem}
	case 7:
		st := new(StructTag)
		if err := d.address(&st.Address); err != nil {
			return err
		}
		if st.Module, err = d.str(); err != nil {
			return err
		}
		if st.Name, err = d.str(); err != nil {
			return err
		}
		if st.TypeParams, err = d.typeTags(depth + 1); err != nil {
			return err
		}
		*x = TypeTag{Struct: st}
	case 8:
		*x = TypeTag{U16: unit}
	case 9:
		*x = TypeTag{U32: unit}
	case 10:
		*x = TypeTag{U256: unit}
	}
	return nil
}

func (d *reader) gasData(x *GasData) error {
	var err error
	if x.Payment, err = sequence(d, d.objectRef); err != nil {
		return err
	}
	if err = d.address(&x.Owner); err != nil {
		return err
	}
	if x.Price, err = d.u64(); err != nil {
		return err
	}
	x.Budget, err = d.u64()
	return err
}

func (d *reader) expiration(x *TransactionExpiration) error {
	variant, err := d.tag("TransactionExpiration", 2)
	if err != nil {
		return err
	}
	switch variant {
	case 0:
		*x = TransactionExpiration{None: &struct{}{}}
	case 1:
		epoch, err := d.u64()
		if err != nil {
			return err
		}
		*x = TransactionExpiration{Epoch: &epoch}
	}
	return nil
}
