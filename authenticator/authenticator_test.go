package authenticator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	"github.com/ahmadzakiakmal/iota-tx-service/oracle"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	own   oracle.Ownership
	err   error
	calls int
}

func (s *stubOracle) GetOwnership(context.Context, codec.ObjectID) (oracle.Ownership, error) {
	s.calls++
	return s.own, s.err
}

func TestDeriveShared(t *testing.T) {
	o := &stubOracle{own: oracle.Ownership{Kind: oracle.OwnerShared, InitialSharedVersion: 42}}
	d := NewDeriver(o, cmtlog.NewNopLogger())

	id := codec.ObjectID{0x01, 0x02}
	payload, err := d.Derive(context.Background(), id)
	require.NoError(t, err)

	shared := payload.Authenticator.ObjectToAuthenticate.Object.SharedObject
	require.NotNil(t, shared)
	assert.Equal(t, id, shared.ID)
	assert.Equal(t, uint64(42), shared.InitialSharedVersion)
	assert.False(t, shared.Mutable)
	assert.Empty(t, payload.Authenticator.CallArgs)
	assert.Empty(t, payload.Authenticator.TypeArguments)
}

func TestGenericSignatureLayout(t *testing.T) {
	id := codec.ObjectID{0xaa}
	o := &stubOracle{own: oracle.Ownership{Kind: oracle.OwnerShared, InitialSharedVersion: 9}}
	payload, err := NewDeriver(o, cmtlog.NewNopLogger()).Derive(context.Background(), id)
	require.NoError(t, err)

	var want bytes.Buffer
	want.WriteByte(MoveAuthenticatorFlag)
	want.WriteByte(0x00) // no call args
	want.WriteByte(0x00) // no type arguments
	want.WriteByte(0x01) // CallArg::Object
	want.WriteByte(0x01) // ObjectArg::SharedObject
	want.Write(id[:])
	version := make([]byte, 8)
	binary.LittleEndian.PutUint64(version, 9)
	want.Write(version)
	want.WriteByte(0x00) // immutable

	sig, err := payload.GenericSignature()
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), sig)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	var body struct {
		Signature []string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(out, &body))
	require.Len(t, body.Signature, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(want.Bytes()), body.Signature[0])
}

func TestDeriveRejectsOwnedObjects(t *testing.T) {
	for _, kind := range []oracle.OwnerKind{
		oracle.OwnerAddress,
		oracle.OwnerObject,
		oracle.OwnerImmutable,
		oracle.OwnerConsensus,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			o := &stubOracle{own: oracle.Ownership{Kind: kind}}
			_, err := NewDeriver(o, cmtlog.NewNopLogger()).Derive(context.Background(), codec.ObjectID{0x01})
			assert.ErrorIs(t, err, domain.ErrNotSharedObject)
		})
	}
}

func TestDerivePassesOracleErrors(t *testing.T) {
	o := &stubOracle{err: domain.New(domain.CodeOracleTimeout, "Node request timed out")}
	_, err := NewDeriver(o, cmtlog.NewNopLogger()).Derive(context.Background(), codec.ObjectID{0x01})
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)
}

func TestDeriveFromTextValidatesFirst(t *testing.T) {
	o := &stubOracle{own: oracle.Ownership{Kind: oracle.OwnerShared, InitialSharedVersion: 1}}
	d := NewDeriver(o, cmtlog.NewNopLogger())

	_, err := d.DeriveFromText(context.Background(), "0xnothex")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, o.calls)

	_, err = d.DeriveFromText(context.Background(), "0x6")
	require.NoError(t, err)
	assert.Equal(t, 1, o.calls)
}
