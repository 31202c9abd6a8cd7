package authenticator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	"github.com/ahmadzakiakmal/iota-tx-service/oracle"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/fardream/go-bcs/bcs"
)

// MoveAuthenticatorFlag is the signature scheme byte that prefixes a
// serialized MoveAuthenticator inside a generic signature.
const MoveAuthenticatorFlag byte = 0x07

// MoveAuthenticator authorizes a transaction through a Move call against
// ObjectToAuthenticate instead of a key signature.
type MoveAuthenticator struct {
	CallArgs             []codec.CallArg
	TypeArguments        []codec.TypeTag
	ObjectToAuthenticate codec.CallArg
}

// SignaturePayload is the derived authenticator ready to attach to a
// transaction.
type SignaturePayload struct {
	Authenticator MoveAuthenticator
}

// GenericSignature renders the flag byte followed by the BCS authenticator.
func (p *SignaturePayload) GenericSignature() ([]byte, error) {
	body, err := bcs.Marshal(&p.Authenticator)
	if err != nil {
		return nil, fmt.Errorf("encode authenticator: %w", err)
	}
	return append([]byte{MoveAuthenticatorFlag}, body...), nil
}

func (p *SignaturePayload) MarshalJSON() ([]byte, error) {
	sig, err := p.GenericSignature()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Signature []string `json:"signature"`
	}{
		Signature: []string{base64.StdEncoding.EncodeToString(sig)},
	})
}

// Deriver builds authenticators for shared objects.
type Deriver struct {
	oracle oracle.Oracle
	logger cmtlog.Logger
}

func NewDeriver(o oracle.Oracle, logger cmtlog.Logger) *Deriver {
	return &Deriver{
		oracle: o,
		logger: logger.With("module", "authenticator"),
	}
}

// DeriveFromText parses addressText before consulting the node.
func (d *Deriver) DeriveFromText(ctx context.Context, addressText string) (*SignaturePayload, error) {
	id, err := codec.ParseAddress(addressText)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidInput, "Invalid IOTA address", err)
	}
	return d.Derive(ctx, id)
}

// Derive resolves the ownership of id and, if it is shared, returns an
// authenticator pinned to its initial shared version. No proof material is
// included.
func (d *Deriver) Derive(ctx context.Context, id codec.ObjectID) (*SignaturePayload, error) {
	own, err := d.oracle.GetOwnership(ctx, id)
	if err != nil {
		return nil, err
	}

	switch own.Kind {
	case oracle.OwnerShared:
		d.logger.Info("Derived authenticator", "object", id.String(), "initial_shared_version", own.InitialSharedVersion)
		return &SignaturePayload{
			Authenticator: MoveAuthenticator{
				CallArgs:      []codec.CallArg{},
				TypeArguments: []codec.TypeTag{},
				ObjectToAuthenticate: codec.CallArg{
					Object: &codec.ObjectArg{
						SharedObject: &codec.SharedObjectRef{
							ID:                   id,
							InitialSharedVersion: own.InitialSharedVersion,
							Mutable:              false,
						},
					},
				},
			},
		}, nil
	case oracle.OwnerAddress, oracle.OwnerObject, oracle.OwnerImmutable, oracle.OwnerConsensus:
		return nil, &domain.Error{
			Code:    domain.CodeNotSharedObject,
			Message: "The provided address is not a shared object id",
			Detail:  own.Kind.String(),
		}
	default:
		return nil, fmt.Errorf("unhandled owner kind %d", own.Kind)
	}
}
