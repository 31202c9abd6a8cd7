package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/go-resty/resty/v2"
)

const getObjectMethod = "iota_getObject"

// OwnerKind tags the Ownership union.
type OwnerKind int

const (
	OwnerAddress OwnerKind = iota
	OwnerObject
	OwnerShared
	OwnerImmutable
	OwnerConsensus
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerAddress:
		return "AddressOwner"
	case OwnerObject:
		return "ObjectOwner"
	case OwnerShared:
		return "Shared"
	case OwnerImmutable:
		return "Immutable"
	case OwnerConsensus:
		return "ConsensusOwned"
	}
	return "Unknown"
}

// Ownership is what the node reports about who controls an object.
// InitialSharedVersion is only meaningful for OwnerShared, Owner only for
// the address, object and consensus kinds.
type Ownership struct {
	Kind                 OwnerKind
	Owner                codec.Address
	InitialSharedVersion uint64
}

// Oracle answers ownership queries.
type Oracle interface {
	GetOwnership(ctx context.Context, id codec.ObjectID) (Ownership, error)
}

type Config struct {
	NodeURL string
	Timeout time.Duration
}

// Client queries a full node over JSON-RPC.
type Client struct {
	rc      *resty.Client
	nodeURL string
	timeout time.Duration
	nextID  atomic.Int64
	logger  cmtlog.Logger
}

var _ Oracle = (*Client)(nil)

func NewClient(cfg Config, logger cmtlog.Logger) *Client {
	rc := resty.New().
		SetHeader("Content-Type", "application/json")
	return &Client{
		rc:      rc,
		nodeURL: cfg.NodeURL,
		timeout: cfg.Timeout,
		logger:  logger.With("module", "oracle"),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type objectResponse struct {
	Data  *objectData `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type objectData struct {
	ObjectID string          `json:"objectId"`
	Owner    json.RawMessage `json:"owner"`
}

// GetOwnership looks up the owner of id. Every call is bounded by the
// configured timeout.
func (c *Client) GetOwnership(ctx context.Context, id codec.ObjectID) (Ownership, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  getObjectMethod,
		Params:  []interface{}{id.String(), map[string]bool{"showOwner": true}},
	}

	var rpcRes rpcResponse
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&rpcRes).
		SetError(&rpcRes).
		Post(c.nodeURL)
	if err != nil {
		return Ownership{}, c.transportError(ctx, id, err)
	}
	if res.IsError() {
		c.logger.Error("Node returned HTTP error", "object", id.String(), "status", res.StatusCode())
		return Ownership{}, &domain.Error{
			Code:    domain.CodeOracleUnavailable,
			Message: "Node unavailable",
			Detail:  fmt.Sprintf("HTTP %d", res.StatusCode()),
		}
	}
	if rpcRes.Error != nil {
		c.logger.Error("Node returned RPC error", "object", id.String(), "code", rpcRes.Error.Code, "message", rpcRes.Error.Message)
		return Ownership{}, &domain.Error{
			Code:    domain.CodeOracleUnavailable,
			Message: "Node unavailable",
			Detail:  fmt.Sprintf("rpc error %d: %s", rpcRes.Error.Code, rpcRes.Error.Message),
		}
	}

	var obj objectResponse
	if err := json.Unmarshal(rpcRes.Result, &obj); err != nil {
		return Ownership{}, domain.Wrap(domain.CodeOracleUnavailable, "Node unavailable", fmt.Errorf("decode object response: %w", err))
	}
	if obj.Error != nil || obj.Data == nil {
		return Ownership{}, domain.New(domain.CodeObjectNotFound, "Object not found")
	}
	if len(obj.Data.Owner) == 0 || bytes.Equal(obj.Data.Owner, []byte("null")) {
		return Ownership{}, &domain.Error{
			Code:    domain.CodeOracleUnavailable,
			Message: "Node unavailable",
			Detail:  "owner missing from object response",
		}
	}

	ownership, err := ParseOwner(obj.Data.Owner)
	if err != nil {
		return Ownership{}, domain.Wrap(domain.CodeOracleUnavailable, "Node unavailable", err)
	}
	c.logger.Debug("Resolved ownership", "object", id.String(), "kind", ownership.Kind.String())
	return ownership, nil
}

func (c *Client) transportError(ctx context.Context, id codec.ObjectID, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Error("Node request timed out", "object", id.String(), "err", err)
		return domain.Wrap(domain.CodeOracleTimeout, "Node request timed out", err)
	}
	c.logger.Error("Node request failed", "object", id.String(), "err", err)
	return domain.Wrap(domain.CodeOracleUnavailable, "Node unavailable", err)
}

// ParseOwner decodes the node's JSON owner representation:
// {"AddressOwner": "0x.."}, {"ObjectOwner": "0x.."},
// {"Shared": {"initial_shared_version": N}}, "Immutable", or one of the
// consensus forms.
func ParseOwner(raw json.RawMessage) (Ownership, error) {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		if tag == "Immutable" {
			return Ownership{Kind: OwnerImmutable}, nil
		}
		return Ownership{}, fmt.Errorf("unknown owner %q", tag)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Ownership{}, fmt.Errorf("decode owner: %w", err)
	}

	if v, ok := fields["AddressOwner"]; ok {
		addr, err := parseOwnerAddress(v)
		return Ownership{Kind: OwnerAddress, Owner: addr}, err
	}
	if v, ok := fields["ObjectOwner"]; ok {
		addr, err := parseOwnerAddress(v)
		return Ownership{Kind: OwnerObject, Owner: addr}, err
	}
	if v, ok := fields["Shared"]; ok {
		var shared struct {
			InitialSharedVersion json.RawMessage `json:"initial_shared_version"`
		}
		if err := json.Unmarshal(v, &shared); err != nil {
			return Ownership{}, fmt.Errorf("decode shared owner: %w", err)
		}
		version, err := parseVersion(shared.InitialSharedVersion)
		if err != nil {
			return Ownership{}, err
		}
		return Ownership{Kind: OwnerShared, InitialSharedVersion: version}, nil
	}
	for _, key := range []string{"ConsensusAddressOwner", "ConsensusV2"} {
		if v, ok := fields[key]; ok {
			var consensus struct {
				Owner json.RawMessage `json:"owner"`
			}
			if err := json.Unmarshal(v, &consensus); err != nil {
				return Ownership{}, fmt.Errorf("decode %s owner: %w", key, err)
			}
			// ConsensusV2 carries an authenticator instead of an owner field.
			own := Ownership{Kind: OwnerConsensus}
			if len(consensus.Owner) > 0 {
				addr, err := parseOwnerAddress(consensus.Owner)
				if err != nil {
					return Ownership{}, err
				}
				own.Owner = addr
			}
			return own, nil
		}
	}
	return Ownership{}, fmt.Errorf("unknown owner %s", string(raw))
}

func parseOwnerAddress(raw json.RawMessage) (codec.Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return codec.Address{}, fmt.Errorf("decode owner address: %w", err)
	}
	return codec.ParseAddress(s)
}

// parseVersion accepts both a JSON number and a decimal string.
func parseVersion(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, errors.New("initial_shared_version missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseUint(s, 10, 64)
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode initial_shared_version: %w", err)
	}
	return n, nil
}
