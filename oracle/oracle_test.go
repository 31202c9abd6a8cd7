package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testObject = codec.ObjectID{0x0c}

func newNode(t *testing.T, handler func(req rpcRequest) (int, string)) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		status, payload := handler(req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func result(owner string) string {
	return `{"jsonrpc":"2.0","id":1,"result":{"data":{"objectId":"0x0c","version":"12","digest":"x","owner":` + owner + `}}}`
}

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{NodeURL: url, Timeout: timeout}, cmtlog.NewNopLogger())
}

func TestGetOwnershipShared(t *testing.T) {
	node := newNode(t, func(req rpcRequest) (int, string) {
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, getObjectMethod, req.Method)
		require.Len(t, req.Params, 2)
		assert.Equal(t, testObject.String(), req.Params[0])
		assert.Equal(t, map[string]interface{}{"showOwner": true}, req.Params[1])
		return http.StatusOK, result(`{"Shared":{"initial_shared_version":42}}`)
	})

	own, err := newTestClient(node.URL, time.Second).GetOwnership(context.Background(), testObject)
	require.NoError(t, err)
	assert.Equal(t, OwnerShared, own.Kind)
	assert.Equal(t, uint64(42), own.InitialSharedVersion)
}

func TestGetOwnershipNotFound(t *testing.T) {
	for name, payload := range map[string]string{
		"not exists": `{"jsonrpc":"2.0","id":1,"result":{"error":{"code":"notExists","object_id":"0x0c"}}}`,
		"deleted":    `{"jsonrpc":"2.0","id":1,"result":{"error":{"code":"deleted","object_id":"0x0c"}}}`,
		"no data":    `{"jsonrpc":"2.0","id":1,"result":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			node := newNode(t, func(rpcRequest) (int, string) { return http.StatusOK, payload })
			_, err := newTestClient(node.URL, time.Second).GetOwnership(context.Background(), testObject)
			assert.ErrorIs(t, err, domain.ErrObjectNotFound)
		})
	}
}

func TestGetOwnershipRemoteFaults(t *testing.T) {
	tests := map[string]struct {
		status  int
		payload string
	}{
		"rpc error":    {http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`},
		"http error":   {http.StatusBadGateway, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"upstream"}}`},
		"owner absent": {http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"data":{"objectId":"0x0c"}}}`},
		"odd owner":    {http.StatusOK, result(`{"Galactic":{}}`)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			node := newNode(t, func(rpcRequest) (int, string) { return tc.status, tc.payload })
			_, err := newTestClient(node.URL, time.Second).GetOwnership(context.Background(), testObject)
			assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
		})
	}
}

func TestGetOwnershipTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 50*time.Millisecond).GetOwnership(context.Background(), testObject)
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)
}

func TestGetOwnershipUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).GetOwnership(context.Background(), testObject)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestParseOwner(t *testing.T) {
	owner := "0x" + strings.Repeat("ab", 32)
	tests := []struct {
		raw     string
		kind    OwnerKind
		version uint64
	}{
		{`{"AddressOwner":"` + owner + `"}`, OwnerAddress, 0},
		{`{"ObjectOwner":"` + owner + `"}`, OwnerObject, 0},
		{`{"Shared":{"initial_shared_version":7}}`, OwnerShared, 7},
		{`{"Shared":{"initial_shared_version":"18446744073709551615"}}`, OwnerShared, 18446744073709551615},
		{`"Immutable"`, OwnerImmutable, 0},
		{`{"ConsensusV2":{"start_version":3,"authenticator":{"SingleOwner":"` + owner + `"}}}`, OwnerConsensus, 0},
		{`{"ConsensusAddressOwner":{"start_version":3,"owner":"` + owner + `"}}`, OwnerConsensus, 0},
	}
	for _, tc := range tests {
		own, err := ParseOwner(json.RawMessage(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.kind, own.Kind, tc.raw)
		assert.Equal(t, tc.version, own.InitialSharedVersion, tc.raw)
	}

	own, err := ParseOwner(json.RawMessage(`{"AddressOwner":"` + owner + `"}`))
	require.NoError(t, err)
	assert.Equal(t, owner, own.Owner.String())

	own, err = ParseOwner(json.RawMessage(`{"ConsensusAddressOwner":{"start_version":3,"owner":"` + owner + `"}}`))
	require.NoError(t, err)
	assert.Equal(t, owner, own.Owner.String())

	for _, bad := range []string{
		`"Mutable"`,
		`{"Shared":{}}`,
		`{"AddressOwner":"0xzz"}`,
		`[]`,
		`{"ConsensusAddressOwner":"0x1"}`,
		`{"ConsensusAddressOwner":{"start_version":3,"owner":"0xzz"}}`,
		`{"ConsensusV2":[1,2]}`,
	} {
		_, err := ParseOwner(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}
