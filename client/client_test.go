package client

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeService(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /add_transaction", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte(`"tx_bytes":"AAAA"`)) {
			w.Header().Set(server.RequestIDHeader, "req-1")
			server.JSONError(w, "Invalid transaction data", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"digest":"D1","added_at":7}`))
	})
	mux.HandleFunc("GET /transaction/{digest}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("digest") != "D1" {
			server.JSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bcs":"AAAA","sender":"0x01","added_at":7,"description":null}`))
	})
	mux.HandleFunc("GET /transactions/sender/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":[{"digest":"D1","added_at":7,"description":null}]}`))
	})
	mux.HandleFunc("GET /derive_auth_signature/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":["BwAA"]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCalls(t *testing.T) {
	srv := fakeService(t)
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	added, err := c.AddTransaction(ctx, "AAAA", nil)
	require.NoError(t, err)
	assert.Equal(t, "D1", added.Digest)
	assert.Equal(t, int64(7), added.AddedAt)

	view, err := c.GetTransaction(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", view.BCS)
	assert.Nil(t, view.Description)

	list, err := c.ListBySender(ctx, "0x01", 5)
	require.NoError(t, err)
	require.Len(t, list, 1)

	sigs, err := c.DeriveAuthSignature(ctx, "0x6")
	require.NoError(t, err)
	assert.Equal(t, []string{"BwAA"}, sigs)
}

func TestClientAPIError(t *testing.T) {
	srv := fakeService(t)
	c := New(srv.URL, time.Second)

	_, err := c.AddTransaction(context.Background(), "nope", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid transaction data", apiErr.Message)
	assert.Equal(t, "req-1", apiErr.RequestID)

	_, err = c.GetTransaction(context.Background(), "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestRunBenchmark(t *testing.T) {
	srv := fakeService(t)
	c := New(srv.URL, time.Second)

	var out bytes.Buffer
	err := RunBenchmark(context.Background(), c, BenchOptions{
		Envelope:   "AAAA",
		ObjectID:   "0x6",
		Iterations: 2,
	}, &out, io.Discard)
	require.NoError(t, err)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	// header + 2 x (add, get, list, derive, total)
	require.Len(t, rows, 11)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "Add Transaction", rows[1][1])
	assert.Equal(t, "Complete Workflow", rows[5][1])
	for _, row := range rows[1:] {
		assert.Empty(t, row[5])
	}
}

func TestRunBenchmarkStopsOnFailedSubmit(t *testing.T) {
	srv := fakeService(t)
	c := New(srv.URL, time.Second)

	var out bytes.Buffer
	err := RunBenchmark(context.Background(), c, BenchOptions{Envelope: "bad", Iterations: 1}, &out, io.Discard)
	require.NoError(t, err)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1][5], "Invalid transaction data")
}
