package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	"github.com/ahmadzakiakmal/iota-tx-service/repository"
	"github.com/ahmadzakiakmal/iota-tx-service/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeGateway counts calls and can be told to fail.
type fakeGateway struct {
	mu      sync.Mutex
	records map[string]models.Transaction
	calls   int
	failErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{records: map[string]models.Transaction{}}
}

func (g *fakeGateway) Insert(_ context.Context, rec *models.Transaction) (*models.Transaction, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failErr != nil {
		return nil, false, g.failErr
	}
	if existing, ok := g.records[rec.Digest]; ok {
		return &existing, false, nil
	}
	g.records[rec.Digest] = *rec
	return rec, true, nil
}

func (g *fakeGateway) GetByDigest(_ context.Context, digest string) (*models.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failErr != nil {
		return nil, g.failErr
	}
	rec, ok := g.records[digest]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (g *fakeGateway) ListBySender(_ context.Context, sender string, limit int) ([]models.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failErr != nil {
		return nil, g.failErr
	}
	var out []models.Transaction
	for _, rec := range g.records {
		if rec.Sender == sender && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (g *fakeGateway) Ping(context.Context) error { return g.failErr }

func (g *fakeGateway) Close() error { return nil }

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func sampleTx(amount byte) *codec.TransactionData {
	pure := []byte{amount, 0x03, 0, 0, 0, 0, 0, 0}
	input := uint16(0)
	var sender codec.Address
	for i := range sender {
		sender[i] = 0xab
	}
	return &codec.TransactionData{
		V1: &codec.TransactionDataV1{
			Kind: codec.TransactionKind{
				ProgrammableTransaction: &codec.ProgrammableTransaction{
					Inputs: []codec.CallArg{{Pure: &pure}},
					Commands: []codec.Command{{
						SplitCoins: &codec.SplitCoins{
							Coin:    codec.Argument{GasCoin: &struct{}{}},
							Amounts: []codec.Argument{{Input: &input}},
						},
					}},
				},
			},
			Sender: sender,
			GasData: codec.GasData{
				Payment: []codec.ObjectRef{{
					ObjectID: codec.ObjectID{0x11},
					Version:  7,
					Digest:   make([]byte, 32),
				}},
				Owner:  sender,
				Price:  1000,
				Budget: 5_000_000,
			},
			Expiration: codec.TransactionExpiration{None: &struct{}{}},
		},
	}
}

func sampleEnvelope(t *testing.T, amount byte) string {
	raw, err := codec.EncodeTransaction(sampleTx(amount))
	require.NoError(t, err)
	return codec.EncodeEnvelope(raw)
}

func newTestService(store repository.Gateway) (*TransactionService, *fixedClock) {
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	return NewTransactionService(store, clock, cmtlog.NewNopLogger()), clock
}

func TestAddThenGet(t *testing.T) {
	svc, _ := newTestService(newFakeGateway())
	ctx := context.Background()

	envelope := sampleEnvelope(t, 0xe8)
	note := "rent"
	added, err := svc.AddTransaction(ctx, envelope, &note)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), added.AddedAt)

	decoded, err := codec.Decode(envelope)
	require.NoError(t, err)
	assert.Equal(t, decoded.Digest.String(), added.Digest)

	view, err := svc.GetTransaction(ctx, added.Digest)
	require.NoError(t, err)
	assert.Equal(t, envelope, view.BCS)
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), view.Sender)
	assert.Equal(t, added.AddedAt, view.AddedAt)
	require.NotNil(t, view.Description)
	assert.Equal(t, "rent", *view.Description)
}

func TestAddDuplicateKeepsFirstTimestamp(t *testing.T) {
	svc, clock := newTestService(newFakeGateway())
	ctx := context.Background()
	envelope := sampleEnvelope(t, 0x01)

	first, err := svc.AddTransaction(ctx, envelope, nil)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := svc.AddTransaction(ctx, envelope, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.AddedAt, second.AddedAt)
}

func TestAddRejectsBadInput(t *testing.T) {
	store := newFakeGateway()
	svc, _ := newTestService(store)

	tests := map[string]string{
		"not base64":     "!!!",
		"empty":          "",
		"not a tx":       codec.EncodeEnvelope([]byte{0x00, 0x01, 0x02}),
		"trailing bytes": sampleEnvelope(t, 0x01) + "AA==",
	}
	for name, envelope := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AddTransaction(context.Background(), envelope, nil)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Zero(t, store.callCount())
}

func TestAddStorageFailure(t *testing.T) {
	store := newFakeGateway()
	store.failErr = &repository.RepositoryError{Op: "insert transaction", Code: repository.PgErrTooManyConnections}
	svc, _ := newTestService(store)

	_, err := svc.AddTransaction(context.Background(), sampleEnvelope(t, 0x01), nil)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestGetValidatesDigestBeforeStore(t *testing.T) {
	store := newFakeGateway()
	svc, _ := newTestService(store)

	for _, bad := range []string{"", "not-a-digest", "0OIl", "abc"} {
		_, err := svc.GetTransaction(context.Background(), bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}
	assert.Zero(t, store.callCount())
}

func TestGetUnknownDigest(t *testing.T) {
	svc, _ := newTestService(newFakeGateway())
	decoded, err := codec.Decode(sampleEnvelope(t, 0x05))
	require.NoError(t, err)

	_, err = svc.GetTransaction(context.Background(), decoded.Digest.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetCorruptSender(t *testing.T) {
	store := newFakeGateway()
	svc, _ := newTestService(store)
	decoded, err := codec.Decode(sampleEnvelope(t, 0x05))
	require.NoError(t, err)

	store.records[decoded.Digest.String()] = models.Transaction{
		Digest:  decoded.Digest.String(),
		TxBytes: decoded.Raw,
		Sender:  "garbage",
		AddedAt: 1,
	}
	_, err = svc.GetTransaction(context.Background(), decoded.Digest.String())
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
}

func TestGetStoreErrors(t *testing.T) {
	decoded, err := codec.Decode(sampleEnvelope(t, 0x05))
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
		want *domain.Error
	}{
		{"integrity fault", &repository.RepositoryError{Code: repository.PgErrDataCorrupted}, domain.ErrCorruptRecord},
		{"pool timeout", &repository.RepositoryError{Code: "CONNECTION_TIMEOUT"}, domain.ErrStorageUnavailable},
		{"backend down", &repository.RepositoryError{Code: repository.PgErrAdminShutdown}, domain.ErrStorageUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeGateway()
			store.failErr = tc.err
			svc, _ := newTestService(store)

			_, err := svc.GetTransaction(context.Background(), decoded.Digest.String())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestListBySender(t *testing.T) {
	svc, clock := newTestService(newFakeGateway())
	ctx := context.Background()

	for i := byte(1); i <= 3; i++ {
		_, err := svc.AddTransaction(ctx, sampleEnvelope(t, i), nil)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	list, err := svc.ListBySender(ctx, "0x"+strings.Repeat("ab", 32), 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = svc.ListBySender(ctx, "0x"+strings.Repeat("ab", 32), 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.ListBySender(ctx, "0xnothex", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRoundTripThroughBadger(t *testing.T) {
	store, err := repository.OpenBadger(repository.BadgerConfig{InMemory: true}, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer store.Close()

	svc, clock := newTestService(store)
	ctx := context.Background()
	envelope := sampleEnvelope(t, 0x42)

	added, err := svc.AddTransaction(ctx, envelope, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	again, err := svc.AddTransaction(ctx, envelope, nil)
	require.NoError(t, err)
	assert.Equal(t, added.AddedAt, again.AddedAt)

	view, err := svc.GetTransaction(ctx, added.Digest)
	require.NoError(t, err)
	assert.Equal(t, envelope, view.BCS)
	assert.Nil(t, view.Description)

	require.NoError(t, svc.Ready(ctx))
}
