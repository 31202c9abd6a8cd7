package service

import (
	"context"
	"errors"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/codec"
	"github.com/ahmadzakiakmal/iota-tx-service/domain"
	"github.com/ahmadzakiakmal/iota-tx-service/repository"
	"github.com/ahmadzakiakmal/iota-tx-service/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Clock supplies the insert timestamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AddResult is returned by AddTransaction.
type AddResult struct {
	Digest  string `json:"digest"`
	AddedAt int64  `json:"added_at"`
}

// TransactionView is a stored transaction as served to callers.
type TransactionView struct {
	BCS         string  `json:"bcs"`
	Sender      string  `json:"sender"`
	AddedAt     int64   `json:"added_at"`
	Description *string `json:"description"`
}

// TransactionSummary is one entry of a sender listing.
type TransactionSummary struct {
	Digest      string  `json:"digest"`
	AddedAt     int64   `json:"added_at"`
	Description *string `json:"description"`
}

// TransactionService validates, persists and retrieves transactions. It holds
// no state of its own beyond the injected gateway.
type TransactionService struct {
	store  repository.Gateway
	clock  Clock
	logger cmtlog.Logger
}

func NewTransactionService(store repository.Gateway, clock Clock, logger cmtlog.Logger) *TransactionService {
	if clock == nil {
		clock = systemClock{}
	}
	return &TransactionService{
		store:  store,
		clock:  clock,
		logger: logger.With("module", "txservice"),
	}
}

// AddTransaction stores the transaction in envelope. Resubmitting identical
// bytes succeeds and reports the timestamp of the first insert.
func (s *TransactionService) AddTransaction(ctx context.Context, envelope string, description *string) (*AddResult, error) {
	decoded, err := codec.Decode(envelope)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidEncoding) {
			return nil, domain.Wrap(domain.CodeInvalidInput, "Invalid base64 transaction bytes", err)
		}
		return nil, domain.Wrap(domain.CodeInvalidInput, "Invalid transaction data", err)
	}

	rec := &models.Transaction{
		Digest:      decoded.Digest.String(),
		TxBytes:     decoded.Raw,
		Sender:      decoded.Sender.String(),
		Description: description,
		AddedAt:     s.clock.Now().Unix(),
	}

	stored, created, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.logger.Error("Failed to store transaction", "digest", rec.Digest, "retryable", repository.Retryable(err), "err", err)
		return nil, domain.Wrap(domain.CodeStorageUnavailable, "Storage unavailable", err)
	}
	if !created {
		s.logger.Info("Transaction already stored", "digest", stored.Digest, "added_at", stored.AddedAt)
	} else {
		s.logger.Info("Transaction stored", "digest", stored.Digest, "sender", stored.Sender)
	}

	return &AddResult{
		Digest:  stored.Digest,
		AddedAt: stored.AddedAt,
	}, nil
}

// GetTransaction loads a transaction by the text form of its digest. The
// digest is validated before any store access.
func (s *TransactionService) GetTransaction(ctx context.Context, digestText string) (*TransactionView, error) {
	digest, err := codec.ParseDigest(digestText)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidInput, "Invalid IOTA transaction digest", err)
	}

	tx, err := s.store.GetByDigest(ctx, digest.String())
	if err != nil {
		return nil, s.readError(digest.String(), err)
	}
	if tx == nil {
		return nil, domain.New(domain.CodeNotFound, "Transaction not found")
	}

	sender, err := codec.ParseAddress(tx.Sender)
	if err != nil {
		s.logger.Error("Stored sender is not a valid address", "digest", tx.Digest, "sender", tx.Sender)
		return nil, domain.Wrap(domain.CodeCorruptRecord, "Stored transaction is corrupt", err)
	}

	return &TransactionView{
		BCS:         codec.EncodeEnvelope(tx.TxBytes),
		Sender:      sender.String(),
		AddedAt:     tx.AddedAt,
		Description: tx.Description,
	}, nil
}

// ListBySender returns the newest transactions sent from address.
func (s *TransactionService) ListBySender(ctx context.Context, addressText string, limit int) ([]TransactionSummary, error) {
	sender, err := codec.ParseAddress(addressText)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidInput, "Invalid IOTA address", err)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	txs, err := s.store.ListBySender(ctx, sender.String(), limit)
	if err != nil {
		return nil, s.readError(sender.String(), err)
	}

	summaries := make([]TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		summaries = append(summaries, TransactionSummary{
			Digest:      tx.Digest,
			AddedAt:     tx.AddedAt,
			Description: tx.Description,
		})
	}
	return summaries, nil
}

// Ready reports whether the store answers.
func (s *TransactionService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return domain.Wrap(domain.CodeStorageUnavailable, "Storage unavailable", err)
	}
	return nil
}

func (s *TransactionService) readError(key string, err error) error {
	if repository.IsIntegrityFault(err) {
		s.logger.Error("Store reported damaged data", "key", key, "err", err)
		return domain.Wrap(domain.CodeCorruptRecord, "Stored transaction is corrupt", err)
	}
	s.logger.Error("Failed to read transaction", "key", key, "retryable", repository.Retryable(err), "err", err)
	return domain.Wrap(domain.CodeStorageUnavailable, "Storage unavailable", err)
}
