package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ahmadzakiakmal/iota-tx-service/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

const (
	txKeyPrefix     = "tx/"
	senderKeyPrefix = "sender/"
)

// BadgerConfig selects an on-disk directory or a purely in-memory store
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// BadgerStore is an embedded Gateway for single-node deployments and tests
type BadgerStore struct {
	db     *badger.DB
	logger cmtlog.Logger
}

var _ Gateway = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the key-value store
func OpenBadger(cfg BadgerConfig, logger cmtlog.Logger) (*BadgerStore, error) {
	logger = logger.With("module", "badger")

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func txKey(digest string) []byte {
	return []byte(txKeyPrefix + digest)
}

func senderPrefix(sender string) []byte {
	return []byte(senderKeyPrefix + strings.ToLower(sender) + "/")
}

func senderKey(sender, digest string) []byte {
	return append(senderPrefix(sender), digest...)
}

// Insert writes the record and its sender index entry in one transaction
func (s *BadgerStore) Insert(ctx context.Context, rec *models.Transaction) (*models.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, newRepositoryError("insert transaction", err)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("encode transaction: %w", err)
	}

	var existing *models.Transaction
	err = s.db.Update(func(txn *badger.Txn) error {
		found, err := readTx(txn, rec.Digest)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}
		if err := txn.Set(txKey(rec.Digest), value); err != nil {
			return err
		}
		return txn.Set(senderKey(rec.Sender, rec.Digest), nil)
	})
	switch {
	case errors.Is(err, badger.ErrConflict):
		// A concurrent insert of the same digest committed first.
		stored, getErr := s.GetByDigest(ctx, rec.Digest)
		if getErr != nil {
			return nil, false, getErr
		}
		if stored == nil {
			return nil, false, newRepositoryError("insert transaction", err)
		}
		return stored, false, nil
	case err != nil:
		return nil, false, newRepositoryError("insert transaction", err)
	case existing != nil:
		return existing, false, nil
	}
	return rec, true, nil
}

// GetByDigest reads one record
func (s *BadgerStore) GetByDigest(ctx context.Context, digest string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, newRepositoryError("get transaction", err)
	}

	var tx *models.Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		tx, err = readTx(txn, digest)
		return err
	})
	if err != nil {
		return nil, newRepositoryError("get transaction", err)
	}
	return tx, nil
}

// ListBySender scans the sender index and returns the newest records first
func (s *BadgerStore) ListBySender(ctx context.Context, sender string, limit int) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, newRepositoryError("list transactions", err)
	}

	var txs []models.Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := senderPrefix(sender)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			digest := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			tx, err := readTx(txn, digest)
			if err != nil {
				return err
			}
			if tx != nil {
				txs = append(txs, *tx)
			}
		}
		return nil
	})
	if err != nil {
		return nil, newRepositoryError("list transactions", err)
	}

	sort.Slice(txs, func(i, j int) bool {
		if txs[i].AddedAt != txs[j].AddedAt {
			return txs[i].AddedAt > txs[j].AddedAt
		}
		return txs[i].Digest < txs[j].Digest
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Ping fails once the store has been closed
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return &RepositoryError{Op: "ping", Code: codeDatabaseError, Message: "Store is closed"}
	}
	return nil
}

// Close flushes and closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readTx(txn *badger.Txn, digest string) (*models.Transaction, error) {
	item, err := txn.Get(txKey(digest))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var tx models.Transaction
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &tx)
	})
	if err != nil {
		return nil, &RepositoryError{
			Op:      "read transaction",
			Code:    codeCorruptValue,
			Message: "Stored value is not a transaction record",
			Detail:  fmt.Sprintf("digest %s", digest),
			Err:     err,
		}
	}
	return &tx, nil
}

// badgerLogger routes badger's printf-style logs into the service logger
type badgerLogger struct {
	logger cmtlog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "level", "warn")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
