package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConfig holds connection and pool settings
type PostgresConfig struct {
	DSN               string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ConnectAttempts   int
	ConnectRetryDelay time.Duration
}

// PostgresStore is the gorm-backed Gateway
type PostgresStore struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

var _ Gateway = (*PostgresStore)(nil)

// ConnectPostgres opens the database, retrying while it comes up, and prepares the schema
func ConnectPostgres(ctx context.Context, cfg PostgresConfig, logger cmtlog.Logger) (*PostgresStore, error) {
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var db *gorm.DB
	var err error
	for i := range attempts {
		logger.Info("Connecting to Postgres", "attempt", i+1)
		db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			SkipDefaultTransaction: true,
			Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			break
		}
		logger.Error("Connection attempt failed", "attempt", i+1, "err", err)
		if i == attempts-1 {
			return nil, fmt.Errorf("connect postgres after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectRetryDelay):
		}
	}
	logger.Info("Connected to Postgres")

	store, err := NewPostgresStore(db, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open gorm handle and applies the pool limits
func NewPostgresStore(db *gorm.DB, cfg PostgresConfig, logger cmtlog.Logger) (*PostgresStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &PostgresStore{db: db, logger: logger.With("module", "postgres")}, nil
}

// Migrate creates the transactions table and its sender index
func (s *PostgresStore) Migrate() error {
	if err := s.db.AutoMigrate(&models.Transaction{}); err != nil {
		return fmt.Errorf("migrate transactions: %w", err)
	}
	s.logger.Info("Database migration completed successfully")
	return nil
}

// Insert creates the record, or returns the one already stored under the same digest
func (s *PostgresStore) Insert(ctx context.Context, rec *models.Transaction) (*models.Transaction, bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil && !IsUniqueViolation(res.Error) {
		return nil, false, newRepositoryError("insert transaction", res.Error)
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return rec, true, nil
	}

	// Lost the race or resubmitted: the first writer's row is authoritative.
	existing, err := s.GetByDigest(ctx, rec.Digest)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, &RepositoryError{
			Op:      "insert transaction",
			Code:    codeDatabaseError,
			Message: "Conflicting row not found",
			Detail:  fmt.Sprintf("digest %s", rec.Digest),
		}
	}
	return existing, false, nil
}

// GetByDigest fetches one record by primary key
func (s *PostgresStore) GetByDigest(ctx context.Context, digest string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("digest = ?", digest).Take(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, newRepositoryError("get transaction", err)
	}
	return &tx, nil
}

// ListBySender returns the newest records sent by sender
func (s *PostgresStore) ListBySender(ctx context.Context, sender string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("sender = ?", sender).
		Order("added_at DESC").
		Order("digest").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, newRepositoryError("list transactions", err)
	}
	return txs, nil
}

// Ping checks that a pooled connection can reach the database
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return newRepositoryError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return newRepositoryError("ping", err)
	}
	return nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
