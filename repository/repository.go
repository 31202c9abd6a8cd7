package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/iota-tx-service/repository/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the gateway classifies
const (
	// Class 23: Integrity Constraint Violation
	PgErrUniqueViolation = "23505" // unique_violation

	// Class 08: Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure

	// Class 53: Insufficient Resources
	PgErrInsufficientResources = "53000" // insufficient_resources
	PgErrTooManyConnections    = "53300" // too_many_connections

	// Class 57: Operator Intervention
	PgErrQueryCanceled    = "57014" // query_canceled
	PgErrAdminShutdown    = "57P01" // admin_shutdown
	PgErrCrashShutdown    = "57P02" // crash_shutdown
	PgErrCannotConnectNow = "57P03" // cannot_connect_now

	// Class XX: Internal Error
	PgErrInternalError  = "XX000" // internal_error
	PgErrDataCorrupted  = "XX001" // data_corrupted
	PgErrIndexCorrupted = "XX002" // index_corrupted
)

// Codes for failures that did not come with a SQLSTATE
const (
	codeDatabaseError      = "DATABASE_ERROR"
	codeConnectionTimeout  = "CONNECTION_TIMEOUT"
	codeConnectionCanceled = "CONNECTION_CANCELED"
	codeCorruptValue       = "CORRUPT_VALUE"
)

// Gateway is the narrow interface the transaction service persists through.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// Insert stores rec unless a record with the same digest exists, in which
	// case the existing record is returned with created=false.
	Insert(ctx context.Context, rec *models.Transaction) (stored *models.Transaction, created bool, err error)
	// GetByDigest returns nil, nil when the digest is unknown.
	GetByDigest(ctx context.Context, digest string) (*models.Transaction, error)
	// ListBySender returns the newest records first.
	ListBySender(ctx context.Context, sender string, limit int) ([]models.Transaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryError represent an error in the repository layer (db/kv)
type RepositoryError struct {
	Op      string
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// newRepositoryError classifies err, keeping the SQLSTATE when the database produced one
func newRepositoryError(op string, err error) *RepositoryError {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return &RepositoryError{
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
			Err:     err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &RepositoryError{
			Op:      op,
			Code:    codeConnectionTimeout,
			Message: "Timed out waiting for the database",
			Err:     err,
		}
	case errors.Is(err, context.Canceled):
		return &RepositoryError{
			Op:      op,
			Code:    codeConnectionCanceled,
			Message: "Request canceled",
			Err:     err,
		}
	default:
		return &RepositoryError{
			Op:      op,
			Code:    codeDatabaseError,
			Message: "Database error occured",
			Detail:  err.Error(),
			Err:     err,
		}
	}
}

// IsUniqueViolation reports whether err came from the primary key constraint
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation
}

// IsIntegrityFault reports whether the backend flagged its own data as damaged
func IsIntegrityFault(err error) bool {
	var repoErr *RepositoryError
	if !errors.As(err, &repoErr) {
		return false
	}
	switch repoErr.Code {
	case PgErrDataCorrupted, PgErrIndexCorrupted, codeCorruptValue:
		return true
	}
	return false
}

// Retryable reports whether err looks transient (connectivity, exhausted
// resources, operator intervention) so callers may try again later
func Retryable(err error) bool {
	var repoErr *RepositoryError
	if !errors.As(err, &repoErr) {
		return false
	}
	switch repoErr.Code {
	case codeConnectionTimeout, PgErrTooManyConnections, PgErrQueryCanceled:
		return true
	}
	return strings.HasPrefix(repoErr.Code, "08") ||
		strings.HasPrefix(repoErr.Code, "53") ||
		strings.HasPrefix(repoErr.Code, "57P")
}
