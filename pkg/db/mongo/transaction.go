package mongo

import (
	"context"
	"errors"
	"net/http"
	apperrors "slotkeeper/pkg/errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client  *mongo.Client
	txnOpts *options.TransactionOptions
}

// NewTransactionManager runs callbacks with snapshot reads and majority
// writes; the driver retries the whole callback on TransientTransactionError.
func NewTransactionManager(client *mongo.Client) TransactionManager {
	maxCommit := 10 * time.Second
	return &mongoTransactionManager{
		client: client,
		txnOpts: options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()).
			SetMaxCommitTime(&maxCommit),
	}
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return apperrors.StorageUnavailable("failed to start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	}, m.txnOpts)

	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return ClassifyError("transaction failed", err)
	}

	return nil
}

// ClassifyError maps driver failures onto application errors. Errors that did
// not come from the driver, such as domain sentinels returned by a
// transaction callback, are returned unchanged.
func ClassifyError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(msg)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, msg, http.StatusGatewayTimeout)
	}
	if IsTransient(err) {
		return apperrors.StorageUnavailable(msg, err)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return apperrors.StorageUnavailable(msg, err)
	}
	return err
}

// IsTransient reports network and write-conflict failures that a retry of the
// whole operation may resolve.
func IsTransient(err error) bool {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError") ||
			labeled.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
