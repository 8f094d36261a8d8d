package sql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
)

type TransactionFunction func(*sql.Tx) error

// withTransaction runs fn inside a transaction and returns fn's error. The
// transaction commits unless fn's error demands a rollback; a failure to
// begin, commit or rollback replaces fn's error, since the caller must know
// its writes did not land.
func (s *SQLStorage) withTransaction(name string, resourceID string, fn TransactionFunction) error {
	txn, err := s.pool.BeginTx(s.ctx, nil)
	if err != nil {
		return s.transactionFailed("begin", name, resourceID, err)
	}
	fnErr := fn(txn)
	if rollbackNeeded(fnErr) {
		if txnErr := txn.Rollback(); txnErr != nil {
			return s.transactionFailed("rollback", name, resourceID, txnErr)
		}
	} else {
		if txnErr := txn.Commit(); txnErr != nil {
			return s.transactionFailed("commit", name, resourceID, txnErr)
		}
	}
	return fnErr
}

// rollbackNeeded reports whether the error from the transaction function
// requires the transaction to be undone. Errors that are not service errors
// always do, because they carry no verdict on the writes made so far.
func rollbackNeeded(err error) bool {
	if err == nil {
		return false
	}
	var serviceError abstractions.ServiceError
	if errors.As(err, &serviceError) {
		return serviceError.ShouldRollback()
	}
	return true
}

func (s *SQLStorage) transactionFailed(action string, name string, resourceID string, err error) error {
	operation := fmt.Sprintf("%s transaction %s", action, name)
	s.logger.Error("Failed to "+action+" transaction", "name", operation, "resource_id", resourceID, "error", err.Error())
	return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", operation, "ResourceId", resourceID, "Error", err.Error())
}
