package sql

import (
	"database/sql"
	"errors"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/internal/storage/entity"
	"github.com/eval-forge/eval-forge/pkg/api"
)

//#######################################################################
// Evaluation job operations
//#######################################################################

// CreateEvaluationJob stores a submitted job in the evaluations table. The
// entity column carries the full document (job, status, result); the status
// column repeats the overall state so list queries can filter without
// unmarshalling.
func (s *SQLStorage) CreateEvaluationJob(job *api.EvaluationJob) (*api.EvaluationJobResource, error) {
	tenant := s.getTenant()
	record := entity.New(job, &api.MessageInfo{
		Message:     "Evaluation job created",
		MessageCode: constants.MESSAGE_CODE_EVALUATION_JOB_CREATED,
	})
	entityJSON, err := record.Encode()
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	addEntityStatement, err := createAddEntityStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Creating evaluation job", "id", job.ID, "tenant", tenant, "status", api.StatePending)
	_, err = s.exec(s.ctx, addEntityStatement, job.ID, string(tenant), string(record.OverallState()), entityJSON)
	if err != nil {
		s.logger.Error("Failed to create evaluation job", "error", err, "id", job.ID)
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", job.ID, "Error", err.Error())
	}
	now := time.Now()
	return record.Resource(api.Resource{
		ID:        job.ID,
		Tenant:    tenant,
		CreatedAt: now,
		UpdatedAt: now,
	}), nil
}

func (s *SQLStorage) GetEvaluationJob(id string) (*api.EvaluationJobResource, error) {
	// Build the SELECT query
	selectQuery, err := createGetEntityStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS)
	if err != nil {
		return nil, err
	}

	// Query the database
	var dbID, tenant, statusStr, entityJSON string
	var createdAt, updatedAt time.Time

	err = s.pool.QueryRowContext(s.ctx, selectQuery, id).Scan(&dbID, &tenant, &createdAt, &updatedAt, &statusStr, &entityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
		}
		s.logger.Error("Failed to get evaluation job", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}

	record, err := entity.Decode(entityJSON)
	if err != nil {
		s.logger.Error("Failed to unmarshal evaluation job entity", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", "evaluation job", "Error", err.Error())
	}

	return record.Resource(api.Resource{
		ID:        dbID,
		Tenant:    api.Tenant(tenant),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}), nil
}

func (s *SQLStorage) GetEvaluationJobs(limit int, offset int, stateFilter string) (*abstractions.QueryResults[api.EvaluationJobResource], error) {
	// Get total count (with state filter if provided)
	countQuery, countArgs, err := createCountEntitiesStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS, stateFilter)
	if err != nil {
		return nil, err
	}

	var totalCount int
	err = s.pool.QueryRowContext(s.ctx, countQuery, countArgs...).Scan(&totalCount)
	if err != nil {
		s.logger.Error("Failed to count evaluation jobs", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "evaluation jobs", "Error", err.Error())
	}

	// Build the list query with pagination and state filter
	listQuery, listArgs, err := createListEntitiesStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS, limit, offset, stateFilter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.QueryContext(s.ctx, listQuery, listArgs...)
	if err != nil {
		s.logger.Error("Failed to list evaluation jobs", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "evaluation jobs", "Error", err.Error())
	}
	defer rows.Close()

	var items []api.EvaluationJobResource
	for rows.Next() {
		var dbID, tenant, statusStr, entityJSON string
		var createdAt, updatedAt time.Time

		err = rows.Scan(&dbID, &tenant, &createdAt, &updatedAt, &statusStr, &entityJSON)
		if err != nil {
			s.logger.Error("Failed to scan evaluation job row", "error", err)
			return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", dbID, "Error", err.Error())
		}

		record, err := entity.Decode(entityJSON)
		if err != nil {
			s.logger.Error("Failed to unmarshal evaluation job entity", "error", err, "id", dbID)
			return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", "evaluation job", "Error", err.Error())
		}

		items = append(items, *record.Resource(api.Resource{
			ID:        dbID,
			Tenant:    api.Tenant(tenant),
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		}))
	}

	if err = rows.Err(); err != nil {
		s.logger.Error("Error iterating evaluation job rows", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "evaluation jobs", "Error", err.Error())
	}

	return &abstractions.QueryResults[api.EvaluationJobResource]{
		Items:       items,
		TotalStored: totalCount,
	}, nil
}

func (s *SQLStorage) DeleteEvaluationJob(id string, hardDelete bool) error {
	if !hardDelete {
		return s.UpdateEvaluationJobStatus(id, api.OverallStateCancelled, &api.MessageInfo{
			Message:     "Evaluation job cancelled",
			MessageCode: constants.MESSAGE_CODE_EVALUATION_JOB_CANCELLED,
		})
	}

	// Build the DELETE query
	deleteQuery, err := createDeleteEntityStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS)
	if err != nil {
		return err
	}

	result, err := s.exec(s.ctx, deleteQuery, id)
	if err != nil {
		s.logger.Error("Failed to delete evaluation job", "error", err, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}

	// Both supported drivers report affected rows
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("Failed to get rows affected", "error", err, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}
	if rowsAffected == 0 {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
	}

	s.logger.Info("Deleted evaluation job", "id", id, "hardDelete", hardDelete)
	return nil
}

func (s *SQLStorage) UpdateEvaluationJobStatus(id string, state api.OverallState, message *api.MessageInfo) error {
	return s.withTransaction("update evaluation job status", id, func(txn *sql.Tx) error {
		record, err := s.getEvaluationTx(txn, id)
		if err != nil {
			return err
		}
		record.SetState(state, message)
		if err := s.updateEvaluationTx(txn, id, record); err != nil {
			return err
		}
		s.logger.Info("Updated evaluation job status", "id", id, "status", state)
		return nil
	})
}

// RecordTaskStatus folds one task status event into the stored document. The
// read and the write share a transaction so concurrent events for the same
// job do not lose updates.
func (s *SQLStorage) RecordTaskStatus(id string, event *api.TaskStatusEvent) error {
	return s.withTransaction("record task status", id, func(txn *sql.Tx) error {
		record, err := s.getEvaluationTx(txn, id)
		if err != nil {
			return err
		}
		if err := record.ApplyTaskEvent(event); err != nil {
			if errors.Is(err, entity.ErrUnknownTask) {
				return serviceerrors.NewServiceError(messages.TaskNotFound, "TaskName", event.TaskName, "ResourceId", id).WithRollback()
			}
			return serviceerrors.NewServiceError(messages.StatusEventInvalid, "ResourceId", id, "Error", err.Error()).WithRollback()
		}
		if err := s.updateEvaluationTx(txn, id, record); err != nil {
			return err
		}
		s.logger.Info("Recorded task status", "id", id, "task_name", event.TaskName, "state", event.State)
		return nil
	})
}

// SetEvaluationJobResult stores the result a launcher returned and moves the
// job to the result's overall state.
func (s *SQLStorage) SetEvaluationJobResult(id string, result *api.EvaluationResult) error {
	return s.withTransaction("set evaluation job result", id, func(txn *sql.Tx) error {
		record, err := s.getEvaluationTx(txn, id)
		if err != nil {
			return err
		}
		record.SetResult(result)
		if err := s.updateEvaluationTx(txn, id, record); err != nil {
			return err
		}
		s.logger.Info("Stored evaluation job result", "id", id, "state", result.State)
		return nil
	})
}

func (s *SQLStorage) getEvaluationTx(txn *sql.Tx, id string) (*entity.Evaluation, error) {
	selectQuery, err := createGetEntityStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS)
	if err != nil {
		return nil, err
	}

	var dbID, tenant, statusStr, entityJSON string
	var createdAt, updatedAt time.Time
	err = txn.QueryRowContext(s.ctx, selectQuery, id).Scan(&dbID, &tenant, &createdAt, &updatedAt, &statusStr, &entityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id).WithRollback()
		}
		s.logger.Error("Failed to get evaluation job", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error()).WithRollback()
	}

	record, err := entity.Decode(entityJSON)
	if err != nil {
		s.logger.Error("Failed to unmarshal evaluation job entity", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", "evaluation job", "Error", err.Error()).WithRollback()
	}
	return record, nil
}

func (s *SQLStorage) updateEvaluationTx(txn *sql.Tx, id string, record *entity.Evaluation) error {
	entityJSON, err := record.Encode()
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error()).WithRollback()
	}
	updateQuery, args, err := createUpdateEntityStatement(s.sqlConfig.Driver, TABLE_EVALUATIONS, id, string(record.OverallState()), entityJSON)
	if err != nil {
		return err
	}
	if _, err := txn.ExecContext(s.ctx, updateQuery, args...); err != nil {
		s.logger.Error("Failed to update evaluation job", "error", err, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error()).WithRollback()
	}
	return nil
}
