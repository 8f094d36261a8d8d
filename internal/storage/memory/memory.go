// Package memory implements storage on hashicorp/go-memdb. It backs local
// development and the behaviour driven tests, where a database server is not
// wanted; documents live in indexed in-memory tables with the same entity
// fold semantics as the SQL backend.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/constants"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/internal/storage/entity"
	"github.com/eval-forge/eval-forge/pkg/api"
)

const (
	// Driver is the database.driver value selecting this backend.
	Driver = "memory"

	tableEvaluations = "evaluations"
	tableCollections = "collections"
)

type evaluationRow struct {
	ID        string
	Tenant    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Record    *entity.Evaluation
}

type collectionRow struct {
	ID         string
	Tenant     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Collection *api.CollectionResource
}

type MemoryStorage struct {
	db     *memdb.MemDB
	logger *slog.Logger
	ctx    context.Context
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEvaluations: {
				Name: tableEvaluations,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"status": {
						Name:    "status",
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
			tableCollections: {
				Name: tableCollections,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

func NewStorage(logger *slog.Logger) (abstractions.Storage, error) {
	logger.Info("Creating in-memory storage")
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &MemoryStorage{
		db:     db,
		logger: logger,
		ctx:    context.Background(),
	}, nil
}

func (s *MemoryStorage) WithLogger(logger *slog.Logger) abstractions.Storage {
	clone := *s
	clone.logger = logger
	return &clone
}

func (s *MemoryStorage) WithContext(ctx context.Context) abstractions.Storage {
	clone := *s
	clone.ctx = ctx
	return &clone
}

func (s *MemoryStorage) GetDatasourceName() string {
	return Driver
}

func (s *MemoryStorage) Ping(_ time.Duration) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// TODO: populate the tenant from the authenticated caller once auth lands
func (s *MemoryStorage) getTenant() api.Tenant {
	return "default"
}

//#######################################################################
// Evaluation job operations
//#######################################################################

func (s *MemoryStorage) CreateEvaluationJob(job *api.EvaluationJob) (*api.EvaluationJobResource, error) {
	record := entity.New(job, &api.MessageInfo{
		Message:     "Evaluation job created",
		MessageCode: constants.MESSAGE_CODE_EVALUATION_JOB_CREATED,
	})
	now := time.Now()
	row := &evaluationRow{
		ID:        job.ID,
		Tenant:    string(s.getTenant()),
		Status:    string(record.OverallState()),
		CreatedAt: now,
		UpdatedAt: now,
		Record:    record,
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(tableEvaluations, "id", job.ID)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", job.ID, "Error", err.Error())
	}
	if existing != nil {
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", job.ID, "Error", "id already exists")
	}
	if err := txn.Insert(tableEvaluations, row); err != nil {
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", job.ID, "Error", err.Error())
	}
	txn.Commit()

	s.logger.Info("Creating evaluation job", "id", job.ID, "tenant", row.Tenant, "status", api.StatePending)
	return record.Resource(resourceOf(row)), nil
}

func (s *MemoryStorage) GetEvaluationJob(id string) (*api.EvaluationJobResource, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	row, err := s.getEvaluationRow(txn, id)
	if err != nil {
		return nil, err
	}
	// hand out a copy so callers cannot mutate the indexed record
	record, err := row.Record.Clone()
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	return record.Resource(resourceOf(row)), nil
}

func (s *MemoryStorage) GetEvaluationJobs(limit int, offset int, stateFilter string) (*abstractions.QueryResults[api.EvaluationJobResource], error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var it memdb.ResultIterator
	var err error
	if stateFilter != "" {
		it, err = txn.Get(tableEvaluations, "status", stateFilter)
	} else {
		it, err = txn.Get(tableEvaluations, "id")
	}
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "evaluation jobs", "Error", err.Error())
	}

	var rows []*evaluationRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*evaluationRow))
	}
	// newest identifiers first, matching the SQL backend's ordering
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })

	totalCount := len(rows)
	rows = pageOf(rows, limit, offset)

	items := make([]api.EvaluationJobResource, 0, len(rows))
	for _, row := range rows {
		record, err := row.Record.Clone()
		if err != nil {
			return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
		}
		items = append(items, *record.Resource(resourceOf(row)))
	}

	return &abstractions.QueryResults[api.EvaluationJobResource]{
		Items:       items,
		TotalStored: totalCount,
	}, nil
}

func (s *MemoryStorage) DeleteEvaluationJob(id string, hardDelete bool) error {
	if !hardDelete {
		return s.UpdateEvaluationJobStatus(id, api.OverallStateCancelled, &api.MessageInfo{
			Message:     "Evaluation job cancelled",
			MessageCode: constants.MESSAGE_CODE_EVALUATION_JOB_CANCELLED,
		})
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	row, err := s.getEvaluationRow(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(tableEvaluations, row); err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}
	txn.Commit()

	s.logger.Info("Deleted evaluation job", "id", id, "hardDelete", hardDelete)
	return nil
}

func (s *MemoryStorage) UpdateEvaluationJobStatus(id string, state api.OverallState, message *api.MessageInfo) error {
	err := s.updateEvaluation(id, func(record *entity.Evaluation) error {
		record.SetState(state, message)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Updated evaluation job status", "id", id, "status", state)
	return nil
}

func (s *MemoryStorage) RecordTaskStatus(id string, event *api.TaskStatusEvent) error {
	err := s.updateEvaluation(id, func(record *entity.Evaluation) error {
		if err := record.ApplyTaskEvent(event); err != nil {
			if errors.Is(err, entity.ErrUnknownTask) {
				return serviceerrors.NewServiceError(messages.TaskNotFound, "TaskName", event.TaskName, "ResourceId", id)
			}
			return serviceerrors.NewServiceError(messages.StatusEventInvalid, "ResourceId", id, "Error", err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Recorded task status", "id", id, "task_name", event.TaskName, "state", event.State)
	return nil
}

func (s *MemoryStorage) SetEvaluationJobResult(id string, result *api.EvaluationResult) error {
	err := s.updateEvaluation(id, func(record *entity.Evaluation) error {
		record.SetResult(result)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Stored evaluation job result", "id", id, "state", result.State)
	return nil
}

// updateEvaluation applies fn to a clone of the stored record and swaps in a
// fresh row. Stored rows are never mutated in place; memdb indexes them.
func (s *MemoryStorage) updateEvaluation(id string, fn func(*entity.Evaluation) error) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	row, err := s.getEvaluationRow(txn, id)
	if err != nil {
		return err
	}
	record, err := row.Record.Clone()
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	if err := fn(record); err != nil {
		return err
	}

	updated := &evaluationRow{
		ID:        row.ID,
		Tenant:    row.Tenant,
		Status:    string(record.OverallState()),
		CreatedAt: row.CreatedAt,
		UpdatedAt: time.Now(),
		Record:    record,
	}
	if err := txn.Insert(tableEvaluations, updated); err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}
	txn.Commit()
	return nil
}

func (s *MemoryStorage) getEvaluationRow(txn *memdb.Txn, id string) (*evaluationRow, error) {
	obj, err := txn.First(tableEvaluations, "id", id)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "evaluation job", "ResourceId", id, "Error", err.Error())
	}
	if obj == nil {
		return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "evaluation job", "ResourceId", id)
	}
	return obj.(*evaluationRow), nil
}

//#######################################################################
// Collection operations
//#######################################################################

func (s *MemoryStorage) CreateCollection(collection *api.CollectionResource) error {
	collection.Resource.Tenant = s.getTenant()
	now := time.Now()
	collection.Resource.CreatedAt = now
	collection.Resource.UpdatedAt = now

	stored, err := cloneCollection(collection)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	row := &collectionRow{
		ID:         collection.Resource.ID,
		Tenant:     string(collection.Resource.Tenant),
		CreatedAt:  now,
		UpdatedAt:  now,
		Collection: stored,
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(tableCollections, "id", row.ID)
	if err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", row.ID, "Error", err.Error())
	}
	if existing != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", row.ID, "Error", "id already exists")
	}
	if err := txn.Insert(tableCollections, row); err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", row.ID, "Error", err.Error())
	}
	txn.Commit()

	s.logger.Info("Creating collection", "id", row.ID, "name", collection.Name)
	return nil
}

func (s *MemoryStorage) GetCollection(id string) (*api.CollectionResource, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	row, err := s.getCollectionRow(txn, id)
	if err != nil {
		return nil, err
	}
	collection, err := cloneCollection(row.Collection)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	return collection, nil
}

func (s *MemoryStorage) GetCollections(limit int, offset int) (*abstractions.QueryResults[api.CollectionResource], error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableCollections, "id")
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "collections", "Error", err.Error())
	}

	var rows []*collectionRow
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rows = append(rows, obj.(*collectionRow))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })

	totalCount := len(rows)
	rows = pageOf(rows, limit, offset)

	items := make([]api.CollectionResource, 0, len(rows))
	for _, row := range rows {
		collection, err := cloneCollection(row.Collection)
		if err != nil {
			return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
		}
		items = append(items, *collection)
	}

	return &abstractions.QueryResults[api.CollectionResource]{
		Items:       items,
		TotalStored: totalCount,
	}, nil
}

func (s *MemoryStorage) UpdateCollection(collection *api.CollectionResource) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	row, err := s.getCollectionRow(txn, collection.Resource.ID)
	if err != nil {
		return err
	}

	collection.Resource.Tenant = api.Tenant(row.Tenant)
	collection.Resource.CreatedAt = row.CreatedAt
	collection.Resource.UpdatedAt = time.Now()
	stored, err := cloneCollection(collection)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}

	updated := &collectionRow{
		ID:         row.ID,
		Tenant:     row.Tenant,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  collection.Resource.UpdatedAt,
		Collection: stored,
	}
	if err := txn.Insert(tableCollections, updated); err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", row.ID, "Error", err.Error())
	}
	txn.Commit()

	s.logger.Info("Updated collection", "id", row.ID)
	return nil
}

func (s *MemoryStorage) DeleteCollection(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	row, err := s.getCollectionRow(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(tableCollections, row); err != nil {
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
	}
	txn.Commit()

	s.logger.Info("Deleted collection", "id", id)
	return nil
}

func (s *MemoryStorage) getCollectionRow(txn *memdb.Txn, id string) (*collectionRow, error) {
	obj, err := txn.First(tableCollections, "id", id)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
	}
	if obj == nil {
		return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", id)
	}
	return obj.(*collectionRow), nil
}

func resourceOf(row *evaluationRow) api.Resource {
	return api.Resource{
		ID:        row.ID,
		Tenant:    api.Tenant(row.Tenant),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func pageOf[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func cloneCollection(collection *api.CollectionResource) (*api.CollectionResource, error) {
	raw, err := json.Marshal(collection)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	var clone api.CollectionResource
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return &clone, nil
}
