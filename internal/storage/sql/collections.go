package sql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/messages"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/pkg/api"
)

//#######################################################################
// Collection operations
//#######################################################################

// CreateCollection stores a collection resource. The caller assigns the
// identifier; storage stamps the tenant and timestamps.
func (s *SQLStorage) CreateCollection(collection *api.CollectionResource) error {
	collection.Resource.Tenant = s.getTenant()
	now := time.Now()
	collection.Resource.CreatedAt = now
	collection.Resource.UpdatedAt = now

	entityJSON, err := json.Marshal(collection)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	addEntityStatement, err := createAddEntityStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS)
	if err != nil {
		return err
	}
	s.logger.Info("Creating collection", "id", collection.Resource.ID, "name", collection.Name)
	_, err = s.exec(s.ctx, addEntityStatement, collection.Resource.ID, string(collection.Resource.Tenant), "", string(entityJSON))
	if err != nil {
		s.logger.Error("Failed to create collection", "error", err, "id", collection.Resource.ID)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", collection.Resource.ID, "Error", err.Error())
	}
	return nil
}

func (s *SQLStorage) GetCollection(id string) (*api.CollectionResource, error) {
	selectQuery, err := createGetEntityStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS)
	if err != nil {
		return nil, err
	}

	var dbID, tenant, statusStr, entityJSON string
	var createdAt, updatedAt time.Time
	err = s.pool.QueryRowContext(s.ctx, selectQuery, id).Scan(&dbID, &tenant, &createdAt, &updatedAt, &statusStr, &entityJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", id)
		}
		s.logger.Error("Failed to get collection", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
	}

	collection, err := decodeCollection(dbID, tenant, createdAt, updatedAt, entityJSON)
	if err != nil {
		s.logger.Error("Failed to unmarshal collection entity", "error", err, "id", id)
		return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", "collection", "Error", err.Error())
	}
	return collection, nil
}

func (s *SQLStorage) GetCollections(limit int, offset int) (*abstractions.QueryResults[api.CollectionResource], error) {
	countQuery, countArgs, err := createCountEntitiesStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS, "")
	if err != nil {
		return nil, err
	}

	var totalCount int
	err = s.pool.QueryRowContext(s.ctx, countQuery, countArgs...).Scan(&totalCount)
	if err != nil {
		s.logger.Error("Failed to count collections", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "collections", "Error", err.Error())
	}

	listQuery, listArgs, err := createListEntitiesStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS, limit, offset, "")
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.QueryContext(s.ctx, listQuery, listArgs...)
	if err != nil {
		s.logger.Error("Failed to list collections", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "collections", "Error", err.Error())
	}
	defer rows.Close()

	var items []api.CollectionResource
	for rows.Next() {
		var dbID, tenant, statusStr, entityJSON string
		var createdAt, updatedAt time.Time

		err = rows.Scan(&dbID, &tenant, &createdAt, &updatedAt, &statusStr, &entityJSON)
		if err != nil {
			s.logger.Error("Failed to scan collection row", "error", err)
			return nil, serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", dbID, "Error", err.Error())
		}

		collection, err := decodeCollection(dbID, tenant, createdAt, updatedAt, entityJSON)
		if err != nil {
			s.logger.Error("Failed to unmarshal collection entity", "error", err, "id", dbID)
			return nil, serviceerrors.NewServiceError(messages.JSONUnmarshalFailed, "Type", "collection", "Error", err.Error())
		}
		items = append(items, *collection)
	}

	if err = rows.Err(); err != nil {
		s.logger.Error("Error iterating collection rows", "error", err)
		return nil, serviceerrors.NewServiceError(messages.QueryFailed, "Type", "collections", "Error", err.Error())
	}

	return &abstractions.QueryResults[api.CollectionResource]{
		Items:       items,
		TotalStored: totalCount,
	}, nil
}

func (s *SQLStorage) UpdateCollection(collection *api.CollectionResource) error {
	collection.Resource.UpdatedAt = time.Now()
	entityJSON, err := json.Marshal(collection)
	if err != nil {
		return serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	updateQuery, args, err := createUpdateEntityStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS, collection.Resource.ID, "", string(entityJSON))
	if err != nil {
		return err
	}

	result, err := s.exec(s.ctx, updateQuery, args...)
	if err != nil {
		s.logger.Error("Failed to update collection", "error", err, "id", collection.Resource.ID)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", collection.Resource.ID, "Error", err.Error())
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("Failed to get rows affected", "error", err, "id", collection.Resource.ID)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", collection.Resource.ID, "Error", err.Error())
	}
	if rowsAffected == 0 {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", collection.Resource.ID)
	}

	s.logger.Info("Updated collection", "id", collection.Resource.ID)
	return nil
}

func (s *SQLStorage) DeleteCollection(id string) error {
	deleteQuery, err := createDeleteEntityStatement(s.sqlConfig.Driver, TABLE_COLLECTIONS)
	if err != nil {
		return err
	}

	result, err := s.exec(s.ctx, deleteQuery, id)
	if err != nil {
		s.logger.Error("Failed to delete collection", "error", err, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("Failed to get rows affected", "error", err, "id", id)
		return serviceerrors.NewServiceError(messages.DatabaseOperationFailed, "Type", "collection", "ResourceId", id, "Error", err.Error())
	}
	if rowsAffected == 0 {
		return serviceerrors.NewServiceError(messages.ResourceNotFound, "Type", "collection", "ResourceId", id)
	}

	s.logger.Info("Deleted collection", "id", id)
	return nil
}

// decodeCollection unmarshals the entity column and overlays the row's
// resource fields, which are authoritative.
func decodeCollection(id, tenant string, createdAt, updatedAt time.Time, entityJSON string) (*api.CollectionResource, error) {
	var collection api.CollectionResource
	if err := json.Unmarshal([]byte(entityJSON), &collection); err != nil {
		return nil, err
	}
	collection.Resource = api.Resource{
		ID:        id,
		Tenant:    api.Tenant(tenant),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	return &collection, nil
}
